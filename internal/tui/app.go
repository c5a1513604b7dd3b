package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jfelder/stepwise/internal/gateway"
)

// sender is the outbound half of the session the app needs.
type sender interface {
	SendRequest(text string) error
	SendResult(stepIndex int, success bool, output, diagnostic string) error
	SendCancel() error
}

// App modes.
const (
	modeRequest = iota
	modeStreaming
	modeExecute
	modeDone
)

// Execute-mode stages: pick a verdict, then enter the output.
const (
	stageVerdict = iota
	stageOutput
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	codeStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// App is the bubbletea model for the executor client.
type App struct {
	conn sender
	wait tea.Cmd

	mode  int
	stage int

	input   textinput.Model
	spin    spinner.Model
	log     []string
	pending *gateway.ExecutionRequestPayload
	verdict bool
	report  string
	width   int
	height  int
}

// NewApp creates the executor model over an established client.
func NewApp(client *Client) *App {
	return newApp(client, client.Wait())
}

func newApp(conn sender, wait tea.Cmd) *App {
	ti := textinput.New()
	ti.Placeholder = "Describe what you want done and press Enter..."
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 70

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &App{
		conn:  conn,
		wait:  wait,
		mode:  modeRequest,
		input: ti,
		spin:  sp,
	}
}

// Run connects to the server and drives the executor UI until exit.
func Run(url string) error {
	client, err := Dial(url)
	if err != nil {
		return err
	}
	defer client.Close()

	_, err = tea.NewProgram(NewApp(client), tea.WithAltScreen()).Run()
	return err
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, a.spin.Tick, a.wait)
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case tea.KeyMsg:
		return a.updateKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd

	case EnvelopeMsg:
		return a.updateEnvelope(msg.Env)

	case ConnClosedMsg:
		a.append(failStyle.Render("session closed"))
		a.mode = modeDone
		return a, nil
	}

	return a, nil
}

func (a *App) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		if a.mode == modeStreaming || a.mode == modeExecute {
			a.conn.SendCancel()
		}
		return a, tea.Quit
	case "q":
		if a.mode == modeDone {
			return a, tea.Quit
		}
	}

	switch a.mode {
	case modeRequest:
		if msg.String() == "enter" {
			text := strings.TrimSpace(a.input.Value())
			if text == "" {
				return a, nil
			}
			a.input.Reset()
			a.input.Blur()
			a.mode = modeStreaming
			if err := a.conn.SendRequest(text); err != nil {
				a.append(failStyle.Render("send failed: " + err.Error()))
				a.mode = modeDone
				return a, nil
			}
			return a, a.spin.Tick
		}
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		return a, cmd

	case modeExecute:
		return a.updateExecuteKey(msg)

	case modeDone:
		if msg.String() == "enter" {
			// Start over on the same session.
			a.mode = modeRequest
			a.report = ""
			a.input.Focus()
			return a, textinput.Blink
		}
	}

	return a, nil
}

func (a *App) updateExecuteKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.stage == stageVerdict {
		switch msg.String() {
		case "s":
			a.verdict = true
			a.stage = stageOutput
			a.input.Placeholder = "Paste the output, then press Enter..."
			a.input.Focus()
			return a, textinput.Blink
		case "f":
			a.verdict = false
			a.stage = stageOutput
			a.input.Placeholder = "Describe the error, then press Enter..."
			a.input.Focus()
			return a, textinput.Blink
		}
		return a, nil
	}

	if msg.String() == "enter" {
		text := a.input.Value()
		a.input.Reset()
		a.input.Blur()

		var output, diagnostic string
		if a.verdict {
			output = text
		} else {
			diagnostic = text
		}
		stepIndex := a.pending.StepIndex
		a.pending = nil
		a.stage = stageVerdict
		a.mode = modeStreaming
		if err := a.conn.SendResult(stepIndex, a.verdict, output, diagnostic); err != nil {
			a.append(failStyle.Render("send failed: " + err.Error()))
			a.mode = modeDone
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a *App) updateEnvelope(env gateway.Envelope) (tea.Model, tea.Cmd) {
	switch env.Type {
	case gateway.TypeRequestStart:
		a.append(headerStyle.Render("request accepted: " + env.RequestID))

	case gateway.TypePlanStart:
		a.append(dimStyle.Render("planning..."))

	case gateway.TypePlanSteps:
		var payload gateway.PlanStepsPayload
		if env.DecodeData(&payload) == nil {
			a.append(fmt.Sprintf("plan: %d steps", len(payload.Steps)))
			for _, step := range payload.Steps {
				a.append(stepStyle.Render(fmt.Sprintf("  %d. %s", step.Index+1, step.Description)))
			}
		}

	case gateway.TypeStepStart:
		var payload gateway.PlannedStepPayload
		if env.DecodeData(&payload) == nil {
			a.append(stepStyle.Render(fmt.Sprintf("step %d: %s", payload.Index+1, payload.Description)))
		}

	case gateway.TypeStepCode, gateway.TypeDebugCode:
		var payload gateway.StepCodePayload
		if env.DecodeData(&payload) == nil {
			label := "generated"
			if env.Type == gateway.TypeDebugCode {
				label = "repaired"
			}
			a.append(dimStyle.Render(fmt.Sprintf("%s %s code (%d bytes)", label, payload.Language, len(payload.Code))))
		}

	case gateway.TypeExecutionRequest:
		payload := &gateway.ExecutionRequestPayload{}
		if env.DecodeData(payload) == nil {
			a.pending = payload
			a.stage = stageVerdict
			a.mode = modeExecute
		}

	case gateway.TypeStepSuccess:
		a.append(successStyle.Render("step passed"))

	case gateway.TypeStepFail:
		var payload gateway.StepOutcomePayload
		if env.DecodeData(&payload) == nil {
			a.append(failStyle.Render("step failed: " + payload.Diagnostic))
		}

	case gateway.TypeDebugStart:
		a.append(dimStyle.Render("debugging..."))

	case gateway.TypeDebugAbort:
		a.append(failStyle.Render("giving up on this step"))

	case gateway.TypeSummaryStart:
		a.append(dimStyle.Render("summarizing..."))

	case gateway.TypeSummaryReport:
		var payload gateway.SummaryPayload
		if env.DecodeData(&payload) == nil {
			a.report = payload.Report
		}

	case gateway.TypeRequestComplete:
		a.append(successStyle.Render("request complete"))
		a.mode = modeDone

	case gateway.TypeError:
		var payload gateway.ErrorPayload
		if env.DecodeData(&payload) == nil {
			a.append(failStyle.Render("error: " + payload.Message))
		}
		a.mode = modeDone
	}

	return a, a.wait
}

func (a *App) append(line string) {
	a.log = append(a.log, line)
	// Keep the scrollback bounded.
	if len(a.log) > 200 {
		a.log = a.log[len(a.log)-200:]
	}
}

func (a *App) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("stepwise executor"))
	b.WriteString("\n\n")

	tail := a.log
	if max := 15; len(tail) > max {
		tail = tail[len(tail)-max:]
	}
	for _, line := range tail {
		b.WriteString(line)
		b.WriteString("\n")
	}

	switch a.mode {
	case modeRequest:
		b.WriteString("\n")
		b.WriteString(a.input.View())
		b.WriteString("\n\n")
		b.WriteString(dimStyle.Render("enter: submit  ctrl+c: quit"))

	case modeStreaming:
		b.WriteString("\n")
		b.WriteString(a.spin.View())
		b.WriteString(dimStyle.Render(" working..."))
		b.WriteString("\n\n")
		b.WriteString(dimStyle.Render("ctrl+c: cancel and quit"))

	case modeExecute:
		b.WriteString("\n")
		b.WriteString(headerStyle.Render(fmt.Sprintf("execute step %d by hand", a.pending.StepIndex+1)))
		b.WriteString("\n")
		b.WriteString(codeStyle.Render(a.pending.Code))
		b.WriteString("\n")
		if a.pending.ValidationRule != "" {
			b.WriteString(dimStyle.Render("expected: " + a.pending.ValidationRule))
			b.WriteString("\n")
		}
		if a.stage == stageVerdict {
			b.WriteString("\n")
			b.WriteString(dimStyle.Render("s: it worked  f: it failed  ctrl+c: cancel"))
		} else {
			b.WriteString("\n")
			b.WriteString(a.input.View())
			b.WriteString("\n")
			b.WriteString(dimStyle.Render("enter: report result"))
		}

	case modeDone:
		if a.report != "" {
			b.WriteString("\n")
			b.WriteString(codeStyle.Render(a.report))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("enter: new request  q: quit"))
	}

	return b.String()
}
