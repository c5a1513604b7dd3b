// Package tui provides the terminal executor client: it connects to a
// running server session, streams orchestration progress, and walks the
// operator through executing each dispatched artifact by hand.
package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/jfelder/stepwise/internal/gateway"
)

// EnvelopeMsg wraps an inbound protocol message for the bubbletea loop.
type EnvelopeMsg struct {
	Env gateway.Envelope
}

// ConnClosedMsg signals that the session connection is gone.
type ConnClosedMsg struct {
	Err error
}

// Client is the websocket side of the executor session. Reads are
// pumped into an internal channel so the bubbletea loop can consume
// them as messages.
type Client struct {
	conn     *websocket.Conn
	incoming chan tea.Msg
}

// Dial connects to the server's session endpoint, e.g.
// ws://127.0.0.1:8080/ws.
func Dial(url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", url, err)
	}

	c := &Client{
		conn:     conn,
		incoming: make(chan tea.Msg, 16),
	}
	go c.readPump()
	return c, nil
}

func (c *Client) readPump() {
	defer close(c.incoming)
	for {
		var env gateway.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			c.incoming <- ConnClosedMsg{Err: err}
			return
		}
		c.incoming <- EnvelopeMsg{Env: env}
	}
}

// Wait returns a command that yields the next inbound message.
func (c *Client) Wait() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-c.incoming
		if !ok {
			return ConnClosedMsg{}
		}
		return msg
	}
}

// SendRequest submits a natural-language request to the session.
func (c *Client) SendRequest(text string) error {
	env := gateway.NewEnvelope(gateway.TypeRequest, "", -1, gateway.RequestPayload{Request: text})
	return c.conn.WriteJSON(env)
}

// SendResult reports the outcome of a manual execution.
func (c *Client) SendResult(stepIndex int, success bool, output, diagnostic string) error {
	env := gateway.NewEnvelope(gateway.TypeStepResult, "", stepIndex, gateway.StepResultPayload{
		StepIndex:  stepIndex,
		Success:    success,
		Output:     output,
		Diagnostic: diagnostic,
	})
	return c.conn.WriteJSON(env)
}

// SendCancel asks the server to cancel the running request.
func (c *Client) SendCancel() error {
	return c.conn.WriteJSON(gateway.NewEnvelope(gateway.TypeCancel, "", -1, nil))
}

// Close tears the connection down.
func (c *Client) Close() error {
	return c.conn.Close()
}
