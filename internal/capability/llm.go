package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jfelder/stepwise/pkg/models"
)

// TextModel is the minimal text-in/text-out contract the provider needs
// from an LLM backend. Implementations wrap transport errors so callers
// can match them with errors.Is(err, ErrUnavailable).
type TextModel interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// LLMProvider implements all capability ports on top of a TextModel.
type LLMProvider struct {
	model   TextModel
	prompts Prompts
}

// NewLLMProvider creates a provider using the given backend and prompts.
func NewLLMProvider(model TextModel, prompts Prompts) *LLMProvider {
	return &LLMProvider{model: model, prompts: prompts}
}

// planResponse is the wire format the planner prompt asks for.
type planResponse struct {
	Steps []PlannedStep `json:"steps"`
}

// Plan decomposes a request into ordered atomic steps.
func (p *LLMProvider) Plan(ctx context.Context, request string) ([]PlannedStep, error) {
	if strings.TrimSpace(request) == "" {
		return nil, &PlanningError{Reason: "empty request"}
	}

	response, err := p.model.Generate(ctx, fmt.Sprintf(p.prompts.Planner, request))
	if err != nil {
		return nil, fmt.Errorf("%w: plan: %w", ErrUnavailable, err)
	}

	var plan planResponse
	if err := ExtractJSON(response, &plan); err != nil {
		return nil, &PlanningError{Reason: fmt.Sprintf("unparseable plan: %v", err)}
	}

	return plan.Steps, nil
}

// codeResponse is the wire format the coder prompt asks for.
type codeResponse struct {
	Code           string `json:"code"`
	Language       string `json:"language"`
	Reasoning      string `json:"reasoning"`
	ExpectedOutput string `json:"expected_output"`
}

// GenerateCode produces an executable artifact for a step.
func (p *LLMProvider) GenerateCode(ctx context.Context, step *models.Step, prior []models.Attempt) (*models.Artifact, error) {
	stepJSON := marshalStep(step)
	priorJSON, _ := json.Marshal(prior)

	response, err := p.model.Generate(ctx, fmt.Sprintf(p.prompts.Coder, stepJSON, string(priorJSON)))
	if err != nil {
		return nil, fmt.Errorf("%w: generate code: %w", ErrUnavailable, err)
	}

	var code codeResponse
	if err := ExtractJSON(response, &code); err != nil {
		return nil, fmt.Errorf("generate code for step %d: %w", step.Index, err)
	}
	if code.Code == "" {
		return nil, fmt.Errorf("generate code for step %d: empty code in response", step.Index)
	}
	if code.Language == "" {
		code.Language = "bash"
	}

	return &models.Artifact{
		Code:           code.Code,
		Language:       code.Language,
		Reasoning:      code.Reasoning,
		ExpectedOutput: code.ExpectedOutput,
	}, nil
}

// debugResponse is the wire format the debugger prompt asks for.
type debugResponse struct {
	FixedCode      string `json:"fixed_code"`
	Language       string `json:"language"`
	Reasoning      string `json:"reasoning"`
	ErrorType      string `json:"error_type"`
	ExpectedOutput string `json:"expected_output"`
}

// Debug produces a replacement artifact for a failing one.
func (p *LLMProvider) Debug(ctx context.Context, step *models.Step, failing *models.Artifact, outcome *models.Outcome) (*models.Artifact, error) {
	stepJSON := marshalStep(step)
	artifactJSON, _ := json.Marshal(failing)
	outcomeJSON, _ := json.Marshal(outcome)

	response, err := p.model.Generate(ctx, fmt.Sprintf(p.prompts.Debugger, stepJSON, string(artifactJSON), string(outcomeJSON)))
	if err != nil {
		return nil, fmt.Errorf("%w: debug: %w", ErrUnavailable, err)
	}

	var fix debugResponse
	if err := ExtractJSON(response, &fix); err != nil {
		return nil, fmt.Errorf("debug step %d: %w", step.Index, err)
	}
	if fix.FixedCode == "" {
		return nil, fmt.Errorf("debug step %d: empty fixed_code in response", step.Index)
	}
	if fix.Language == "" {
		fix.Language = failing.Language
	}

	return &models.Artifact{
		Code:           fix.FixedCode,
		Language:       fix.Language,
		Reasoning:      fix.Reasoning,
		ExpectedOutput: fix.ExpectedOutput,
	}, nil
}

// Summarize synthesizes the final report text.
func (p *LLMProvider) Summarize(ctx context.Context, request string, results []StepResult) (string, error) {
	var sb strings.Builder
	for i, r := range results {
		outcome := "no result"
		if r.Outcome != nil {
			outcome = string(r.Outcome.Status)
			if r.Outcome.Output != "" {
				outcome += ": " + truncate(r.Outcome.Output, 500)
			}
		}
		fmt.Fprintf(&sb, "step %d: %s -> %s\n", i, r.Description, outcome)
	}

	response, err := p.model.Generate(ctx, fmt.Sprintf(p.prompts.Summarizer, request, sb.String()))
	if err != nil {
		return "", fmt.Errorf("%w: summarize: %w", ErrUnavailable, err)
	}

	report := strings.TrimSpace(response)
	if report == "" {
		return "", fmt.Errorf("summarize: empty report")
	}
	return report, nil
}

// validateResponse is the wire format the validator prompt asks for.
type validateResponse struct {
	IsValid bool   `json:"is_valid"`
	Reason  string `json:"reason"`
}

// Validate asks the model whether the reported output satisfies the
// step's validation rule. A malformed model response counts as invalid
// with the parse error as the reason, mirroring a strict gate.
func (p *LLMProvider) Validate(ctx context.Context, step *models.Step, outcome *models.Outcome) (bool, string, error) {
	response, err := p.model.Generate(ctx, fmt.Sprintf(p.prompts.Validator, step.ValidationRule, outcome.Output))
	if err != nil {
		return false, "", fmt.Errorf("%w: validate: %w", ErrUnavailable, err)
	}

	var verdict validateResponse
	if err := ExtractJSON(response, &verdict); err != nil {
		return false, fmt.Sprintf("unparseable validation verdict: %v", err), nil
	}
	if verdict.Reason == "" {
		verdict.Reason = "no reason provided"
	}

	return verdict.IsValid, verdict.Reason, nil
}

// marshalStep serializes the planner-visible fields of a step for
// inclusion in prompts.
func marshalStep(step *models.Step) string {
	data, _ := json.Marshal(map[string]string{
		"description":     step.Description,
		"expected_input":  step.ExpectedInput,
		"expected_output": step.ExpectedOutput,
		"validation_rule": step.ValidationRule,
	})
	return string(data)
}
