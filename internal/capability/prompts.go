package capability

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Prompts holds the system prompt templates used by the LLM provider.
// Each template is expanded with fmt.Sprintf; the argument order is
// documented per field and must be preserved in overrides.
type Prompts struct {
	// Planner receives the user request.
	Planner string `yaml:"planner"`
	// Coder receives the step JSON and the prior-attempts JSON.
	Coder string `yaml:"coder"`
	// Debugger receives the step JSON, the failing artifact JSON, and
	// the outcome JSON.
	Debugger string `yaml:"debugger"`
	// Summarizer receives the user request and the step/result listing.
	Summarizer string `yaml:"summarizer"`
	// Validator receives the validation rule and the reported output.
	Validator string `yaml:"validator"`
}

// DefaultPrompts returns the built-in prompt templates.
func DefaultPrompts() Prompts {
	return Prompts{
		Planner: `You are a planning assistant with full knowledge of Linux systems.
Break the following user request into a sequence of short, ordered, atomic steps.
All steps run in the same terminal session; do not open a new terminal.

Rules:
- Each step must be under 50 words and independently executable.
- Return ONLY valid JSON, no markdown, no prose.
- Each step must include exactly these keys:
  description, expected_input, expected_output, validation_rule
- expected_input is the exact command to run.
- expected_output describes the expected terminal output realistically.
- validation_rule describes how to verify correctness in plain language.
- Assume common tools are preinstalled; do not add installation steps.

User request: %q

Return a JSON object of the form:
{"steps": [{"description": "...", "expected_input": "...", "expected_output": "...", "validation_rule": "..."}]}`,

		Coder: `You are a code generation assistant. Produce runnable code for one step of a plan.

Rules:
- Respond ONLY with a valid JSON object, no markdown, no text outside JSON.
- Required keys: code, language, reasoning, expected_output.
- The code must be directly runnable in the stated language.
- Prefer bash or zsh where possible.

Step to implement:
%s

Prior attempts for this step (empty on first call):
%s`,

		Debugger: `You are a debugging assistant. Analyze a failed code execution and provide a minimal, correct fix.

Rules:
- Return ONLY a valid JSON object, no markdown, no commentary.
- Required keys: fixed_code, language, reasoning, error_type, expected_output.
- error_type is one of syntax|runtime|environment|logic.
- Keep the fix minimal; keep the language unless the bug requires a change.

Step (goal and validation rule):
%s

Failing artifact:
%s

Reported outcome:
%s`,

		Summarizer: `You are an assistant specialized in summarizing workflows.

The user requested: %q

The workflow had the following steps and results:
%s

Write a concise final report: summarize each step and its outcome, highlight
key results, note any warnings or errors, and state the final outcome
(success, partial, or failure). Respond with plain text, no JSON.`,

		Validator: `You are a validation engine.
Rule: %s
Output to validate: %s

Return only a JSON object of the form:
{"is_valid": true/false, "reason": "short explanation"}`,
	}
}

// LoadPrompts returns the defaults merged with overrides from a YAML
// file. An empty path returns the defaults unchanged; a missing field in
// the file keeps its default.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()
	if path == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return prompts, fmt.Errorf("reading prompts file: %w", err)
	}

	var overrides Prompts
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return prompts, fmt.Errorf("parsing prompts file %s: %w", path, err)
	}

	if overrides.Planner != "" {
		prompts.Planner = overrides.Planner
	}
	if overrides.Coder != "" {
		prompts.Coder = overrides.Coder
	}
	if overrides.Debugger != "" {
		prompts.Debugger = overrides.Debugger
	}
	if overrides.Summarizer != "" {
		prompts.Summarizer = overrides.Summarizer
	}
	if overrides.Validator != "" {
		prompts.Validator = overrides.Validator
	}

	return prompts, nil
}
