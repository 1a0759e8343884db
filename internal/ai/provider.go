package ai

import (
	"context"
	"fmt"
)

// Model completes a prompt with a language model
type Model interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// NewModel creates a model client based on the provider name
func NewModel(name, model string) (Model, error) {
	switch name {
	case "claude", "anthropic":
		return NewClaudeModel(model)
	case "openai", "gpt":
		return NewOpenAIModel(model)
	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: claude, openai)", name)
	}
}

// NewInterpreter builds the interpreter for a provider name. "rules" (or an
// empty name) selects the keyword interpreter; any model provider gets the
// keyword interpreter as its fallback.
func NewInterpreter(provider, model string) (Interpreter, error) {
	if provider == "" || provider == "rules" {
		return RuleInterpreter{}, nil
	}
	m, err := NewModel(provider, model)
	if err != nil {
		return nil, err
	}
	return &LLMInterpreter{Model: m, Fallback: RuleInterpreter{}}, nil
}
