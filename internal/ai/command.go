// Package ai interprets voice commands against the current screen.
package ai

import (
	"context"
	"strings"

	"github.com/v0xg/voiceassist/internal/executor"
	"github.com/v0xg/voiceassist/internal/screen"
)

// ActionKind is what a command asks the assistant to do.
type ActionKind string

const (
	ActionClick    ActionKind = "click"
	ActionRead     ActionKind = "read"
	ActionScroll   ActionKind = "scroll"
	ActionType     ActionKind = "type"
	ActionDescribe ActionKind = "describe"
	ActionUnknown  ActionKind = "unknown"
)

// ParseActionKind maps a name to an ActionKind. Unrecognized names are
// ActionUnknown.
func ParseActionKind(s string) ActionKind {
	switch k := ActionKind(strings.ToLower(strings.TrimSpace(s))); k {
	case ActionClick, ActionRead, ActionScroll, ActionType, ActionDescribe:
		return k
	default:
		return ActionUnknown
	}
}

// Clarification is spoken when a command cannot be interpreted.
const Clarification = "I'm having trouble understanding. Could you rephrase that?"

// CommandResponse is the structured form of a voice command.
type CommandResponse struct {
	Action ActionKind `json:"action"`
	// TargetElementText should match the text of an element in the
	// snapshot; the executor tolerates a miss.
	TargetElementText string             `json:"targetElement,omitempty"`
	TextToSpeak       string             `json:"textToRead,omitempty"`
	TextToType        string             `json:"textToType,omitempty"`
	ScrollDirection   executor.Direction `json:"direction,omitempty"`
	// Explanation is diagnostic and never spoken.
	Explanation string `json:"explanation,omitempty"`
}

// Interpreter turns a command and the screen it was spoken against into a
// CommandResponse. Implementations never fail: internal errors become an
// ActionUnknown response with a clarification.
type Interpreter interface {
	Interpret(ctx context.Context, command string, snap *screen.Snapshot) CommandResponse
}

// InterpreterFunc adapts a function to Interpreter.
type InterpreterFunc func(ctx context.Context, command string, snap *screen.Snapshot) CommandResponse

func (f InterpreterFunc) Interpret(ctx context.Context, command string, snap *screen.Snapshot) CommandResponse {
	return f(ctx, command, snap)
}

func unknown(explanation string) CommandResponse {
	return CommandResponse{Action: ActionUnknown, TextToSpeak: Clarification, Explanation: explanation}
}
