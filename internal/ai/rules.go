package ai

import (
	"context"
	"strings"

	"github.com/v0xg/voiceassist/internal/executor"
	"github.com/v0xg/voiceassist/internal/screen"
)

// HelpText is spoken for commands no rule recognizes.
const HelpText = "I can help you click, scroll, read, or type. What would you like to do?"

// RuleInterpreter recognizes commands by keyword. It needs no network and
// serves as the fallback for model-backed interpreters.
type RuleInterpreter struct{}

// Interpret implements Interpreter.
func (RuleInterpreter) Interpret(_ context.Context, command string, snap *screen.Snapshot) CommandResponse {
	cmd := strings.ToLower(strings.TrimSpace(command))

	switch {
	case strings.Contains(cmd, "what") && (strings.Contains(cmd, "screen") || strings.Contains(cmd, "see")):
		return CommandResponse{Action: ActionDescribe, Explanation: "Describing screen"}

	case containsAny(cmd, "click", "tap", "press"):
		return CommandResponse{
			Action:            ActionClick,
			TargetElementText: clickTarget(cmd, snap),
			Explanation:       "Clicking element",
		}

	case strings.Contains(cmd, "scroll down"):
		return CommandResponse{Action: ActionScroll, ScrollDirection: executor.Down, Explanation: "Scrolling down"}

	case strings.Contains(cmd, "scroll up"):
		return CommandResponse{Action: ActionScroll, ScrollDirection: executor.Up, Explanation: "Scrolling up"}

	case containsAny(cmd, "type", "enter"):
		return CommandResponse{
			Action:      ActionType,
			TextToType:  textToType(command),
			Explanation: "Typing text",
		}

	case strings.Contains(cmd, "read"):
		return CommandResponse{Action: ActionRead, Explanation: "Reading content"}

	default:
		return CommandResponse{Action: ActionUnknown, TextToSpeak: HelpText, Explanation: "Unknown command"}
	}
}

// clickTarget prefers the text of an element named in the command, then
// whatever follows the verb.
func clickTarget(cmd string, snap *screen.Snapshot) string {
	if snap != nil {
		for _, e := range snap.Elements {
			if e.Text != "" && strings.Contains(cmd, strings.ToLower(e.Text)) {
				return e.Text
			}
		}
	}
	for _, verb := range []string{"click on ", "tap on ", "press on ", "click ", "tap ", "press "} {
		if _, after, ok := strings.Cut(cmd, verb); ok {
			return strings.TrimSpace(strings.TrimPrefix(after, "the "))
		}
	}
	return ""
}

// textToType keeps the original casing of what follows "type" or "enter".
func textToType(command string) string {
	lower := strings.ToLower(command)
	for _, verb := range []string{"type ", "enter "} {
		if i := strings.Index(lower, verb); i >= 0 {
			return strings.TrimSpace(command[i+len(verb):])
		}
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
