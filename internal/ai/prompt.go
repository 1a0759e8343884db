package ai

import (
	"fmt"
	"strings"

	"github.com/v0xg/voiceassist/internal/screen"
)

// maxPromptElements bounds the screen context sent to the model
const maxPromptElements = 30

const systemPrompt = `You are an accessibility assistant helping users navigate apps by voice.

You will receive:
1. The current screen: the app package and its UI elements
2. A command the user spoke

Respond with one JSON object:
{
  "action": "click|read|scroll|type|describe|unknown",
  "targetElement": "exact text of element to interact with",
  "textToRead": "text to speak to user",
  "textToType": "text to type if action is type",
  "direction": "up or down if scrolling",
  "explanation": "brief explanation"
}

Rules:
- Use "click" if the user wants to tap, press or select something
- Use "read" if the user asks to read something
- Use "scroll" if the user wants to scroll up or down
- Use "type" if the user wants to enter text
- Use "describe" to explain what is on screen
- For "click", targetElement must match text from the UI elements list EXACTLY
- Leave textToRead empty for "read" and "describe" unless you have something specific to say
- Keep textToRead concise and helpful

Respond ONLY with the JSON object, no explanation or markdown.`

func buildUserPrompt(command string, snap *screen.Snapshot) string {
	var b strings.Builder
	b.WriteString("CURRENT SCREEN:\n")
	pkg := "unknown"
	if snap != nil {
		pkg = snap.Package
	}
	b.WriteString("App: " + pkg + "\n")
	b.WriteString("UI Elements:\n")

	n := 0
	if snap != nil {
		for _, e := range snap.Elements {
			if n >= maxPromptElements {
				break
			}
			if e.Text == "" && e.ContentDescription == "" {
				continue
			}
			n++
			var parts []string
			if e.Text != "" {
				parts = append(parts, fmt.Sprintf("Text: %q", e.Text))
			}
			if e.ContentDescription != "" {
				parts = append(parts, fmt.Sprintf("Description: %q", e.ContentDescription))
			}
			if e.Clickable {
				parts = append(parts, "[Clickable]")
			}
			if e.Editable {
				parts = append(parts, "[Editable]")
			}
			b.WriteString("- " + strings.Join(parts, " ") + "\n")
		}
	}
	b.WriteString(fmt.Sprintf("\nUSER COMMAND: %q", command))
	return b.String()
}
