package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/v0xg/voiceassist/internal/executor"
	"github.com/v0xg/voiceassist/internal/screen"
)

// LLMInterpreter asks a Model to interpret commands. When the model call
// fails and Fallback is set, Fallback answers instead; a reply that cannot
// be parsed always becomes ActionUnknown with a clarification.
type LLMInterpreter struct {
	Model    Model
	Fallback Interpreter
	Log      *slog.Logger
}

// Interpret implements Interpreter.
func (l *LLMInterpreter) Interpret(ctx context.Context, command string, snap *screen.Snapshot) CommandResponse {
	log := l.Log
	if log == nil {
		log = slog.Default()
	}

	reply, err := l.Model.Complete(ctx, systemPrompt, buildUserPrompt(command, snap))
	if err != nil {
		log.Warn("ai: model call failed", "error", err)
		if l.Fallback != nil {
			return l.Fallback.Interpret(ctx, command, snap)
		}
		return unknown("model error")
	}

	resp, err := parseResponseJSON(reply)
	if err != nil {
		log.Warn("ai: unparseable model reply", "error", err, "reply", reply)
		return unknown("parse error")
	}
	return resp
}

// wireResponse mirrors the JSON object the model is asked to produce
type wireResponse struct {
	Action        string `json:"action"`
	TargetElement string `json:"targetElement"`
	TextToRead    string `json:"textToRead"`
	TextToType    string `json:"textToType"`
	Direction     string `json:"direction"`
	Explanation   string `json:"explanation"`
}

// parseResponseJSON extracts and parses a JSON object from a response that may contain surrounding text
func parseResponseJSON(response string) (CommandResponse, error) {
	var w wireResponse
	if err := json.Unmarshal([]byte(response), &w); err != nil {
		// Find JSON object in response (look for { ... })
		start := strings.Index(response, "{")
		if start == -1 {
			return CommandResponse{}, fmt.Errorf("no JSON object found in response")
		}

		// Find matching closing brace, skipping braces inside strings
		depth := 0
		end := -1
		inString, escaped := false, false
		for i := start; i < len(response) && end == -1; i++ {
			c := response[i]
			switch {
			case escaped:
				escaped = false
			case inString && c == '\\':
				escaped = true
			case c == '"':
				inString = !inString
			case inString:
			case c == '{':
				depth++
			case c == '}':
				depth--
				if depth == 0 {
					end = i + 1
				}
			}
		}
		if end == -1 {
			return CommandResponse{}, fmt.Errorf("no matching closing brace found")
		}

		if err := json.Unmarshal([]byte(response[start:end]), &w); err != nil {
			return CommandResponse{}, fmt.Errorf("failed to parse extracted JSON: %w", err)
		}
	}

	resp := CommandResponse{
		Action:            ParseActionKind(w.Action),
		TargetElementText: strings.TrimSpace(w.TargetElement),
		TextToSpeak:       strings.TrimSpace(w.TextToRead),
		TextToType:        w.TextToType,
		Explanation:       w.Explanation,
	}
	if dir, err := executor.ParseDirection(w.Direction); err == nil {
		resp.ScrollDirection = dir
	}
	return resp, nil
}
