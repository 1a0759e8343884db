package executor

import (
	"fmt"
	"strings"
)

// Action represents a single operation against the live UI tree
type Action struct {
	Type      string    `json:"action"`              // click, type, scroll
	Target    string    `json:"target,omitempty"`    // Text to match (for click)
	Text      string    `json:"text,omitempty"`      // Text to enter (for type)
	Direction Direction `json:"direction,omitempty"` // up or down (for scroll)
}

// Direction is a scroll direction
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// ParseDirection accepts "up" and "down" in any case
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case Up:
		return Up, nil
	case Down:
		return Down, nil
	default:
		return "", fmt.Errorf("executor: unknown scroll direction %q", s)
	}
}

// Result describes a completed action
type Result struct {
	Action Action
	// Matched is the text of the node acted upon, if any
	Matched string
}
