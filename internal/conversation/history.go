// Package conversation holds per-connection turn memory.
package conversation

import "hermes/internal/intent"

// Turn summarizes one answered query for later context reuse.
type Turn struct {
	Query           string        `json:"query"`
	Intent          intent.Intent `json:"intent"`
	Summary         string        `json:"summary"`
	Insight         string        `json:"insight,omitempty"`
	Recommendations []string      `json:"recommendations,omitempty"`
}

// History is append-only turn memory owned by one connection. It is not safe
// for concurrent use; each connection keeps its own.
type History struct {
	turns []Turn
	limit int
}

// NewHistory returns a history keeping at most limit turns (0 means unbounded).
func NewHistory(limit int) *History {
	return &History{limit: limit}
}

// Append records a turn, dropping the oldest entries past the limit.
func (h *History) Append(t Turn) {
	h.turns = append(h.turns, t)
	if h.limit > 0 && len(h.turns) > h.limit {
		h.turns = append([]Turn(nil), h.turns[len(h.turns)-h.limit:]...)
	}
}

// Turns returns a copy of every retained turn, oldest first.
func (h *History) Turns() []Turn {
	if h == nil {
		return nil
	}
	return append([]Turn(nil), h.turns...)
}

// Len reports the retained turn count.
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.turns)
}

// Recent returns the last n turns of a slice, oldest first.
func Recent(turns []Turn, n int) []Turn {
	if n <= 0 || len(turns) == 0 {
		return nil
	}
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
