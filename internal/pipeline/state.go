package pipeline

import (
	"fmt"

	"github.com/google/uuid"

	"hermes/internal/analytics"
	"hermes/internal/conversation"
	"hermes/internal/dataset"
	"hermes/internal/intent"
	"hermes/internal/llm"
)

// DefaultHorizonDays is the forecast horizon before any resolution runs.
const DefaultHorizonDays = 7

// State is the record threaded through every stage of one run.
type State struct {
	RunID       string
	Query       string
	History     []conversation.Turn
	Data        *dataset.Dataset
	Intent      intent.Intent
	Timeframe   *dataset.Timeframe
	Filters     dataset.Filters
	HorizonDays int
	Result      *analytics.Result
	Response    []byte
	Steps       []string

	metadata *llm.Metadata
}

// NewState starts a run. history is read, never modified.
func NewState(query string, history []conversation.Turn, data *dataset.Dataset) *State {
	if data == nil {
		data = dataset.Empty()
	}
	st := &State{
		RunID:       uuid.NewString(),
		Query:       query,
		History:     history,
		Data:        data,
		Filters:     dataset.Filters{},
		HorizonDays: DefaultHorizonDays,
	}
	return st.EnsureTrace()
}

// EnsureTrace initializes the trace log if needed.
func (s *State) EnsureTrace() *State {
	if s.Steps == nil {
		s.Steps = []string{}
	}
	return s
}

// Trace appends one line to the trace log.
func (s *State) Trace(format string, args ...any) {
	s.EnsureTrace()
	s.Steps = append(s.Steps, fmt.Sprintf(format, args...))
}

// Field sets one state field inside Merge.
type Field func(*State)

func WithIntent(in intent.Intent) Field { return func(s *State) { s.Intent = in } }

func WithTimeframe(tf *dataset.Timeframe) Field { return func(s *State) { s.Timeframe = tf } }

func WithFilters(f dataset.Filters) Field { return func(s *State) { s.Filters = f } }

// WithHorizon clamps the horizon to [1, 365].
func WithHorizon(days int) Field {
	return func(s *State) { s.HorizonDays = min(max(days, 1), 365) }
}

func WithResult(r analytics.Result) Field { return func(s *State) { s.Result = &r } }

// Merge overwrites the given fields and returns the state.
func (s *State) Merge(fields ...Field) *State {
	for _, f := range fields {
		f(s)
	}
	return s
}
