package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"hermes/internal/analytics"
	"hermes/internal/conversation"
	"hermes/internal/intent"
)

// Payload is the serialized answer to one query.
type Payload struct {
	Query  string            `json:"query"`
	Intent intent.Intent     `json:"intent"`
	Result *analytics.Result `json:"result"`
	Steps  []string          `json:"steps"`
}

func (p *Pipeline) formatResponse(_ context.Context, st *State) {
	st.Trace("Formatted response payload")
	body, err := json.Marshal(Payload{
		Query:  st.Query,
		Intent: st.Intent,
		Result: st.Result,
		Steps:  st.Steps,
	})
	if err != nil {
		p.logger.Error().Err(err).Str("run_id", st.RunID).Msg("encode response")
		body, _ = json.Marshal(Payload{
			Query:  st.Query,
			Intent: st.Intent,
			Result: &analytics.Result{Summary: "Something went wrong while preparing the answer.", Intent: st.Intent},
			Steps:  st.Steps,
		})
	}
	st.Response = body
}

// TurnFromState extracts the memory entry the caller appends to its history.
// The insight is the first recommendation, else the first summary sentence.
func TurnFromState(st *State) conversation.Turn {
	turn := conversation.Turn{Query: st.Query, Intent: st.Intent}
	if st.Result == nil {
		return turn
	}
	turn.Summary = st.Result.Summary
	turn.Recommendations = append([]string(nil), st.Result.Recommendations...)
	if len(turn.Recommendations) > 0 {
		turn.Insight = turn.Recommendations[0]
	} else {
		turn.Insight = firstSentence(turn.Summary)
	}
	return turn
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ". "); i >= 0 {
		return s[:i+1]
	}
	return s
}
