package pipeline

import (
	"context"
	"errors"

	"hermes/internal/conversation"
	"hermes/internal/intent"
	"hermes/internal/llm"
)

const classifyHistoryTurns = 3

func (p *Pipeline) classifyIntent(ctx context.Context, st *State) {
	st.EnsureTrace()
	query := st.Query

	if intent.IsGratitude(query) {
		st.Merge(WithIntent(intent.Gratitude))
		st.Trace("Heuristic detected gratitude")
		return
	}
	if intent.IsGreeting(query) {
		st.Merge(WithIntent(intent.Greeting))
		st.Trace("Heuristic detected greeting")
		return
	}

	ambiguous := intent.IsAmbiguous(query)
	if ambiguous && len(st.History) > 0 {
		if prior, ok := reusableIntent(st.History); ok {
			st.Merge(WithIntent(prior))
			st.Trace("Reused prior intent '%s' for short follow-up", prior)
			return
		}
	}

	classified, err := p.capability.Classify(ctx, query, conversation.Recent(st.History, classifyHistoryTurns))
	if err == nil {
		if classified == intent.Analytics && ambiguous {
			st.Merge(WithIntent(intent.Clarify))
			st.Trace("LLM classified 'analytics' for an ambiguous query → clarify")
			return
		}
		st.Merge(WithIntent(classified))
		st.Trace("LLM classified intent '%s'", classified)
		return
	}

	if !errors.Is(err, llm.ErrUnavailable) {
		p.logger.Warn().Err(err).Str("run_id", st.RunID).Msg("intent classification failed")
	}
	fallback := intent.Fallback(query)
	st.Merge(WithIntent(fallback))
	st.Trace("LLM intent unavailable; keyword fallback → '%s'", fallback)
}

// reusableIntent returns the most recent prior intent that carries context.
func reusableIntent(history []conversation.Turn) (intent.Intent, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		in, ok := intent.Parse(string(history[i].Intent))
		if !ok || in == intent.Greeting || in == intent.Clarify {
			continue
		}
		return in, true
	}
	return "", false
}
