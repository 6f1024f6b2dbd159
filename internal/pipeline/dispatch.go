package pipeline

import (
	"context"
	"errors"
	"strings"

	"hermes/internal/analytics"
	"hermes/internal/conversation"
	"hermes/internal/forecast"
	"hermes/internal/intent"
	"hermes/internal/llm"
)

// Fixed replies.
const (
	GreetingReply  = "Hello! I am Hermes. Ask me about shipments, delays, or predictions."
	GratitudeReply = "Glad to help."
	ClarifyReply   = "Could you clarify whether you want route, warehouse, delay, or forecast insights?"
)

const replyHistoryTurns = 3

var conversationalPrefix = map[intent.Intent]string{
	intent.Conversation: "Here's a textual overview: ",
	intent.TextOnly:     "Summary: ",
}

func (p *Pipeline) runIntent(ctx context.Context, st *State) {
	st.EnsureTrace()
	switch st.Intent {
	case intent.Gratitude:
		st.Merge(WithResult(analytics.Message(intent.Gratitude, GratitudeReply)))
	case intent.Greeting:
		st.Merge(WithResult(analytics.Message(intent.Greeting, GreetingReply)))
	case intent.Clarify:
		st.Merge(WithResult(analytics.Message(intent.Clarify, p.clarify(ctx, st))))
	case intent.Conversation, intent.TextOnly:
		base := intent.Underlying(st.Query)
		inner := p.analyze(ctx, st, base)
		st.Merge(WithResult(analytics.Message(st.Intent, conversationalPrefix[st.Intent]+inner.Summary)))
		st.Trace("Conversation mapped to analytic intent '%s'", base)
	default:
		st.Merge(WithResult(p.analyze(ctx, st, st.Intent)))
	}
}

// analyze runs the forecast or aggregation engine for an explicit intent.
func (p *Pipeline) analyze(ctx context.Context, st *State, in intent.Intent) analytics.Result {
	if in == intent.Prediction {
		res := forecast.Predict(forecast.Request{
			Data:      st.Data,
			Timeframe: st.Timeframe,
			Filters:   st.Filters,
			Horizon:   st.HorizonDays,
		})
		st.Trace("Forecast generated for %d days", st.HorizonDays)
		return res
	}
	res, notes := p.engine.Run(ctx, analytics.Request{
		Query:     st.Query,
		Intent:    in,
		Data:      st.Data,
		Timeframe: st.Timeframe,
		Filters:   st.Filters,
	})
	for _, n := range notes {
		st.Trace("%s", n)
	}
	st.Trace("Analytics computed for intent '%s'", in)
	return res
}

func (p *Pipeline) clarify(ctx context.Context, st *State) string {
	reply, err := p.capability.GenerateReply(ctx, st.Query, conversation.Recent(st.History, replyHistoryTurns))
	if err == nil && strings.TrimSpace(reply) != "" {
		st.Trace("LLM clarification generated")
		return reply
	}
	if err != nil && !errors.Is(err, llm.ErrUnavailable) {
		p.logger.Warn().Err(err).Str("run_id", st.RunID).Msg("clarification reply failed")
	}
	st.Trace("Clarification reply unavailable; using fixed prompt")
	return ClarifyReply
}
