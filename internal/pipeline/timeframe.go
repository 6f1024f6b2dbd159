package pipeline

import (
	"context"
	"strings"
	"time"

	"hermes/internal/analytics"
	"hermes/internal/dataset"
	"hermes/internal/intent"
	"hermes/internal/llm"
)

var unitDays = map[string]int{
	"day":     1,
	"week":    7,
	"month":   30,
	"quarter": 90,
	"year":    365,
}

// nonAnalytic intents skip timeframe and filter resolution.
func nonAnalytic(in intent.Intent) bool {
	return in == intent.Greeting || in == intent.Gratitude || in == intent.Clarify
}

func (p *Pipeline) augmentTimeframe(ctx context.Context, st *State) {
	st.EnsureTrace()
	if nonAnalytic(st.Intent) {
		st.Trace("Skipped timeframe (non-analytic intent)")
		return
	}

	md := p.metadata(ctx, st)
	if tf := resolveTimeframe(md.Timeframe, st.Data); tf != nil {
		st.Merge(WithTimeframe(tf))
		st.Trace("Applied LLM timeframe %s → %s", tf.Start.Format(analytics.DayLayout), tf.End.Format(analytics.DayLayout))
		return
	}
	if tf, phrase := localTimeframe(st.Query, st.Data); tf != nil {
		st.Merge(WithTimeframe(tf))
		st.Trace("Applied local timeframe '%s' %s → %s", phrase, tf.Start.Format(analytics.DayLayout), tf.End.Format(analytics.DayLayout))
		return
	}
	st.Trace("No timeframe detected")
}

// UnitDays converts a relative unit to days. Plurals are accepted and an
// unknown unit counts as days.
func UnitDays(unit string) int {
	unit = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(unit)), "s")
	if d, ok := unitDays[unit]; ok {
		return d
	}
	return 1
}

func resolveTimeframe(hint *llm.TimeframeHint, data *dataset.Dataset) *dataset.Timeframe {
	if hint == nil {
		return nil
	}
	switch hint.Type {
	case llm.TimeframeRelative:
		amount := int(hint.Amount)
		if amount <= 0 {
			return nil
		}
		return trailing(data, amount*UnitDays(hint.Unit))
	case llm.TimeframeAbsolute:
		start, err := dataset.ParseDate(hint.Start)
		if err != nil {
			return nil
		}
		end, err := dataset.ParseDate(hint.End)
		if err != nil {
			return nil
		}
		if start.After(end) {
			start, end = end, start
		}
		return &dataset.Timeframe{Start: start, End: endOfDay(end)}
	}
	return nil
}

// trailing is the window of days ending at the dataset's latest date.
func trailing(data *dataset.Dataset, days int) *dataset.Timeframe {
	if days <= 0 {
		return nil
	}
	latest, ok := data.MaxDate()
	if !ok {
		return nil
	}
	return &dataset.Timeframe{Start: latest.AddDate(0, 0, -days), End: latest}
}

// endOfDay widens a bare calendar date so the whole day is included.
func endOfDay(t time.Time) time.Time {
	if !t.Equal(dataset.Day(t)) {
		return t
	}
	return t.Add(24*time.Hour - time.Nanosecond)
}

var monthNames = []string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

func localTimeframe(query string, data *dataset.Dataset) (*dataset.Timeframe, string) {
	norm := intent.Normalize(query)
	switch {
	case containsPhrase(norm, "last week"):
		return trailing(data, 7), "last week"
	case containsPhrase(norm, "last month"):
		return trailing(data, 30), "last month"
	}
	for i, name := range monthNames {
		phrase := name
		if name == "may" {
			phrase = "in may"
		}
		if !containsPhrase(norm, phrase) {
			continue
		}
		if tf := latestMonth(data, time.Month(i+1)); tf != nil {
			return tf, name
		}
	}
	return nil, ""
}

// latestMonth covers the whole of the most recent occurrence of month that
// has rows in the dataset.
func latestMonth(data *dataset.Dataset, month time.Month) *dataset.Timeframe {
	var found bool
	var latest time.Time
	for _, row := range data.Rows() {
		if row.Date.Month() != month {
			continue
		}
		if !found || row.Date.After(latest) {
			latest, found = row.Date, true
		}
	}
	if !found {
		return nil
	}
	start := time.Date(latest.Year(), month, 1, 0, 0, 0, 0, latest.Location())
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return &dataset.Timeframe{Start: start, End: end}
}

func containsPhrase(normalized, phrase string) bool {
	return strings.Contains(" "+normalized+" ", " "+phrase+" ")
}
