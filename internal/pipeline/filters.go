package pipeline

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"

	"hermes/internal/dataset"
	"hermes/internal/intent"
)

const (
	maxMetadataHorizon = 365
	maxLocalHorizon    = 120
)

func (p *Pipeline) augmentFilters(ctx context.Context, st *State) {
	st.EnsureTrace()
	if nonAnalytic(st.Intent) {
		st.Trace("Skipped filters (non-analytic intent)")
		return
	}
	md := p.metadata(ctx, st)

	filters := dataset.Filters{}
	for _, col := range dataset.FilterColumns {
		if !st.Data.HasColumn(col) {
			continue
		}
		if v, ok := matchValue(st.Data.Distinct(col), md.Filters[col]); ok {
			filters[col] = v
		}
	}
	if len(filters) > 0 {
		st.Trace("Applied LLM filters: %s", describeFilters(filters))
	}

	local := dataset.Filters{}
	for _, col := range dataset.FilterColumns {
		if _, set := filters[col]; set || !st.Data.HasColumn(col) {
			continue
		}
		if v, ok := scanValue(st.Query, st.Data.Distinct(col)); ok {
			filters[col] = v
			local[col] = v
		}
	}
	if len(local) > 0 {
		st.Trace("Matched filters in query text: %s", describeFilters(local))
	}
	st.Merge(WithFilters(filters))

	if h := int(math.Min(md.HorizonDays, maxMetadataHorizon)); h >= 1 {
		st.Merge(WithHorizon(h))
		st.Trace("LLM forecast horizon set to %d days", st.HorizonDays)
		return
	}
	if st.Intent == intent.Prediction {
		if h, ok := LocalHorizon(st.Query); ok {
			st.Merge(WithHorizon(h))
			st.Trace("Detected forecast horizon of %d days in query", st.HorizonDays)
		}
	}
}

func describeFilters(f dataset.Filters) string {
	parts := make([]string, 0, len(f))
	for _, k := range f.Keys() {
		parts = append(parts, k+"="+f[k])
	}
	return strings.Join(parts, ", ")
}

// matchValue adopts the first candidate equal, ignoring case, to a known value.
func matchValue(values, candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	byKey := make(map[string]string, len(values))
	for _, v := range values {
		byKey[strings.ToLower(strings.TrimSpace(v))] = v
	}
	for _, c := range candidates {
		if v, ok := byKey[strings.ToLower(strings.TrimSpace(c))]; ok {
			return v, true
		}
	}
	return "", false
}

// scanValue finds a known value mentioned as whole words in the query. The
// none sentinel is never matched and the longest mention wins.
func scanValue(query string, values []string) (string, bool) {
	norm := scanText(query)
	best := ""
	for _, v := range values {
		if strings.EqualFold(v, dataset.NoneReason) {
			continue
		}
		phrase := scanText(v)
		if phrase == "" || !containsPhrase(norm, phrase) {
			continue
		}
		if len(v) > len(best) {
			best = v
		}
	}
	return best, best != ""
}

// scanText normalizes text for value scanning. Apostrophes split words so a
// possessive ("Route A's") still mentions the value.
func scanText(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(intent.Normalize(s), "'", " ")), " ")
}

var (
	numberWords = map[string]int{
		"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
		"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
	}

	amountPattern = `(\d+|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)`
	unitPattern   = `(day|week|month|quarter)s?`

	horizonPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bnext ` + amountPattern + ` ` + unitPattern + `\b`),
		regexp.MustCompile(`\bforecast (?:for )?(?:the )?(?:next )?` + amountPattern + ` ` + unitPattern + `\b`),
		regexp.MustCompile(`\b` + amountPattern + ` ` + unitPattern + ` ahead\b`),
	}

	horizonPhrases = []struct {
		phrase string
		days   int
	}{
		{"next week", 7},
		{"next month", 30},
		{"next quarter", 90},
	}
)

// LocalHorizon reads a forecast horizon from the query text, clamped to
// [1, 120] days.
func LocalHorizon(query string) (int, bool) {
	norm := intent.Normalize(query)
	for _, re := range horizonPatterns {
		m := re.FindStringSubmatch(norm)
		if m == nil {
			continue
		}
		amount, ok := numberWords[m[1]]
		if !ok {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			amount = min(n, maxLocalHorizon)
		}
		return clampHorizon(amount * UnitDays(m[2])), true
	}
	for _, hp := range horizonPhrases {
		if containsPhrase(norm, hp.phrase) {
			return hp.days, true
		}
	}
	return 0, false
}

func clampHorizon(days int) int {
	return min(max(days, 1), maxLocalHorizon)
}
