package analytics

import (
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"hermes/internal/dataset"
)

// Fixed sentences shared by several engines.
const (
	NoMatchSummary = "I could not find any matching shipments for the requested filters."
	periodFallback = "the selected period"
	periodLayout   = "Jan 02, 2006"
	DayLayout      = "2006-01-02"
)

// DescribePeriod renders a timeframe for summaries.
func DescribePeriod(tf *dataset.Timeframe) string {
	if tf == nil || tf.Start.IsZero() || tf.End.IsZero() {
		return periodFallback
	}
	return tf.Start.Format(periodLayout) + " to " + tf.End.Format(periodLayout)
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// FormatMetric prints whole numbers without decimals and everything else
// rounded to two places.
func FormatMetric(v float64) string {
	r := Round2(v)
	if r == math.Trunc(r) && math.Abs(r) < 1e15 {
		return strconv.FormatInt(int64(r), 10)
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}
