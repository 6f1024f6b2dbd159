// Package forecast projects average delay forward and ranks route, warehouse
// and delay reason combinations by expected delay.
package forecast

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"hermes/internal/analytics"
	"hermes/internal/dataset"
	"hermes/internal/intent"
)

const (
	// DefaultHorizonDays is used when no horizon was resolved.
	DefaultHorizonDays = 7
	// MinHistoryDays is the shortest daily series a trend is fitted to.
	MinHistoryDays = 3

	maxEstimates       = 5
	maxRecommendations = 3

	notEnoughHistory = "I need at least 3 days of delay history to project forward."
)

// Request is one forecast run.
type Request struct {
	Data      *dataset.Dataset
	Timeframe *dataset.Timeframe
	Filters   dataset.Filters
	Horizon   int
}

// Predict fits a linear trend to the daily average delay of the filtered
// data and projects it Horizon days forward. Ensemble estimates, the
// recommendations and the risk note are built from the timeframe-only data.
func Predict(req Request) analytics.Result {
	horizon := req.Horizon
	if horizon < 1 {
		horizon = DefaultHorizonDays
	}
	empty := func(summary string) analytics.Result {
		return analytics.Result{
			Summary:         summary,
			Intent:          intent.Prediction,
			Recommendations: []string{},
			Metrics:         &analytics.Metrics{ForecastHorizonDays: horizon, EnsembleEstimates: []analytics.Estimate{}},
		}
	}

	subset := req.Data.Apply(req.Timeframe, req.Filters)
	if subset.Len() == 0 {
		return empty(analytics.NoMatchSummary)
	}
	days := analytics.Daily(subset.Rows())
	if len(days) < MinHistoryDays {
		return empty(notEnoughHistory)
	}

	xs := make([]float64, len(days))
	ys := make([]float64, len(days))
	for i, d := range days {
		xs[i] = ordinal(d.Day)
		ys[i] = d.AvgDelay()
	}
	intercept, slope := stat.LinearRegression(xs, ys, nil, false)

	last := days[len(days)-1].Day
	projected := make([]analytics.ForecastPoint, 0, horizon)
	var window float64
	for i := 1; i <= horizon; i++ {
		next := last.AddDate(0, 0, i)
		value := math.Max(intercept+slope*ordinal(next), 0)
		window += value
		projected = append(projected, analytics.ForecastPoint{
			Date:              next.Format(analytics.DayLayout),
			PredictedAvgDelay: analytics.Round2(value),
		})
	}
	window /= float64(horizon)

	base := req.Data.Apply(req.Timeframe, nil)
	estimates := Ensemble(base, req.Filters)
	var recommendations []string
	for i := 0; i < len(estimates) && i < maxRecommendations; i++ {
		recommendations = append(recommendations, Recommendation(estimates[i]))
	}
	if len(estimates) > maxEstimates {
		estimates = estimates[:maxEstimates]
	}

	parts := []string{fmt.Sprintf("Projected average delay over the next %s is %.1f minutes per shipment.", DescribeHorizon(horizon), window)}
	if len(req.Filters) > 0 {
		applied := make([]string, 0, len(req.Filters))
		for _, k := range req.Filters.Keys() {
			applied = append(applied, k+"="+req.Filters[k])
		}
		parts = append(parts, "Filters applied: "+strings.Join(applied, ", ")+".")
	}
	if len(recommendations) > 0 {
		parts = append(parts, "Top recommendation: "+recommendations[0])
	}
	if note := RiskNote(base); note != "" {
		parts = append(parts, note)
	}

	points := make([]analytics.ChartPoint, 0, len(days)+len(projected))
	rows := make([]map[string]any, 0, len(days))
	for _, d := range days {
		label := d.Day.Format(analytics.DayLayout)
		points = append(points, analytics.ChartPoint{Label: label, Value: analytics.Round2(d.AvgDelay()), IsForecast: flag(false)})
		rows = append(rows, map[string]any{"date": label, "avg_delay": analytics.Round2(d.AvgDelay())})
	}
	for _, p := range projected {
		points = append(points, analytics.ChartPoint{Label: p.Date, Value: p.PredictedAvgDelay, IsForecast: flag(true)})
	}
	if recommendations == nil {
		recommendations = []string{}
	}
	if estimates == nil {
		estimates = []analytics.Estimate{}
	}

	return analytics.Result{
		Summary: strings.Join(parts, " "),
		Intent:  intent.Prediction,
		Chart: &analytics.Chart{
			Type:         "line",
			Title:        "Average Delay Forecast",
			XLabel:       "Date",
			YLabel:       "Avg Delay (min)",
			Data:         points,
			DatasetLabel: "Avg Delay",
		},
		Table: &analytics.Table{
			Columns: []analytics.Column{
				{Key: "date", Label: "Date"},
				{Key: "avg_delay", Label: "Actual Avg Delay"},
			},
			Rows:     rows,
			Forecast: projected,
		},
		Recommendations: recommendations,
		Metrics:         &analytics.Metrics{ForecastHorizonDays: horizon, EnsembleEstimates: estimates},
	}
}

// ordinal counts whole days since the Unix epoch for the calendar date of t.
func ordinal(t time.Time) float64 {
	y, m, d := t.Date()
	return float64(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

func flag(b bool) *bool { return &b }

// DescribeHorizon words a day count as months, weeks or days.
func DescribeHorizon(days int) string {
	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return strconv.Itoa(n) + " " + unit + "s"
	}
	switch {
	case days == 0:
		return "0 days"
	case days%30 == 0:
		return plural(days/30, "month")
	case days%7 == 0:
		return plural(days/7, "week")
	}
	return plural(days, "day")
}

// Recommendation phrases one ensemble estimate.
func Recommendation(e analytics.Estimate) string {
	route := e.Route
	if !strings.HasPrefix(strings.ToLower(route), "route") {
		route = "Route " + route
	}
	clause := "watch for " + strings.ToLower(e.DelayReason) + " delays"
	if strings.EqualFold(e.DelayReason, dataset.NoneReason) {
		clause = "minimal weather risk"
	}
	return fmt.Sprintf("%s via %s → ~%.1f min; %s.", route, e.Warehouse, e.PredictedDelayMinutes, clause)
}

// RiskNote names the delay reason with the highest mean delay among delayed
// rows, or returns "" when there is none.
func RiskNote(data *dataset.Dataset) string {
	if !data.HasColumn(dataset.ColumnDelayReason) {
		return ""
	}
	type acc struct {
		sum float64
		n   int
	}
	byReason := map[string]*acc{}
	for _, row := range data.Rows() {
		if !row.Delayed() || row.DelayReason == "" {
			continue
		}
		a, ok := byReason[row.DelayReason]
		if !ok {
			a = &acc{}
			byReason[row.DelayReason] = a
		}
		a.sum += row.DelayMinutes
		a.n++
	}
	best, bestMean := "", math.Inf(-1)
	for reason, a := range byReason {
		m := a.sum / float64(a.n)
		if m > bestMean || (m == bestMean && reason < best) {
			best, bestMean = reason, m
		}
	}
	if best == "" {
		return ""
	}
	return fmt.Sprintf("Primary disruption driver: %s (~%.1f minutes when it occurs).", best, bestMean)
}
