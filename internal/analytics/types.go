// Package analytics computes grouped statistics over the shipment dataset
// and renders them as a summary, a chart specification and a table.
package analytics

import (
	"hermes/internal/intent"
)

// Result is the per-intent payload returned to the caller. Chart and Table
// serialize as null when absent.
type Result struct {
	Summary         string        `json:"summary"`
	Intent          intent.Intent `json:"intent,omitempty"`
	Chart           *Chart        `json:"chart"`
	Table           *Table        `json:"table"`
	Recommendations []string      `json:"recommendations,omitempty"`
	Metrics         *Metrics      `json:"metrics,omitempty"`
}

// Message builds a text-only result.
func Message(in intent.Intent, summary string) Result {
	return Result{Summary: summary, Intent: in}
}

// Chart is a render-agnostic chart specification.
type Chart struct {
	Type         string       `json:"type"`
	Title        string       `json:"title"`
	XLabel       string       `json:"x_label,omitempty"`
	YLabel       string       `json:"y_label,omitempty"`
	Data         []ChartPoint `json:"data"`
	DatasetLabel string       `json:"dataset_label,omitempty"`
}

// ChartPoint is one labelled value. IsForecast is only set on forecast charts.
type ChartPoint struct {
	Label      string  `json:"label"`
	Value      float64 `json:"value"`
	Tooltip    string  `json:"tooltip,omitempty"`
	IsForecast *bool   `json:"isForecast,omitempty"`
}

// Table carries tabular rows keyed by column key.
type Table struct {
	Columns  []Column         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	Forecast []ForecastPoint  `json:"forecast,omitempty"`
}

// Column describes one table column.
type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// ForecastPoint is one projected day.
type ForecastPoint struct {
	Date              string  `json:"date"`
	PredictedAvgDelay float64 `json:"predicted_avg_delay"`
}

// Metrics is the machine-readable block attached to forecasts.
type Metrics struct {
	ForecastHorizonDays int        `json:"forecast_horizon_days"`
	EnsembleEstimates   []Estimate `json:"ensemble_estimates"`
}

// Estimate is the predicted delay for one route, warehouse and reason combination.
type Estimate struct {
	Route                 string  `json:"route"`
	Warehouse             string  `json:"warehouse"`
	DelayReason           string  `json:"delay_reason"`
	PredictedDelayMinutes float64 `json:"predicted_delay_minutes"`
}
