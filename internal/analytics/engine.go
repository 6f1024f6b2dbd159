package analytics

import (
	"context"
	"errors"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"hermes/internal/dataset"
	"hermes/internal/intent"
	"hermes/internal/llm"
)

// PlanSource supplies untrusted aggregation plans.
type PlanSource interface {
	GeneratePlan(ctx context.Context, kind llm.PlanKind, query string) (map[string]any, error)
}

// Request is one engine invocation. Intent selects the aggregation and is
// passed explicitly so conversational replies can borrow an analytic intent.
type Request struct {
	Query     string
	Intent    intent.Intent
	Data      *dataset.Dataset
	Timeframe *dataset.Timeframe
	Filters   dataset.Filters
}

// Engine runs the per-intent aggregations.
type Engine struct {
	plans  PlanSource
	logger zerolog.Logger
}

// NewEngine builds an Engine. A nil plans source behaves as unavailable.
func NewEngine(plans PlanSource, logger zerolog.Logger) *Engine {
	if plans == nil {
		plans = llm.Disabled{}
	}
	return &Engine{plans: plans, logger: logger.With().Str("component", "analytics").Logger()}
}

// Run applies the request's timeframe and filters and dispatches to the
// aggregation for req.Intent; anything unrecognized gets the overview. The
// returned notes describe fallbacks taken along the way.
func (e *Engine) Run(ctx context.Context, req Request) (Result, []string) {
	subset := req.Data.Apply(req.Timeframe, req.Filters)
	if subset.Len() == 0 {
		return Message(req.Intent, NoMatchSummary), nil
	}
	run := &runContext{ctx: ctx, engine: e, req: req, subset: subset, period: DescribePeriod(req.Timeframe)}
	var res Result
	switch req.Intent {
	case intent.Route:
		res = run.route()
	case intent.Warehouse:
		res = run.warehouse()
	case intent.DelayReason:
		res = run.delayReasons()
	case intent.Delay:
		res = run.delayTrend()
	default:
		res = run.overview()
	}
	return res, run.notes
}

type runContext struct {
	ctx    context.Context
	engine *Engine
	req    Request
	subset *dataset.Dataset
	period string
	notes  []string
}

func (r *runContext) note(msg string) {
	r.notes = append(r.notes, msg)
}

// plan fetches a plan; failures degrade to the empty plan.
func (r *runContext) plan(kind llm.PlanKind) Plan {
	raw, err := r.engine.plans.GeneratePlan(r.ctx, kind, r.req.Query)
	if err != nil {
		if !errors.Is(err, llm.ErrUnavailable) {
			r.engine.logger.Debug().Err(err).Str("plan", string(kind)).Msg("plan rejected")
		}
		r.note("No " + string(kind) + " plan available; using defaults")
		return nil
	}
	return Plan(raw)
}

// groupStats is the metric set shared by the route and warehouse engines.
type groupStats struct {
	Label       string
	Delayed     int
	Total       int
	TotalDelay  float64
	AvgDelay    float64
	AvgDelivery float64
}

func (g groupStats) field(name string) float64 {
	switch name {
	case FieldDelayedShipments:
		return float64(g.Delayed)
	case FieldTotalDelayMinutes:
		return g.TotalDelay
	case FieldAvgDelayMinutes:
		return g.AvgDelay
	case FieldAvgDeliveryTime:
		return g.AvgDelivery
	case FieldTotalShipments:
		return float64(g.Total)
	}
	return 0
}

func (g groupStats) tooltip() string {
	return "Delayed " + strconv.Itoa(g.Delayed) + " / Total " + strconv.Itoa(g.Total)
}

// groupBy aggregates rows by a categorical column, skipping blank values.
// Groups come back sorted by label.
func groupBy(rows []dataset.Shipment, column string) []groupStats {
	index := map[string]int{}
	var groups []groupStats
	var delivery []float64
	for _, row := range rows {
		key := row.Value(column)
		if key == "" {
			continue
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, groupStats{Label: key})
			delivery = append(delivery, 0)
		}
		g := &groups[i]
		g.Total++
		g.TotalDelay += row.DelayMinutes
		delivery[i] += row.DeliveryTime
		if row.Delayed() {
			g.Delayed++
		}
	}
	for i := range groups {
		groups[i].AvgDelay = groups[i].TotalDelay / float64(groups[i].Total)
		groups[i].AvgDelivery = delivery[i] / float64(groups[i].Total)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Label < groups[j].Label })
	return groups
}

func sortGroups(groups []groupStats, field string, ascending bool) {
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i].field(field), groups[j].field(field)
		if ascending {
			return a < b
		}
		return a > b
	})
}

func statRow(keyColumn string, g groupStats) map[string]any {
	return map[string]any{
		keyColumn:              g.Label,
		FieldDelayedShipments:  g.Delayed,
		FieldTotalDelayMinutes: Round2(g.TotalDelay),
		FieldAvgDelayMinutes:   Round2(g.AvgDelay),
		FieldAvgDeliveryTime:   Round2(g.AvgDelivery),
		FieldTotalShipments:    g.Total,
	}
}

func barChart(title, xLabel, metricLabel, field string, groups []groupStats) *Chart {
	points := make([]ChartPoint, 0, len(groups))
	for _, g := range groups {
		points = append(points, ChartPoint{
			Label:   g.Label,
			Value:   Round2(g.field(field)),
			Tooltip: g.tooltip(),
		})
	}
	return &Chart{
		Type:         "bar",
		Title:        title,
		XLabel:       xLabel,
		YLabel:       metricLabel,
		Data:         points,
		DatasetLabel: metricLabel,
	}
}

// render fills a plan template, falling back to def on any error.
func (r *runContext) render(tmpl string, values map[string]any, def string) string {
	if tmpl == "" {
		return def
	}
	out, err := RenderTemplate(tmpl, values)
	if err != nil {
		r.note("Summary template discarded: " + err.Error())
		return def
	}
	return out
}
