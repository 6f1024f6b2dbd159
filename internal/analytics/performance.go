package analytics

import (
	"strings"

	"hermes/internal/dataset"
	"hermes/internal/intent"
	"hermes/internal/llm"
)

func routeFocus(field string, ascending bool) string {
	delay := strings.Contains(field, "delay")
	switch {
	case ascending && delay:
		return "lowest average delay"
	case !ascending && delay:
		return "highest delay"
	case ascending:
		return "best-performing"
	}
	return "highest"
}

func (r *runContext) route() Result {
	if !r.subset.HasColumn(dataset.ColumnRoute) {
		return Message(intent.Route, "No route data available.")
	}
	groups := groupBy(r.subset.Rows(), dataset.ColumnRoute)
	if len(groups) == 0 {
		return Message(intent.Route, "No route data available.")
	}

	plan := r.plan(llm.PlanRoute)
	field := plan.field("sort_field", FieldDelayedShipments)
	ascending := plan.ascending(false)
	label := plan.orDefault("metric_label", fieldLabels[field])
	title := plan.orDefault("chart_title", label+" by Route")
	focus := plan.orDefault("focus_phrase", routeFocus(field, ascending))

	sortGroups(groups, field, ascending)
	top := groups[0]
	value := FormatMetric(top.field(field))

	values := map[string]any{
		"period":              r.period,
		"top_label":           top.Label,
		"metric_label":        label,
		"metric_value":        value,
		"focus_phrase":        focus,
		"delayed_shipments":   top.Delayed,
		"total_shipments":     top.Total,
		"avg_delay_minutes":   Round2(top.AvgDelay),
		"total_delay_minutes": Round2(top.TotalDelay),
	}
	def := capitalize(focus) + " route for " + r.period + " by " + strings.ToLower(label) +
		" is " + top.Label + " (" + value + ")."
	summary := r.render(plan.text("summary_template"), values, def)

	rows := make([]map[string]any, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, statRow(dataset.ColumnRoute, g))
	}
	return Result{
		Summary: summary,
		Intent:  intent.Route,
		Chart:   barChart(title, "Route", label, field, groups),
		Table: &Table{
			Columns: []Column{
				{Key: dataset.ColumnRoute, Label: "Route"},
				{Key: FieldDelayedShipments, Label: "Delayed"},
				{Key: FieldTotalDelayMinutes, Label: "Total Delay (min)"},
				{Key: FieldAvgDelayMinutes, Label: "Avg Delay (min)"},
				{Key: FieldAvgDeliveryTime, Label: "Avg Delivery Time (days)"},
				{Key: FieldTotalShipments, Label: "Total Shipments"},
			},
			Rows: rows,
		},
	}
}

func (r *runContext) warehouse() Result {
	if !r.subset.HasColumn(dataset.ColumnWarehouse) {
		return Message(intent.Warehouse, "No warehouse data available.")
	}
	groups := groupBy(r.subset.Rows(), dataset.ColumnWarehouse)
	if len(groups) == 0 {
		return Message(intent.Warehouse, "No warehouse data available.")
	}

	plan := r.plan(llm.PlanWarehouse)
	field := plan.field("metric_field", FieldAvgDeliveryTime)
	label := plan.orDefault("metric_label", fieldLabels[field])
	ascending := plan.ascending(strings.HasPrefix(field, "avg"))
	focus := "highest"
	if ascending {
		focus = "best-performing"
	}
	focus = plan.orDefault("focus_phrase", focus)
	title := plan.orDefault("chart_title", label+" by Warehouse")

	threshold, hasThreshold := plan.number("delivery_time_threshold")
	if hasThreshold {
		kept := groups[:0]
		for _, g := range groups {
			if g.AvgDelivery > threshold {
				kept = append(kept, g)
			}
		}
		groups = kept
		r.note("Applied delivery time threshold " + FormatMetric(threshold) + " days")
	}
	if len(groups) == 0 {
		return Message(intent.Warehouse, "No warehouses matched threshold.")
	}

	sortGroups(groups, field, ascending)
	top := groups[0]
	value := FormatMetric(top.field(field))

	values := map[string]any{
		"period":            r.period,
		"top_label":         top.Label,
		"metric_label":      label,
		"metric_value":      value,
		"focus_phrase":      focus,
		"delayed_shipments": top.Delayed,
		"total_shipments":   top.Total,
	}
	extra := ""
	if hasThreshold {
		values["threshold"] = threshold
		extra = " above " + FormatMetric(threshold) + " days"
	}
	def := capitalize(focus) + " warehouse" + extra + " for " + r.period + " is " + top.Label +
		" with " + strings.ToLower(label) + " of " + value + "."
	summary := r.render(plan.text("summary_template"), values, def)

	rows := make([]map[string]any, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, statRow(dataset.ColumnWarehouse, g))
	}
	return Result{
		Summary: summary,
		Intent:  intent.Warehouse,
		Chart:   barChart(title, "Warehouse", label, field, groups),
		Table: &Table{
			Columns: []Column{
				{Key: dataset.ColumnWarehouse, Label: "Warehouse"},
				{Key: FieldAvgDeliveryTime, Label: "Avg Delivery (days)"},
				{Key: FieldAvgDelayMinutes, Label: "Avg Delay (min)"},
				{Key: FieldTotalDelayMinutes, Label: "Total Delay (min)"},
				{Key: FieldDelayedShipments, Label: "Delayed"},
				{Key: FieldTotalShipments, Label: "Total"},
			},
			Rows: rows,
		},
	}
}
