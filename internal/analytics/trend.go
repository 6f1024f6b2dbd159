package analytics

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"hermes/internal/dataset"
	"hermes/internal/intent"
	"hermes/internal/llm"
	"hermes/internal/metrics"
)

type reasonStats struct {
	reason     string
	incidents  int
	totalDelay float64
}

func (r *runContext) delayReasons() Result {
	counts := map[string]*reasonStats{}
	if r.subset.HasColumn(dataset.ColumnDelayReason) {
		for _, row := range r.subset.Rows() {
			if !row.Delayed() || row.DelayReason == "" {
				continue
			}
			s, ok := counts[row.DelayReason]
			if !ok {
				s = &reasonStats{reason: row.DelayReason}
				counts[row.DelayReason] = s
			}
			s.incidents++
			s.totalDelay += row.DelayMinutes
		}
	}
	if len(counts) == 0 {
		return Message(intent.DelayReason, "No delayed shipments found for "+r.period+".")
	}
	ranked := make([]*reasonStats, 0, len(counts))
	for _, s := range counts {
		ranked = append(ranked, s)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].incidents != ranked[j].incidents {
			return ranked[i].incidents > ranked[j].incidents
		}
		return ranked[i].reason < ranked[j].reason
	})

	summary := "Total delayed shipments by reason: "
	points := make([]ChartPoint, 0, len(ranked))
	rows := make([]map[string]any, 0, len(ranked))
	for i, s := range ranked {
		if i > 0 {
			summary += ", "
		}
		summary += s.reason + " (" + strconv.Itoa(s.incidents) + ")"
		points = append(points, ChartPoint{
			Label:   s.reason,
			Value:   float64(s.incidents),
			Tooltip: fmt.Sprintf("Total delay: %d minutes", int(s.totalDelay)),
		})
		rows = append(rows, map[string]any{
			dataset.ColumnDelayReason: s.reason,
			"incidents":               s.incidents,
			FieldTotalDelayMinutes:    Round2(s.totalDelay),
		})
	}
	return Result{
		Summary: summary,
		Intent:  intent.DelayReason,
		Chart:   &Chart{Type: "pie", Title: "Delay Incidents by Reason", Data: points},
		Table: &Table{
			Columns: []Column{
				{Key: dataset.ColumnDelayReason, Label: "Delay Reason"},
				{Key: "incidents", Label: "Incidents"},
				{Key: FieldTotalDelayMinutes, Label: "Total Delay (min)"},
			},
			Rows: rows,
		},
	}
}

// DayStats aggregates one calendar day of rows.
type DayStats struct {
	Day        time.Time
	Count      int
	Delayed    int
	TotalDelay float64
}

// AvgDelay is the mean delay of the day.
func (d DayStats) AvgDelay() float64 { return d.TotalDelay / float64(d.Count) }

// Daily groups rows by calendar day in ascending order.
func Daily(rows []dataset.Shipment) []DayStats {
	index := map[time.Time]int{}
	var days []DayStats
	for _, row := range rows {
		day := row.Day()
		i, ok := index[day]
		if !ok {
			i = len(days)
			index[day] = i
			days = append(days, DayStats{Day: day})
		}
		days[i].Count++
		days[i].TotalDelay += row.DelayMinutes
		if row.Delayed() {
			days[i].Delayed++
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Day.Before(days[j].Day) })
	return days
}

// DefaultDelayMetrics are used whenever no valid metrics expression is supplied.
func DefaultDelayMetrics(rows []dataset.Shipment) map[string]float64 {
	delays := make([]float64, len(rows))
	var total float64
	for i, row := range rows {
		delays[i] = row.DelayMinutes
		total += row.DelayMinutes
	}
	return map[string]float64{
		"total_delay_minutes":   total,
		"average_delay_minutes": mean(delays),
		"shipment_count":        float64(len(rows)),
	}
}

func (r *runContext) delayTrend() Result {
	rows := r.subset.Rows()
	plan := r.plan(llm.PlanDelay)

	computed := DefaultDelayMetrics(rows)
	if code := plan.text("compute_metrics"); code != "" {
		custom, err := EvaluateMetrics(code, rows)
		if err != nil {
			metrics.SandboxFallbacks.Inc()
			r.engine.logger.Debug().Err(err).Msg("metrics expression discarded")
			r.note("Metrics expression discarded; using default delay metrics")
		} else {
			computed = custom
			r.note("Computed custom delay metrics: " + fmt.Sprint(metricKeys(custom)))
		}
	}

	values := map[string]any{"period": r.period}
	for k, v := range computed {
		values[k] = v
	}
	def := fmt.Sprintf(
		"Total delay time for %s is %.0f minutes across %s shipments. Average delay across %s is %.1f minutes per shipment.",
		r.period, computed["total_delay_minutes"], FormatMetric(computed["shipment_count"]),
		r.period, computed["average_delay_minutes"],
	)
	summary := r.render(plan.text("summary_template"), values, def)

	days := Daily(rows)
	points := make([]ChartPoint, 0, len(days))
	tableRows := make([]map[string]any, 0, len(days))
	for _, d := range days {
		label := d.Day.Format(DayLayout)
		points = append(points, ChartPoint{Label: label, Value: Round2(d.AvgDelay())})
		tableRows = append(tableRows, map[string]any{
			"date":                label,
			"avg_delay":           Round2(d.AvgDelay()),
			FieldDelayedShipments: d.Delayed,
		})
	}
	return Result{
		Summary: summary,
		Intent:  intent.Delay,
		Chart: &Chart{
			Type:         "line",
			Title:        "Average Delay by Day",
			XLabel:       "Date",
			YLabel:       "Avg Delay (min)",
			Data:         points,
			DatasetLabel: "Avg Delay",
		},
		Table: &Table{
			Columns: []Column{
				{Key: "date", Label: "Date"},
				{Key: "avg_delay", Label: "Avg Delay (min)"},
				{Key: FieldDelayedShipments, Label: "Delayed Shipments"},
			},
			Rows: tableRows,
		},
	}
}

func (r *runContext) overview() Result {
	rows := r.subset.Rows()
	delayed := 0
	delivery := make([]float64, len(rows))
	delays := make([]float64, len(rows))
	for i, row := range rows {
		if row.Delayed() {
			delayed++
		}
		delivery[i] = row.DeliveryTime
		delays[i] = row.DelayMinutes
	}
	summary := fmt.Sprintf(
		"Processed %d shipments. %d experienced delays. Average delivery time is %.2f days with %.1f minutes of delay.",
		len(rows), delayed, mean(delivery), mean(delays),
	)

	days := Daily(rows)
	points := make([]ChartPoint, 0, len(days))
	for _, d := range days {
		points = append(points, ChartPoint{Label: d.Day.Format(DayLayout), Value: Round2(d.TotalDelay)})
	}
	return Result{
		Summary: summary,
		Intent:  intent.Analytics,
		Chart: &Chart{
			Type:         "line",
			Title:        "Total Delay Minutes Over Time",
			XLabel:       "Date",
			YLabel:       "Total Delay (min)",
			Data:         points,
			DatasetLabel: "Total Delay",
		},
	}
}
