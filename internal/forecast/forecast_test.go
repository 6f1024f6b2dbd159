package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermes/internal/analytics"
	"hermes/internal/dataset"
)

func day(n int) time.Time {
	return time.Date(2024, time.March, n, 9, 30, 0, 0, time.UTC)
}

func ship(id string, route, wh, reason string, delay float64, d time.Time) dataset.Shipment {
	return dataset.Shipment{ID: id, Route: route, Warehouse: wh, DelayReason: reason, DelayMinutes: delay, DeliveryTime: 2, Date: d}
}

// risingData has one shipment per day with delay growing by 10 minutes a day.
func risingData(days int) *dataset.Dataset {
	var rows []dataset.Shipment
	routes := []string{"Route A", "Route B"}
	reasons := []string{"Weather", "Traffic"}
	for i := 0; i < days; i++ {
		rows = append(rows, ship(string(rune('a'+i)), routes[i%2], "WH1", reasons[i%2], float64(10*(i+1)), day(i+1)))
	}
	return dataset.New(rows, dataset.FilterColumns...)
}

func TestPredictNeedsThreeDays(t *testing.T) {
	res := Predict(Request{Data: risingData(2), Horizon: 7})
	assert.Equal(t, "I need at least 3 days of delay history to project forward.", res.Summary)
	assert.Nil(t, res.Chart)
	assert.Nil(t, res.Table)
	assert.Empty(t, res.Recommendations)
	require.NotNil(t, res.Metrics)
	assert.Equal(t, 7, res.Metrics.ForecastHorizonDays)
	assert.Empty(t, res.Metrics.EnsembleEstimates)
}

func TestPredictEmptySubset(t *testing.T) {
	res := Predict(Request{Data: dataset.Empty(), Horizon: 7})
	assert.Equal(t, analytics.NoMatchSummary, res.Summary)
	assert.Nil(t, res.Chart)
}

func TestPredictTrendContinuesUpward(t *testing.T) {
	res := Predict(Request{Data: risingData(5), Horizon: 14})

	require.NotNil(t, res.Table)
	require.Len(t, res.Table.Forecast, 14)
	assert.Equal(t, "2024-03-06", res.Table.Forecast[0].Date)
	assert.InDelta(t, 60, res.Table.Forecast[0].PredictedAvgDelay, 1e-6)
	for _, p := range res.Table.Forecast {
		assert.GreaterOrEqual(t, p.PredictedAvgDelay, 50.0-1e-6)
	}
	assert.Contains(t, res.Summary, "Projected average delay over the next 2 weeks is 125.0 minutes per shipment.")

	require.NotNil(t, res.Chart)
	require.Len(t, res.Chart.Data, 5+14)
	require.NotNil(t, res.Chart.Data[0].IsForecast)
	assert.False(t, *res.Chart.Data[0].IsForecast)
	assert.True(t, *res.Chart.Data[5].IsForecast)
	assert.Equal(t, 14, res.Metrics.ForecastHorizonDays)
}

func TestPredictClampsNegativeProjection(t *testing.T) {
	var rows []dataset.Shipment
	for i, delay := range []float64{30, 20, 10} {
		rows = append(rows, ship(string(rune('a'+i)), "Route A", "WH1", "Traffic", delay, day(i+1)))
	}
	res := Predict(Request{Data: dataset.New(rows, dataset.FilterColumns...), Horizon: 7})
	for _, p := range res.Table.Forecast {
		assert.GreaterOrEqual(t, p.PredictedAvgDelay, 0.0)
	}
	assert.Equal(t, 0.0, res.Table.Forecast[6].PredictedAvgDelay)
}

func TestPredictSummaryClauses(t *testing.T) {
	res := Predict(Request{
		Data:    risingData(6),
		Filters: dataset.Filters{dataset.ColumnRoute: "Route A"},
		Horizon: 7,
	})
	assert.Contains(t, res.Summary, "over the next 1 week")
	assert.Contains(t, res.Summary, " Filters applied: route=Route A.")
	assert.Contains(t, res.Summary, " Top recommendation: Route A via WH1 → ~30.0 min; watch for weather delays.")
	assert.Contains(t, res.Summary, "Primary disruption driver: Traffic (~40.0 minutes when it occurs).")
	for _, e := range res.Metrics.EnsembleEstimates {
		assert.Equal(t, "Route A", e.Route)
	}
}

func TestEnsembleSortedAndCapped(t *testing.T) {
	var rows []dataset.Shipment
	id := 0
	for _, route := range []string{"R1", "R2", "R3"} {
		for _, wh := range []string{"W1", "W2"} {
			for _, reason := range []string{"Weather", "Traffic"} {
				id++
				rows = append(rows, ship(string(rune('A'+id)), route, wh, reason, float64(id*3), day(id%5+1)))
			}
		}
	}
	data := dataset.New(rows, dataset.FilterColumns...)

	all := Ensemble(data, nil)
	require.Len(t, all, 12)
	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(t, all[i-1].PredictedDelayMinutes, all[i].PredictedDelayMinutes)
	}

	res := Predict(Request{Data: data, Horizon: 7})
	assert.LessOrEqual(t, len(res.Metrics.EnsembleEstimates), 5)
	assert.LessOrEqual(t, len(res.Recommendations), 3)
	assert.Equal(t, all[:5], res.Metrics.EnsembleEstimates)
}

func TestEnsembleNeedsAllColumns(t *testing.T) {
	data := dataset.New(risingData(4).Rows(), dataset.ColumnRoute, dataset.ColumnWarehouse)
	assert.Empty(t, Ensemble(data, nil))
}

func TestGroupAverageFallback(t *testing.T) {
	rows := []dataset.Shipment{
		ship("1", "R1", "W1", "Weather", 40, day(1)),
		ship("2", "R1", "W2", "Traffic", 10, day(2)),
		ship("3", "R2", "W2", "Traffic", 20, day(3)),
	}
	g := newGroupAverages(rows)
	assert.Equal(t, 40.0, g.estimate("R1", "W1", "Weather"))
	assert.Equal(t, 40.0, g.estimate("R1", "W1", "Traffic"))
	assert.Equal(t, 20.0, g.estimate("R2", "W1", "Traffic"))
	assert.Equal(t, 15.0, g.estimate("R3", "W2", "Traffic"))
	assert.Equal(t, 25.0, g.estimate("R1", "W3", "Snow"))
	assert.InDelta(t, 70.0/3, g.estimate("R9", "W9", "Snow"), 1e-9)
}

func TestDescribeHorizon(t *testing.T) {
	for days, want := range map[int]string{
		1:  "1 day",
		5:  "5 days",
		7:  "1 week",
		14: "2 weeks",
		30: "1 month",
		60: "2 months",
		90: "3 months",
		10: "10 days",
	} {
		assert.Equal(t, want, DescribeHorizon(days))
	}
}

func TestRecommendation(t *testing.T) {
	assert.Equal(t, "Route A via WH1 → ~12.3 min; minimal weather risk.",
		Recommendation(analytics.Estimate{Route: "Route A", Warehouse: "WH1", DelayReason: "none", PredictedDelayMinutes: 12.34}))
	assert.Equal(t, "Route 7 via WH2 → ~4.0 min; watch for weather delays.",
		Recommendation(analytics.Estimate{Route: "7", Warehouse: "WH2", DelayReason: "Weather", PredictedDelayMinutes: 4}))
}
