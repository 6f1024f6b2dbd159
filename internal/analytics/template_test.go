package analytics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermes/internal/dataset"
)

func TestRenderTemplate(t *testing.T) {
	values := map[string]any{
		"period": "the selected period",
		"total":  12345.678,
		"count":  10,
		"avg":    17.0,
	}
	cases := []struct {
		tmpl string
		want string
	}{
		{"Total {total:.0f} in {period}", "Total 12346 in the selected period"},
		{"{count} shipments", "10 shipments"},
		{"{count:d}/{avg:d}", "10/17"},
		{"{total:,.2f}", "12,345.68"},
		{"{total:,}", "12,345.678"},
		{"{{literal}} {avg:.1f}", "{literal} 17.0"},
	}
	for _, tc := range cases {
		got, err := RenderTemplate(tc.tmpl, values)
		require.NoError(t, err, tc.tmpl)
		assert.Equal(t, tc.want, got, tc.tmpl)
	}
}

func TestRenderTemplateErrors(t *testing.T) {
	values := map[string]any{"period": "x", "total": 1.5}
	for _, tmpl := range []string{
		"{missing}",
		"{period",
		"closing }",
		"{total:d}",
		"{period:.1f}",
		"{total:>10}",
		"{0}",
		"{total.real}",
	} {
		_, err := RenderTemplate(tmpl, values)
		assert.Error(t, err, tmpl)
	}
}

func TestFormatMetric(t *testing.T) {
	assert.Equal(t, "4", FormatMetric(4))
	assert.Equal(t, "4.25", FormatMetric(4.25))
	assert.Equal(t, "2.33", FormatMetric(7.0/3))
}

func TestDescribePeriod(t *testing.T) {
	assert.Equal(t, "the selected period", DescribePeriod(nil))
	tf := &dataset.Timeframe{Start: day(1), End: day(9)}
	assert.Equal(t, "Oct 01, 2024 to Oct 09, 2024", DescribePeriod(tf))
}

func TestEvaluateMetrics(t *testing.T) {
	rows := sampleData().Rows()
	got, err := EvaluateMetrics(`{"n": len(rows), "slow": count(delivery_time, # > 3), "wx": count(delay_reason, # == "Weather")}`, rows)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"n": 10, "slow": 3, "wx": 3}, got)
}

func TestEvaluateMetricsRejects(t *testing.T) {
	rows := sampleData().Rows()
	for name, code := range map[string]string{
		"syntax":      `{"a": sum(delay_minutes`,
		"not a map":   `sum(delay_minutes)`,
		"string":      `{"a": "x"}`,
		"empty map":   `{}`,
		"unknown var": `{"a": secret}`,
		"builtin off": `{"a": len(split("a,b", ","))}`,
		"too long":    `{"a": ` + strings.Repeat("1+", MaxExpressionLength) + `1}`,
	} {
		_, err := EvaluateMetrics(code, rows)
		assert.ErrorIs(t, err, ErrSandbox, name)
	}
}
