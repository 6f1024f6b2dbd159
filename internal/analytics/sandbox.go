package analytics

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/expr-lang/expr"

	"hermes/internal/dataset"
)

// MaxExpressionLength bounds externally supplied metric expressions.
const MaxExpressionLength = 2048

var ErrSandbox = errors.New("metrics expression rejected")

// allowedBuiltins are the only expr builtins a metrics expression may call.
var allowedBuiltins = []string{
	"len", "sum", "mean", "median", "max", "min", "abs", "round", "ceil",
	"floor", "float", "int", "count", "filter", "map", "all", "any", "none", "one",
}

// sandboxEnv exposes the working rows as read-only column arrays.
func sandboxEnv(rows []dataset.Shipment) map[string]any {
	delays := make([]float64, len(rows))
	delivery := make([]float64, len(rows))
	routes := make([]string, len(rows))
	warehouses := make([]string, len(rows))
	reasons := make([]string, len(rows))
	dates := make([]string, len(rows))
	records := make([]map[string]any, len(rows))
	for i, r := range rows {
		delays[i] = r.DelayMinutes
		delivery[i] = r.DeliveryTime
		routes[i] = r.Route
		warehouses[i] = r.Warehouse
		reasons[i] = r.DelayReason
		dates[i] = r.Date.Format(DayLayout)
		records[i] = map[string]any{
			"id":            r.ID,
			"route":         r.Route,
			"warehouse":     r.Warehouse,
			"delivery_time": r.DeliveryTime,
			"delay_minutes": r.DelayMinutes,
			"delay_reason":  r.DelayReason,
			"date":          dates[i],
		}
	}
	return map[string]any{
		"delay_minutes": delays,
		"delivery_time": delivery,
		"route":         routes,
		"warehouse":     warehouses,
		"delay_reason":  reasons,
		"date":          dates,
		"rows":          records,
	}
}

// EvaluateMetrics compiles and runs a metrics expression over rows. The
// expression must produce a map of metric name to number.
func EvaluateMetrics(code string, rows []dataset.Shipment) (metrics map[string]float64, err error) {
	if code == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrSandbox)
	}
	if len(code) > MaxExpressionLength {
		return nil, fmt.Errorf("%w: expression longer than %d characters", ErrSandbox, MaxExpressionLength)
	}
	env := sandboxEnv(rows)

	opts := []expr.Option{expr.Env(env), expr.DisableAllBuiltins()}
	for _, name := range allowedBuiltins {
		opts = append(opts, expr.EnableBuiltin(name))
	}
	program, err := expr.Compile(code, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSandbox, err)
	}

	defer func() {
		if r := recover(); r != nil {
			metrics = nil
			err = fmt.Errorf("%w: panic: %v", ErrSandbox, r)
		}
	}()
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSandbox, err)
	}
	return numericMap(out)
}

func numericMap(out any) (map[string]float64, error) {
	raw, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: result is %T, want map", ErrSandbox, out)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty result", ErrSandbox)
	}
	metrics := make(map[string]float64, len(raw))
	for k, v := range raw {
		var f float64
		switch n := v.(type) {
		case float64:
			f = n
		case int:
			f = float64(n)
		case int64:
			f = float64(n)
		default:
			return nil, fmt.Errorf("%w: metric %q is %T", ErrSandbox, k, v)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: metric %q is not finite", ErrSandbox, k)
		}
		metrics[k] = f
	}
	return metrics, nil
}

func metricKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
