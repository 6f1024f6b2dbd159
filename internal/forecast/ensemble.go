package forecast

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"hermes/internal/analytics"
	"hermes/internal/dataset"
)

// key masks select which of route, warehouse and reason a group average
// matches on, in fallback order.
const (
	matchRoute uint8 = 1 << iota
	matchWarehouse
	matchReason
)

var fallbackMasks = []uint8{
	matchRoute | matchWarehouse | matchReason,
	matchRoute | matchWarehouse,
	matchRoute | matchReason,
	matchWarehouse | matchReason,
	matchRoute,
	matchWarehouse,
	matchReason,
}

type groupKey struct {
	mask      uint8
	route     string
	warehouse string
	reason    string
}

func keyFor(mask uint8, route, warehouse, reason string) groupKey {
	k := groupKey{mask: mask}
	if mask&matchRoute != 0 {
		k.route = route
	}
	if mask&matchWarehouse != 0 {
		k.warehouse = warehouse
	}
	if mask&matchReason != 0 {
		k.reason = reason
	}
	return k
}

type meanAcc struct {
	sum float64
	n   int
}

// groupAverages indexes the mean delay of every partial combination.
type groupAverages struct {
	groups  map[groupKey]*meanAcc
	overall float64
}

func newGroupAverages(rows []dataset.Shipment) *groupAverages {
	g := &groupAverages{groups: map[groupKey]*meanAcc{}}
	var total float64
	for _, row := range rows {
		total += row.DelayMinutes
		for _, mask := range fallbackMasks {
			k := keyFor(mask, row.Route, row.Warehouse, row.DelayReason)
			a, ok := g.groups[k]
			if !ok {
				a = &meanAcc{}
				g.groups[k] = a
			}
			a.sum += row.DelayMinutes
			a.n++
		}
	}
	if len(rows) > 0 {
		g.overall = total / float64(len(rows))
	}
	return g
}

// estimate returns the finest available group mean for a combination.
func (g *groupAverages) estimate(route, warehouse, reason string) float64 {
	for _, mask := range fallbackMasks {
		if a, ok := g.groups[keyFor(mask, route, warehouse, reason)]; ok && a.n > 0 {
			return a.sum / float64(a.n)
		}
	}
	return g.overall
}

// oneHotModel is a least-squares fit of delay minutes on indicator columns
// for every route, warehouse and reason value, plus an intercept.
type oneHotModel struct {
	index map[string]int
	coef  []float64
}

func indicator(column, value string) string { return column + "=" + value }

func fitOneHot(data *dataset.Dataset) (*oneHotModel, bool) {
	index := map[string]int{}
	p := 1
	for _, col := range dataset.FilterColumns {
		for _, v := range data.Distinct(col) {
			index[indicator(col, v)] = p
			p++
		}
	}
	rows := data.Rows()
	n := len(rows)
	if n == 0 {
		return nil, false
	}
	x := mat.NewDense(n, p, nil)
	y := mat.NewVecDense(n, nil)
	for i, row := range rows {
		x.Set(i, 0, 1)
		for _, col := range dataset.FilterColumns {
			if j, ok := index[indicator(col, row.Value(col))]; ok {
				x.Set(i, j, 1)
			}
		}
		y.SetVec(i, row.DelayMinutes)
	}

	var svd mat.SVD
	if !svd.Factorize(x, mat.SVDThin) {
		return nil, false
	}
	rcond := float64(max(n, p)) * 2.220446049250313e-16
	rank := svd.Rank(rcond)
	if rank == 0 {
		return nil, false
	}
	var beta mat.VecDense
	svd.SolveVecTo(&beta, y, rank)

	coef := make([]float64, p)
	for j := range coef {
		c := beta.AtVec(j)
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, false
		}
		coef[j] = c
	}
	return &oneHotModel{index: index, coef: coef}, true
}

func (m *oneHotModel) predict(route, warehouse, reason string) float64 {
	v := m.coef[0]
	for col, val := range map[string]string{
		dataset.ColumnRoute:       route,
		dataset.ColumnWarehouse:   warehouse,
		dataset.ColumnDelayReason: reason,
	} {
		if j, ok := m.index[indicator(col, val)]; ok {
			v += m.coef[j]
		}
	}
	return v
}

// Ensemble predicts delay for every route, warehouse and reason combination,
// restricted to filtered values where a filter is active. Each estimate is
// the mean of the one-hot regression and the group average. Results are
// sorted ascending by predicted delay.
func Ensemble(data *dataset.Dataset, filters dataset.Filters) []analytics.Estimate {
	if data.Len() == 0 {
		return nil
	}
	for _, col := range dataset.FilterColumns {
		if !data.HasColumn(col) {
			return nil
		}
	}
	values := func(col string) []string {
		if v := filters[col]; v != "" {
			return []string{v}
		}
		return data.Distinct(col)
	}

	model, fitted := fitOneHot(data)
	averages := newGroupAverages(data.Rows())

	var out []analytics.Estimate
	for _, route := range values(dataset.ColumnRoute) {
		for _, warehouse := range values(dataset.ColumnWarehouse) {
			for _, reason := range values(dataset.ColumnDelayReason) {
				predictions := []float64{averages.estimate(route, warehouse, reason)}
				if fitted {
					predictions = append(predictions, model.predict(route, warehouse, reason))
				}
				var combined float64
				for _, p := range predictions {
					combined += p
				}
				combined /= float64(len(predictions))
				out = append(out, analytics.Estimate{
					Route:                 route,
					Warehouse:             warehouse,
					DelayReason:           reason,
					PredictedDelayMinutes: analytics.Round2(math.Max(combined, 0)),
				})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.PredictedDelayMinutes != b.PredictedDelayMinutes {
			return a.PredictedDelayMinutes < b.PredictedDelayMinutes
		}
		if a.Route != b.Route {
			return a.Route < b.Route
		}
		if a.Warehouse != b.Warehouse {
			return a.Warehouse < b.Warehouse
		}
		return a.DelayReason < b.DelayReason
	})
	return out
}
