// Package dataset models the shipment table the analytics pipeline reads and
// the sources it is loaded from.
package dataset

import (
	"sort"
	"strings"
	"time"
)

// Categorical columns that may be absent from a source and that filters apply to.
const (
	ColumnRoute       = "route"
	ColumnWarehouse   = "warehouse"
	ColumnDelayReason = "delay_reason"
)

// NoneReason is the delay_reason sentinel for shipments without a cause.
const NoneReason = "none"

// FilterColumns lists the filterable columns in resolution order.
var FilterColumns = []string{ColumnRoute, ColumnWarehouse, ColumnDelayReason}

// Shipment is one dataset row.
type Shipment struct {
	ID           string    `json:"id"`
	Route        string    `json:"route,omitempty"`
	Warehouse    string    `json:"warehouse,omitempty"`
	DeliveryTime float64   `json:"delivery_time"`
	DelayMinutes float64   `json:"delay_minutes"`
	DelayReason  string    `json:"delay_reason,omitempty"`
	Date         time.Time `json:"date"`
}

// Delayed reports whether the shipment arrived late.
func (s Shipment) Delayed() bool { return s.DelayMinutes > 0 }

// Value returns the categorical value stored under column.
func (s Shipment) Value(column string) string {
	switch column {
	case ColumnRoute:
		return s.Route
	case ColumnWarehouse:
		return s.Warehouse
	case ColumnDelayReason:
		return s.DelayReason
	}
	return ""
}

// Day truncates the shipment date to its calendar day.
func (s Shipment) Day() time.Time { return Day(s.Date) }

// Day truncates t to midnight in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Timeframe is an inclusive date range.
type Timeframe struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the range.
func (tf Timeframe) Contains(t time.Time) bool {
	return !t.Before(tf.Start) && !t.After(tf.End)
}

// Filters maps a categorical column onto the single value it must equal.
type Filters map[string]string

// Clone copies the filter map.
func (f Filters) Clone() Filters {
	out := make(Filters, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Keys returns the filtered columns in a stable order.
func (f Filters) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Dataset is an immutable shipment table. Every operation returns a new value.
type Dataset struct {
	rows    []Shipment
	columns map[string]bool
}

// New builds a dataset from rows. columns names the optional categorical
// columns the source actually carried.
func New(rows []Shipment, columns ...string) *Dataset {
	d := &Dataset{rows: append([]Shipment(nil), rows...), columns: map[string]bool{}}
	for _, c := range columns {
		d.columns[c] = true
	}
	return d
}

// Empty returns a dataset with no rows and no optional columns.
func Empty() *Dataset { return New(nil) }

// Len reports the row count.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.rows)
}

// Rows returns a copy of the rows.
func (d *Dataset) Rows() []Shipment {
	if d == nil {
		return nil
	}
	return append([]Shipment(nil), d.rows...)
}

// HasColumn reports whether the optional column was present in the source.
func (d *Dataset) HasColumn(column string) bool {
	return d != nil && d.columns[column]
}

// Columns returns the optional columns present, in FilterColumns order.
func (d *Dataset) Columns() []string {
	var out []string
	for _, c := range FilterColumns {
		if d.HasColumn(c) {
			out = append(out, c)
		}
	}
	return out
}

// Distinct returns the sorted distinct non-empty values of a categorical column.
func (d *Dataset) Distinct(column string) []string {
	if !d.HasColumn(column) {
		return nil
	}
	seen := map[string]struct{}{}
	for _, r := range d.rows {
		v := strings.TrimSpace(r.Value(column))
		if v == "" {
			continue
		}
		seen[v] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// MaxDate returns the latest shipment date.
func (d *Dataset) MaxDate() (time.Time, bool) {
	if d.Len() == 0 {
		return time.Time{}, false
	}
	latest := d.rows[0].Date
	for _, r := range d.rows[1:] {
		if r.Date.After(latest) {
			latest = r.Date
		}
	}
	return latest, true
}

// Where returns the rows matching keep.
func (d *Dataset) Where(keep func(Shipment) bool) *Dataset {
	out := &Dataset{columns: map[string]bool{}}
	if d == nil {
		return out
	}
	for c, ok := range d.columns {
		out.columns[c] = ok
	}
	for _, r := range d.rows {
		if keep(r) {
			out.rows = append(out.rows, r)
		}
	}
	return out
}

// Apply restricts the dataset to an optional timeframe and exact-match filters.
func (d *Dataset) Apply(tf *Timeframe, filters Filters) *Dataset {
	return d.Where(func(s Shipment) bool {
		if tf != nil && !tf.Contains(s.Date) {
			return false
		}
		for col, want := range filters {
			if s.Value(col) != want {
				return false
			}
		}
		return true
	})
}
