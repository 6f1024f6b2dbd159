package analytics

import (
	"strconv"
	"strings"
)

// Aggregate fields a plan may sort or rank by.
const (
	FieldDelayedShipments  = "delayed_shipments"
	FieldTotalDelayMinutes = "total_delay_minutes"
	FieldAvgDelayMinutes   = "avg_delay_minutes"
	FieldAvgDeliveryTime   = "avg_delivery_time"
	FieldTotalShipments    = "total_shipments"
)

// fieldLabels is the plan allow-list together with the default human label.
var fieldLabels = map[string]string{
	FieldDelayedShipments:  "Delayed Shipments",
	FieldTotalDelayMinutes: "Total Delay (min)",
	FieldAvgDelayMinutes:   "Avg Delay (min)",
	FieldAvgDeliveryTime:   "Avg Delivery Time (days)",
	FieldTotalShipments:    "Total Shipments",
}

// Plan is an untrusted hint object returned by the plan capability. Every
// accessor validates the shape of the value it reads.
type Plan map[string]any

func (p Plan) text(key string) string {
	if p == nil {
		return ""
	}
	s, _ := p[key].(string)
	return strings.TrimSpace(s)
}

// field returns the named aggregate field when it is on the allow-list.
func (p Plan) field(key, fallback string) string {
	if f := p.text(key); f != "" {
		if _, ok := fieldLabels[f]; ok {
			return f
		}
	}
	return fallback
}

// ascending reads sort_order; anything other than asc/desc gives def.
func (p Plan) ascending(def bool) bool {
	switch strings.ToLower(p.text("sort_order")) {
	case "asc":
		return true
	case "desc":
		return false
	}
	return def
}

func (p Plan) number(key string) (float64, bool) {
	if p == nil {
		return 0, false
	}
	switch v := p[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

func (p Plan) orDefault(key, def string) string {
	if s := p.text(key); s != "" {
		return s
	}
	return def
}
