// Package llm defines the external text capabilities the pipeline consults
// and an OpenAI-compatible HTTP implementation of them.
package llm

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"hermes/internal/conversation"
	"hermes/internal/dataset"
	"hermes/internal/intent"
)

var (
	// ErrUnavailable reports a capability that cannot be called at all
	// (disabled or missing credentials).
	ErrUnavailable = errors.New("llm capability unavailable")
	// ErrInvalidOutput reports a completion that did not match the contract.
	ErrInvalidOutput = errors.New("llm returned invalid output")
)

// PlanKind selects which aggregation a plan shapes.
type PlanKind string

const (
	PlanRoute     PlanKind = "route"
	PlanWarehouse PlanKind = "warehouse"
	PlanDelay     PlanKind = "delay"
)

// Classifier maps a query onto the intent vocabulary.
type Classifier interface {
	Classify(ctx context.Context, query string, history []conversation.Turn) (intent.Intent, error)
}

// Replier writes a free-text clarification reply.
type Replier interface {
	GenerateReply(ctx context.Context, query string, history []conversation.Turn) (string, error)
}

// MetadataExtractor pulls timeframe, filter and horizon hints out of a query.
type MetadataExtractor interface {
	ExtractMetadata(ctx context.Context, query string, options map[string][]string, history []conversation.Turn) (Metadata, error)
}

// Planner returns an untrusted plan object for one aggregation kind.
type Planner interface {
	GeneratePlan(ctx context.Context, kind PlanKind, query string) (map[string]any, error)
}

// Capability bundles every external call the pipeline makes.
type Capability interface {
	Classifier
	Replier
	MetadataExtractor
	Planner
}

// Disabled satisfies Capability and always reports ErrUnavailable.
type Disabled struct{}

func (Disabled) Classify(context.Context, string, []conversation.Turn) (intent.Intent, error) {
	return "", ErrUnavailable
}

func (Disabled) GenerateReply(context.Context, string, []conversation.Turn) (string, error) {
	return "", ErrUnavailable
}

func (Disabled) ExtractMetadata(context.Context, string, map[string][]string, []conversation.Turn) (Metadata, error) {
	return Metadata{}, ErrUnavailable
}

func (Disabled) GeneratePlan(context.Context, PlanKind, string) (map[string]any, error) {
	return nil, ErrUnavailable
}

// Timeframe type values.
const (
	TimeframeRelative = "relative"
	TimeframeAbsolute = "absolute"
	TimeframeNone     = "none"
)

// TimeframeHint is the timeframe sub-object of extracted metadata.
type TimeframeHint struct {
	Type   string  `json:"type"`
	Amount float64 `json:"amount,omitempty"`
	Unit   string  `json:"unit,omitempty"`
	Start  string  `json:"start,omitempty"`
	End    string  `json:"end,omitempty"`
}

// Metadata is the structured hint object returned by ExtractMetadata. The
// zero value means "nothing extracted".
type Metadata struct {
	Language    string              `json:"language,omitempty"`
	Timeframe   *TimeframeHint      `json:"timeframe,omitempty"`
	Filters     map[string][]string `json:"filters,omitempty"`
	HorizonDays float64             `json:"horizon_days,omitempty"`
}

// Empty reports whether no usable hint was extracted.
func (m Metadata) Empty() bool {
	return m.Timeframe == nil && len(m.Filters) == 0 && m.HorizonDays <= 0
}

// ParseMetadata converts a decoded JSON object into Metadata, skipping any
// field whose shape does not match instead of rejecting the whole object.
func ParseMetadata(raw map[string]any) Metadata {
	var md Metadata
	if lang, ok := raw["language"].(string); ok {
		md.Language = strings.TrimSpace(lang)
	}
	if tf, ok := raw["timeframe"].(map[string]any); ok {
		md.Timeframe = parseTimeframe(tf)
	}
	if filters, ok := raw["filters"].(map[string]any); ok {
		for _, col := range dataset.FilterColumns {
			candidates := stringList(filters[col])
			if len(candidates) == 0 {
				continue
			}
			if md.Filters == nil {
				md.Filters = map[string][]string{}
			}
			md.Filters[col] = candidates
		}
	}
	if fc, ok := raw["forecast"].(map[string]any); ok {
		if h, ok := number(fc["horizon_days"]); ok && h > 0 {
			md.HorizonDays = h
		}
	}
	return md
}

func parseTimeframe(raw map[string]any) *TimeframeHint {
	kind, _ := raw["type"].(string)
	kind = strings.ToLower(strings.TrimSpace(kind))
	value, _ := raw["value"].(map[string]any)
	switch kind {
	case TimeframeRelative:
		if value == nil {
			return nil
		}
		amount, ok := number(value["amount"])
		if !ok {
			return nil
		}
		unit, _ := value["unit"].(string)
		return &TimeframeHint{Type: kind, Amount: amount, Unit: strings.ToLower(strings.TrimSpace(unit))}
	case TimeframeAbsolute:
		if value == nil {
			return nil
		}
		start, _ := value["start"].(string)
		end, _ := value["end"].(string)
		return &TimeframeHint{Type: kind, Start: strings.TrimSpace(start), End: strings.TrimSpace(end)}
	}
	return nil
}

func stringList(v any) []string {
	switch val := v.(type) {
	case string:
		if s := strings.TrimSpace(val); s != "" {
			return []string{s}
		}
	case []any:
		var out []string
		for _, item := range val {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
