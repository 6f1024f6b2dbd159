package config

import "strings"

// PromptConfig captures the system prompts and sampling temperatures used by
// the completion client. Any field can be overridden from the prompts section
// of the YAML config.
type PromptConfig struct {
	IntentPrompt        string  `json:"intent_prompt" yaml:"intent_prompt"`
	ReplyPrompt         string  `json:"reply_prompt" yaml:"reply_prompt"`
	MetadataPrompt      string  `json:"metadata_prompt" yaml:"metadata_prompt"`
	RoutePlanPrompt     string  `json:"route_plan_prompt" yaml:"route_plan_prompt"`
	WarehousePlanPrompt string  `json:"warehouse_plan_prompt" yaml:"warehouse_plan_prompt"`
	DelayPlanPrompt     string  `json:"delay_plan_prompt" yaml:"delay_plan_prompt"`
	ReplyTemperature    float64 `json:"reply_temperature" yaml:"reply_temperature"`
	MetadataTemperature float64 `json:"metadata_temperature" yaml:"metadata_temperature"`
	PlanTemperature     float64 `json:"plan_temperature" yaml:"plan_temperature"`
}

// DefaultPromptConfig returns the baked-in prompts.
func DefaultPromptConfig() PromptConfig {
	return PromptConfig{
		ReplyTemperature:    0.4,
		MetadataTemperature: 0.1,
		PlanTemperature:     0.2,
		IntentPrompt: `You are an intent classifier for the Hermes logistics analytics assistant.
Classify the user's request into ONE intent strictly from this list:
greeting = salutations like hi/hello.
gratitude = user is thanking or expressing appreciation.
clarify = very short / ambiguous request that needs disambiguation.
prediction = asks for forecasts, projections, next week, future values.
warehouse = comparative performance of warehouses.
route = performance or delays by route.
delay_reason = why shipments are delayed; breakdown of reasons.
delay = delay statistics, averages, patterns (not reasons).
analytics = general quantitative overview of current dataset.
conversation = explanatory, qualitative question seeking an insight narrative WITHOUT charts (explain, why, how, tell me about, interpret, insight).
text_only = user explicitly requests no visualization ("no chart", "just text", "text only", "no visualization").
If the user asks for visualization (show, chart, graph, plot, visualize, bar, line, pie) do not choose conversation or text_only; pick the underlying analytic intent instead.
Prefer warehouse/route/delay/delay_reason/prediction over analytics when keywords match.
Return ONLY JSON: {"intent": "one_intent"}`,
		ReplyPrompt: `You are Hermes, a logistics analytics assistant. The user's latest message is ambiguous.
Ask for clarification or suggest example queries about shipments, delays, warehouses, routes, or predictions.
Keep it concise. Reply with plain text only.`,
		MetadataPrompt: `You analyze user logistics questions across languages and return structured JSON.
Supported filter fields: route, warehouse, delay_reason.
Detect timeframe expressions (language-agnostic) and return either a relative range or absolute ISO dates.
If the user mentions a forecast length, convert it to horizon days.
Only return values present in or derivable from the query. Use null when data is unavailable.
Return STRICT JSON:
{
  "language": "detected language name or code",
  "timeframe": {
    "type": "relative" | "absolute" | "none",
    "value": {"amount": integer, "unit": "day|week|month|quarter|year"} OR {"start": "YYYY-MM-DD", "end": "YYYY-MM-DD"}
  },
  "filters": {"route": [..], "warehouse": [..], "delay_reason": [..]},
  "forecast": {"horizon_days": integer | null}
}`,
		RoutePlanPrompt: `You shape a route performance answer for a logistics dashboard.
Allowed sort_field values: delayed_shipments, total_delay_minutes, avg_delay_minutes, avg_delivery_time, total_shipments.
Return STRICT JSON with optional keys:
{"sort_field": "...", "sort_order": "asc|desc", "metric_label": "...", "chart_title": "...", "focus_phrase": "...", "summary_template": "..."}
summary_template may use {period}, {top_label}, {metric_label}, {metric_value}, {focus_phrase}, {delayed_shipments}, {total_shipments}, {avg_delay_minutes}, {total_delay_minutes}.
Omit keys you cannot infer.`,
		WarehousePlanPrompt: `You shape a warehouse performance answer for a logistics dashboard.
Allowed metric_field values: avg_delivery_time, delayed_shipments, avg_delay_minutes, total_delay_minutes, total_shipments.
Return STRICT JSON with optional keys:
{"metric_field": "...", "sort_order": "asc|desc", "metric_label": "...", "chart_title": "...", "focus_phrase": "...", "delivery_time_threshold": number, "summary_template": "..."}
summary_template may use {period}, {top_label}, {metric_label}, {metric_value}, {focus_phrase}, {threshold}, {delayed_shipments}, {total_shipments}.
Omit keys you cannot infer.`,
		DelayPlanPrompt: `You shape a delay statistics answer for a logistics dashboard.
Return STRICT JSON with optional keys:
{"compute_metrics": "...", "summary_template": "..."}
compute_metrics is a single expression that returns a map of metric name to number. It may use the arrays delay_minutes, delivery_time, route, warehouse, delay_reason, date and the functions len, sum, mean, median, max, min, abs, round, ceil, floor, float, int, count, filter, map, all, any, none, one.
Example: {"total_delay_minutes": sum(delay_minutes), "late_shipments": count(delay_minutes, # > 0)}
summary_template may use {period} and any metric name, with optional format specs such as {average_delay_minutes:.1f}.
Omit keys you cannot infer.`,
	}
}

// MergePromptConfig overlays non-empty fields onto the base config.
func MergePromptConfig(base PromptConfig, override PromptConfig) PromptConfig {
	if strings.TrimSpace(override.IntentPrompt) != "" {
		base.IntentPrompt = override.IntentPrompt
	}
	if strings.TrimSpace(override.ReplyPrompt) != "" {
		base.ReplyPrompt = override.ReplyPrompt
	}
	if strings.TrimSpace(override.MetadataPrompt) != "" {
		base.MetadataPrompt = override.MetadataPrompt
	}
	if strings.TrimSpace(override.RoutePlanPrompt) != "" {
		base.RoutePlanPrompt = override.RoutePlanPrompt
	}
	if strings.TrimSpace(override.WarehousePlanPrompt) != "" {
		base.WarehousePlanPrompt = override.WarehousePlanPrompt
	}
	if strings.TrimSpace(override.DelayPlanPrompt) != "" {
		base.DelayPlanPrompt = override.DelayPlanPrompt
	}
	if override.ReplyTemperature > 0 {
		base.ReplyTemperature = override.ReplyTemperature
	}
	if override.MetadataTemperature > 0 {
		base.MetadataTemperature = override.MetadataTemperature
	}
	if override.PlanTemperature > 0 {
		base.PlanTemperature = override.PlanTemperature
	}
	return base
}
