package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermes/internal/config"
	"hermes/internal/conversation"
	"hermes/internal/dataset"
	"hermes/internal/intent"
)

type capturedRequest struct {
	Model          string              `json:"model"`
	Messages       []map[string]string `json:"messages"`
	ResponseFormat map[string]string   `json:"response_format"`
}

func completionServer(t *testing.T, reply func(req capturedRequest) string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req capturedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": reply(req)}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestClient(baseURL string) *Client {
	cfg := config.LLMConfig{
		Enabled:    true,
		BaseURL:    baseURL,
		APIKey:     "test-key",
		TimeoutSec: 2,
		Models:     config.DefaultModels(),
	}
	return New(cfg, config.DefaultPromptConfig(), nil, zerolog.Nop())
}

func TestClassifyAcceptsVocabularyLabel(t *testing.T) {
	srv, _ := completionServer(t, func(req capturedRequest) string {
		assert.Equal(t, "json_object", req.ResponseFormat["type"])
		assert.Contains(t, req.Messages[1]["content"], "Current user query: which route is slowest")
		assert.Contains(t, req.Messages[1]["content"], "User: hi | Intent: greeting")
		return `{"intent": "route"}`
	})
	c := newTestClient(srv.URL)
	history := []conversation.Turn{{Query: "hi", Intent: intent.Greeting, Summary: "Hello!"}}

	got, err := c.Classify(context.Background(), "which route is slowest", history)
	require.NoError(t, err)
	assert.Equal(t, intent.Route, got)
}

func TestClassifyRejectsUnknownLabel(t *testing.T) {
	srv, _ := completionServer(t, func(capturedRequest) string { return `{"intent": "shipping"}` })
	_, err := newTestClient(srv.URL).Classify(context.Background(), "x", nil)
	assert.ErrorIs(t, err, ErrInvalidOutput)
}

func TestUnavailableWithoutKey(t *testing.T) {
	srv, hits := completionServer(t, func(capturedRequest) string { return `{}` })
	c := newTestClient(srv.URL)
	c.cfg.APIKey = ""

	_, err := c.Classify(context.Background(), "route", nil)
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = c.GeneratePlan(context.Background(), PlanRoute, "route")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(0), atomic.LoadInt32(hits))
}

func TestServerErrorIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	_, err := newTestClient(srv.URL).GenerateReply(context.Background(), "what?", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestExtractMetadataParsesLooseShapes(t *testing.T) {
	srv, _ := completionServer(t, func(req capturedRequest) string {
		assert.Contains(t, req.Messages[1]["content"], "- route: Route A, Route B")
		return "Here you go:\n```json\n" + `{
			"language": "en",
			"timeframe": {"type": "relative", "value": {"amount": 2, "unit": "week"}},
			"filters": {"route": "route a", "warehouse": ["WH9", "wh1"], "delay_reason": null},
			"forecast": {"horizon_days": 14}
		}` + "\n```"
	})
	options := map[string][]string{dataset.ColumnRoute: {"Route A", "Route B"}}
	md, err := newTestClient(srv.URL).ExtractMetadata(context.Background(), "route a last two weeks", options, nil)
	require.NoError(t, err)

	require.NotNil(t, md.Timeframe)
	assert.Equal(t, TimeframeRelative, md.Timeframe.Type)
	assert.Equal(t, 2.0, md.Timeframe.Amount)
	assert.Equal(t, "week", md.Timeframe.Unit)
	assert.Equal(t, []string{"route a"}, md.Filters[dataset.ColumnRoute])
	assert.Equal(t, []string{"WH9", "wh1"}, md.Filters[dataset.ColumnWarehouse])
	_, hasReason := md.Filters[dataset.ColumnDelayReason]
	assert.False(t, hasReason)
	assert.Equal(t, 14.0, md.HorizonDays)
}

func TestGeneratePlanUsesKindPrompt(t *testing.T) {
	srv, _ := completionServer(t, func(req capturedRequest) string {
		assert.True(t, strings.HasPrefix(req.Messages[0]["content"], "You shape a warehouse"))
		return `{"metric_field": "avg_delay_minutes", "delivery_time_threshold": 2}`
	})
	plan, err := newTestClient(srv.URL).GeneratePlan(context.Background(), PlanWarehouse, "slowest warehouse")
	require.NoError(t, err)
	assert.Equal(t, "avg_delay_minutes", plan["metric_field"])
	assert.Equal(t, 2.0, plan["delivery_time_threshold"])
}

func TestSelectModelPrefersReasoning(t *testing.T) {
	c := newTestClient("http://unused")
	assert.Equal(t, c.cfg.Models.Reasoning, c.selectModel("intent", "think through the complex delays"))
	assert.Equal(t, c.cfg.Models.Intent, c.selectModel("intent", "route delays"))
	assert.Equal(t, c.cfg.Models.Default, c.selectModel("plan", "route delays"))
}

func TestExtractJSONObject(t *testing.T) {
	assert.Equal(t, `{"a": "}"}`, extractJSONObject(`noise {"a": "}"} trailing`))
	assert.Equal(t, "", extractJSONObject("no object"))
	assert.Equal(t, "", extractJSONObject(`{"open": true`))
}

func TestDisabledCapability(t *testing.T) {
	var c Capability = Disabled{}
	_, err := c.ExtractMetadata(context.Background(), "q", nil, nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestParseMetadataIgnoresBadTimeframe(t *testing.T) {
	md := ParseMetadata(map[string]any{
		"timeframe": map[string]any{"type": "relative", "value": map[string]any{"unit": "day"}},
		"forecast":  map[string]any{"horizon_days": -3.0},
	})
	assert.Nil(t, md.Timeframe)
	assert.True(t, md.Empty())
}
