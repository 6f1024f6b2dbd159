package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hermes/internal/config"
	"hermes/internal/conversation"
	"hermes/internal/intent"
	"hermes/internal/metrics"
)

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	cfg     config.LLMConfig
	prompts config.PromptConfig
	http    *http.Client
	logger  zerolog.Logger
}

// New builds a Client. A nil httpClient gets one bounded by cfg.TimeoutSec.
func New(cfg config.LLMConfig, prompts config.PromptConfig, httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		timeout := time.Duration(cfg.TimeoutSec) * time.Second
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		cfg:     cfg,
		prompts: prompts,
		http:    httpClient,
		logger:  logger.With().Str("component", "llm").Logger(),
	}
}

var _ Capability = (*Client)(nil)

type completionRequest struct {
	capability  string
	model       string
	system      string
	user        string
	temperature float64
	maxTokens   int
	jsonOutput  bool
}

var reasoningTokens = []string{"reasoning", "think", "chain", "complex"}

// selectModel routes queries that ask for deliberate reasoning to the larger
// model and everything else to the per-purpose choice.
func (c *Client) selectModel(purpose, query string) string {
	lower := strings.ToLower(query)
	for _, tok := range reasoningTokens {
		if strings.Contains(lower, tok) && c.cfg.Models.Reasoning != "" {
			return c.cfg.Models.Reasoning
		}
	}
	var model string
	switch purpose {
	case "intent":
		model = c.cfg.Models.Intent
	case "clarify":
		model = c.cfg.Models.Clarify
	case "metadata":
		model = c.cfg.Models.Metadata
	}
	if model == "" {
		model = c.cfg.Models.Default
	}
	return model
}

func (c *Client) complete(ctx context.Context, req completionRequest) (string, error) {
	if !c.cfg.Enabled || strings.TrimSpace(c.cfg.APIKey) == "" {
		metrics.CapabilityCalls.WithLabelValues(req.capability, metrics.OutcomeUnavailable).Inc()
		return "", ErrUnavailable
	}
	content, err := c.post(ctx, req)
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
		c.logger.Warn().Err(err).Str("capability", req.capability).Str("model", req.model).Msg("completion failed")
	}
	metrics.CapabilityCalls.WithLabelValues(req.capability, outcome).Inc()
	return content, err
}

func (c *Client) post(ctx context.Context, req completionRequest) (string, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/chat/completions"
	payload := map[string]interface{}{
		"model":       req.model,
		"temperature": req.temperature,
		"messages": []map[string]string{
			{"role": "system", "content": req.system},
			{"role": "user", "content": req.user},
		},
	}
	if req.maxTokens > 0 {
		payload["max_tokens"] = req.maxTokens
	}
	if req.jsonOutput {
		payload["response_format"] = map[string]string{"type": "json_object"}
	}
	buf, _ := json.Marshal(payload)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("llm status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var wrapper struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return "", err
	}
	if len(wrapper.Choices) == 0 {
		return "", errors.New("empty llm response")
	}
	return strings.TrimSpace(wrapper.Choices[0].Message.Content), nil
}

// Classify asks the model for one intent label.
func (c *Client) Classify(ctx context.Context, query string, history []conversation.Turn) (intent.Intent, error) {
	var b strings.Builder
	b.WriteString("Recent conversation (most recent last):\n")
	if len(history) == 0 {
		b.WriteString("(none)\n")
	}
	for _, h := range history {
		if h.Query == "" {
			continue
		}
		fmt.Fprintf(&b, "- User: %s | Intent: %s | Summary: %s | Insight: %s\n", h.Query, h.Intent, h.Summary, h.Insight)
	}
	fmt.Fprintf(&b, "\nCurrent user query: %s\n", query)

	content, err := c.complete(ctx, completionRequest{
		capability: "classify",
		model:      c.selectModel("intent", query),
		system:     c.prompts.IntentPrompt,
		user:       b.String(),
		maxTokens:  64,
		jsonOutput: true,
	})
	if err != nil {
		return "", err
	}
	return parseIntent(content)
}

// GenerateReply asks the model for a short clarification.
func (c *Client) GenerateReply(ctx context.Context, query string, history []conversation.Turn) (string, error) {
	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	wrote := false
	for _, h := range history {
		answer := h.Insight
		if answer == "" {
			answer = h.Summary
		}
		if answer == "" {
			continue
		}
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", h.Query, answer)
		wrote = true
	}
	if !wrote {
		b.WriteString("(none)\n")
	}
	fmt.Fprintf(&b, "\nUser message: %s\n\nReply:", query)

	content, err := c.complete(ctx, completionRequest{
		capability:  "reply",
		model:       c.selectModel("clarify", query),
		system:      c.prompts.ReplyPrompt,
		user:        b.String(),
		temperature: c.prompts.ReplyTemperature,
		maxTokens:   160,
	})
	if err != nil {
		return "", err
	}
	if content == "" {
		return "", ErrInvalidOutput
	}
	return content, nil
}

// ExtractMetadata asks the model for timeframe, filter and horizon hints.
// options lists known dataset values per column; only the first ten per
// column are sent.
func (c *Client) ExtractMetadata(ctx context.Context, query string, options map[string][]string, history []conversation.Turn) (Metadata, error) {
	var b strings.Builder
	b.WriteString("Known entity values to match (case-insensitive):\n")
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	hinted := false
	for _, k := range keys {
		values := options[k]
		if len(values) == 0 {
			continue
		}
		if len(values) > 10 {
			values = values[:10]
		}
		fmt.Fprintf(&b, "- %s: %s\n", k, strings.Join(values, ", "))
		hinted = true
	}
	if !hinted {
		b.WriteString("(no hints provided)\n")
	}
	b.WriteString("\nRecent user turns:\n")
	if len(history) == 0 {
		b.WriteString("(none)\n")
	}
	for _, h := range history {
		if h.Query != "" {
			fmt.Fprintf(&b, "User: %s\n", h.Query)
		}
	}
	fmt.Fprintf(&b, "\nCurrent query: %s\n", query)

	content, err := c.complete(ctx, completionRequest{
		capability:  "metadata",
		model:       c.selectModel("metadata", query),
		system:      c.prompts.MetadataPrompt,
		user:        b.String(),
		temperature: c.prompts.MetadataTemperature,
		maxTokens:   300,
		jsonOutput:  true,
	})
	if err != nil {
		return Metadata{}, err
	}
	raw, err := decodeObject(content)
	if err != nil {
		return Metadata{}, err
	}
	return ParseMetadata(raw), nil
}

// GeneratePlan asks the model for an aggregation plan. The result is
// untrusted and must be validated by the caller.
func (c *Client) GeneratePlan(ctx context.Context, kind PlanKind, query string) (map[string]any, error) {
	var system string
	switch kind {
	case PlanRoute:
		system = c.prompts.RoutePlanPrompt
	case PlanWarehouse:
		system = c.prompts.WarehousePlanPrompt
	case PlanDelay:
		system = c.prompts.DelayPlanPrompt
	default:
		return nil, fmt.Errorf("unknown plan kind %q", kind)
	}
	content, err := c.complete(ctx, completionRequest{
		capability:  "plan_" + string(kind),
		model:       c.selectModel("plan", query),
		system:      system,
		user:        "User query: " + query,
		temperature: c.prompts.PlanTemperature,
		maxTokens:   400,
		jsonOutput:  true,
	})
	if err != nil {
		return nil, err
	}
	return decodeObject(content)
}
