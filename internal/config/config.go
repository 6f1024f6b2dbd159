package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration derived from environment variables and
// an optional YAML file.
type Config struct {
	HTTPPort        string
	DatasetPath     string
	DatasetTable    string
	WatchDataset    bool
	RunsDBPath      string
	WorkerCount     int
	QueueSize       int
	QueryTimeoutSec int
	HistoryLimit    int
	AllowedOrigins  []string
	LogLevel        string
	LogFormat       string
	StrictConfig    bool
	ConfigPath      string
	LLM             LLMConfig
	Prompts         PromptConfig
}

// LLMConfig configures the OpenAI-compatible completion endpoint.
type LLMConfig struct {
	Enabled    bool
	BaseURL    string
	APIKey     string
	TimeoutSec int
	Models     ModelMap
}

// ModelMap names the model used per call purpose.
type ModelMap struct {
	Intent    string `json:"intent" yaml:"intent"`
	Clarify   string `json:"clarify" yaml:"clarify"`
	Metadata  string `json:"metadata" yaml:"metadata"`
	Reasoning string `json:"reasoning" yaml:"reasoning"`
	Default   string `json:"default" yaml:"default"`
}

type fileConfig struct {
	HTTPPort        string        `json:"http_port" yaml:"http_port"`
	DatasetPath     string        `json:"dataset_path" yaml:"dataset_path"`
	DatasetTable    string        `json:"dataset_table" yaml:"dataset_table"`
	WatchDataset    *bool         `json:"watch_dataset" yaml:"watch_dataset"`
	RunsDBPath      string        `json:"runs_db_path" yaml:"runs_db_path"`
	WorkerCount     *int          `json:"worker_count" yaml:"worker_count"`
	QueueSize       *int          `json:"queue_size" yaml:"queue_size"`
	QueryTimeoutSec *int          `json:"query_timeout_sec" yaml:"query_timeout_sec"`
	HistoryLimit    *int          `json:"history_limit" yaml:"history_limit"`
	AllowedOrigins  []string      `json:"allowed_origins" yaml:"allowed_origins"`
	LogLevel        string        `json:"log_level" yaml:"log_level"`
	LogFormat       string        `json:"log_format" yaml:"log_format"`
	LLM             llmFileConfig `json:"llm" yaml:"llm"`
	Prompts         PromptConfig  `json:"prompts" yaml:"prompts"`
}

type llmFileConfig struct {
	Enabled    *bool    `json:"enabled" yaml:"enabled"`
	BaseURL    string   `json:"base_url" yaml:"base_url"`
	TimeoutSec *int     `json:"timeout_sec" yaml:"timeout_sec"`
	Models     ModelMap `json:"models" yaml:"models"`
}

const (
	defaultPort            = ":8000"
	defaultDatasetPath     = "data/shipments.csv"
	defaultDatasetTable    = "shipments"
	defaultRunsDBPath      = "runtime/hermes.db"
	minQueueSize           = 1
	defaultQueueSize       = 64
	maxQueueSize           = 1024
	defaultWorkerCount     = 4
	defaultQueryTimeoutSec = 60
	defaultHistoryLimit    = 50
	defaultLLMTimeoutSec   = 20
	defaultLLMBaseURL      = "https://api.groq.com/openai"
)

var defaultAllowedOrigins = []string{"http://localhost:8000", "http://localhost:3000"}

// DefaultModels mirrors the per-purpose model choices of the hosted endpoint.
func DefaultModels() ModelMap {
	return ModelMap{
		Intent:    "llama-3.1-8b-instant",
		Clarify:   "llama-3.3-70b-versatile",
		Metadata:  "llama-3.3-70b-versatile",
		Reasoning: "llama-3.3-70b-versatile",
		Default:   "llama-3.1-8b-instant",
	}
}

// Load reads configuration from .env, the YAML file and environment
// variables, in increasing order of precedence.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		WorkerCount:     defaultWorkerCount,
		QueueSize:       defaultQueueSize,
		QueryTimeoutSec: defaultQueryTimeoutSec,
		HistoryLimit:    defaultHistoryLimit,
		StrictConfig:    parseBoolEnv("STRICT_CONFIG"),
		LLM: LLMConfig{
			Enabled:    true,
			BaseURL:    defaultLLMBaseURL,
			TimeoutSec: defaultLLMTimeoutSec,
			Models:     DefaultModels(),
		},
	}

	configPath := getEnv("CONFIG_PATH", filepath.Join("config", "hermes.yaml"))
	cfg.ConfigPath = configPath
	fileCfg, fileErr := loadFileConfig(configPath)
	if fileErr != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("config load failed (%s): %w", configPath, fileErr)
		}
		log.Debug().Err(fileErr).Str("path", configPath).Msg("config file not loaded, using defaults")
	}
	applyFileOverrides(&cfg, fileCfg)

	cfg.HTTPPort = firstNonEmpty(os.Getenv("HTTP_PORT"), fileCfg.HTTPPort, defaultPort)
	if legacyPort := os.Getenv("PORT"); legacyPort != "" && cfg.HTTPPort == defaultPort {
		cfg.HTTPPort = legacyPort
	}
	if !strings.HasPrefix(cfg.HTTPPort, ":") && !strings.Contains(cfg.HTTPPort, ":") {
		cfg.HTTPPort = ":" + cfg.HTTPPort
	}
	cfg.DatasetPath = firstNonEmpty(os.Getenv("DATASET_PATH"), fileCfg.DatasetPath, defaultDatasetPath)
	cfg.DatasetTable = firstNonEmpty(os.Getenv("DATASET_TABLE"), fileCfg.DatasetTable, defaultDatasetTable)
	cfg.RunsDBPath = firstNonEmpty(os.Getenv("RUNS_DB_PATH"), fileCfg.RunsDBPath, defaultRunsDBPath)
	cfg.LogLevel = strings.ToLower(firstNonEmpty(os.Getenv("LOG_LEVEL"), fileCfg.LogLevel, "info"))
	cfg.LogFormat = strings.ToLower(firstNonEmpty(os.Getenv("LOG_FORMAT"), fileCfg.LogFormat, "console"))
	if v := os.Getenv("WATCH_DATASET"); strings.TrimSpace(v) != "" {
		cfg.WatchDataset = parseBoolEnv("WATCH_DATASET")
	}
	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = append([]string(nil), defaultAllowedOrigins...)
	}

	if v, ok, err := parseIntEnv("WORKER_COUNT"); err != nil || (ok && v <= 0) {
		log.Warn().Str("value", os.Getenv("WORKER_COUNT")).Msgf("invalid WORKER_COUNT, using %d", cfg.WorkerCount)
	} else if ok {
		cfg.WorkerCount = v
	}

	if v, ok, err := parseIntEnv("QUEUE_SIZE"); err != nil {
		log.Warn().Str("value", os.Getenv("QUEUE_SIZE")).Msgf("invalid QUEUE_SIZE, using %d", cfg.QueueSize)
	} else if ok {
		cfg.QueueSize = v
	}
	if cfg.QueueSize < minQueueSize {
		log.Warn().Msgf("QUEUE_SIZE raised to minimum %d (was %d)", minQueueSize, cfg.QueueSize)
		cfg.QueueSize = minQueueSize
	}
	if cfg.QueueSize > maxQueueSize {
		log.Warn().Msgf("QUEUE_SIZE capped at %d (was %d)", maxQueueSize, cfg.QueueSize)
		cfg.QueueSize = maxQueueSize
	}
	if cfg.QueueSize < cfg.WorkerCount {
		log.Warn().Msgf("QUEUE_SIZE must be >= WORKER_COUNT; using %d", max(defaultQueueSize, cfg.WorkerCount))
		cfg.QueueSize = max(defaultQueueSize, cfg.WorkerCount)
	}

	if v, ok, err := parseIntEnv("QUERY_TIMEOUT_SEC"); err != nil {
		return cfg, fmt.Errorf("invalid QUERY_TIMEOUT_SEC: %w", err)
	} else if ok {
		if v <= 0 {
			return cfg, errors.New("QUERY_TIMEOUT_SEC must be positive")
		}
		cfg.QueryTimeoutSec = v
	}

	if v, ok, err := parseIntEnv("HISTORY_LIMIT"); err != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("invalid HISTORY_LIMIT: %w", err)
		}
		log.Warn().Err(err).Msg("invalid HISTORY_LIMIT (using default)")
	} else if ok && v > 0 {
		cfg.HistoryLimit = v
	}

	if v := os.Getenv("LLM_ENABLED"); strings.TrimSpace(v) != "" {
		cfg.LLM.Enabled = parseBoolEnv("LLM_ENABLED")
	}
	cfg.LLM.BaseURL = strings.TrimRight(firstNonEmpty(
		os.Getenv("LLM_BASE_URL"),
		os.Getenv("OPENAI_BASE_URL"),
		cfg.LLM.BaseURL,
	), "/")
	cfg.LLM.APIKey = firstNonEmpty(
		os.Getenv("LLM_API_KEY"),
		os.Getenv("GROQ_API_KEY"),
		os.Getenv("OPENAI_API_KEY"),
	)
	if v, ok, err := parseIntEnv("LLM_TIMEOUT_SEC"); err != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("invalid LLM_TIMEOUT_SEC: %w", err)
		}
		log.Warn().Err(err).Msg("invalid LLM_TIMEOUT_SEC (using default)")
	} else if ok && v > 0 {
		cfg.LLM.TimeoutSec = v
	}
	cfg.LLM.Models = mergeModels(cfg.LLM.Models, ModelMap{
		Intent:    os.Getenv("LLM_MODEL_INTENT"),
		Clarify:   os.Getenv("LLM_MODEL_CLARIFY"),
		Metadata:  os.Getenv("LLM_MODEL_METADATA"),
		Reasoning: os.Getenv("LLM_MODEL_REASONING"),
		Default:   os.Getenv("LLM_MODEL_DEFAULT"),
	})

	cfg.Prompts = MergePromptConfig(DefaultPromptConfig(), fileCfg.Prompts)
	if cfg.LLM.Enabled && cfg.LLM.APIKey == "" {
		log.Warn().Msg("LLM enabled without an API key; intent, metadata and plan calls use local heuristics")
	}

	if err := validateConfig(cfg); err != nil {
		if cfg.StrictConfig {
			return cfg, err
		}
		log.Warn().Err(err).Msg("config validation failed (continuing)")
	}
	return cfg, nil
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if len(data) == 0 {
		return cfg, errors.New("empty config file")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func applyFileOverrides(cfg *Config, override fileConfig) {
	if override.WatchDataset != nil {
		cfg.WatchDataset = *override.WatchDataset
	}
	if override.WorkerCount != nil && *override.WorkerCount > 0 {
		cfg.WorkerCount = *override.WorkerCount
	}
	if override.QueueSize != nil && *override.QueueSize > 0 {
		cfg.QueueSize = *override.QueueSize
	}
	if override.QueryTimeoutSec != nil && *override.QueryTimeoutSec > 0 {
		cfg.QueryTimeoutSec = *override.QueryTimeoutSec
	}
	if override.HistoryLimit != nil && *override.HistoryLimit > 0 {
		cfg.HistoryLimit = *override.HistoryLimit
	}
	if len(override.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = append([]string(nil), override.AllowedOrigins...)
	}
	if override.LLM.Enabled != nil {
		cfg.LLM.Enabled = *override.LLM.Enabled
	}
	if strings.TrimSpace(override.LLM.BaseURL) != "" {
		cfg.LLM.BaseURL = strings.TrimSpace(override.LLM.BaseURL)
	}
	if override.LLM.TimeoutSec != nil && *override.LLM.TimeoutSec > 0 {
		cfg.LLM.TimeoutSec = *override.LLM.TimeoutSec
	}
	cfg.LLM.Models = mergeModels(cfg.LLM.Models, override.LLM.Models)
}

func mergeModels(base, override ModelMap) ModelMap {
	if v := strings.TrimSpace(override.Intent); v != "" {
		base.Intent = v
	}
	if v := strings.TrimSpace(override.Clarify); v != "" {
		base.Clarify = v
	}
	if v := strings.TrimSpace(override.Metadata); v != "" {
		base.Metadata = v
	}
	if v := strings.TrimSpace(override.Reasoning); v != "" {
		base.Reasoning = v
	}
	if v := strings.TrimSpace(override.Default); v != "" {
		base.Default = v
	}
	return base
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.DatasetPath) == "" {
		return errors.New("DATASET_PATH is required")
	}
	if strings.TrimSpace(cfg.HTTPPort) == "" {
		return errors.New("HTTP_PORT is required")
	}
	switch cfg.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be console or json (got %q)", cfg.LogFormat)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseIntEnv(key string) (int, bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false, nil
	}
	val, err := strconv.Atoi(raw)
	return val, true, err
}
