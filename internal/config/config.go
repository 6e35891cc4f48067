package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

type AdviceLLMConfig struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	ContextSize int    `json:"context_size"`
}

type MonitorConfig struct {
	MinMonitoringSeconds  int     `json:"min_monitoring_seconds"`
	MaxMonitoringSeconds  int     `json:"max_monitoring_seconds"`
	SignificanceThreshold float64 `json:"significance_threshold"`
	LearningThreshold     float64 `json:"learning_threshold"`
	EngagementThreshold   float64 `json:"engagement_threshold"`
	DecaySeconds          float64 `json:"decay_seconds"`
	MaxSessions           int     `json:"max_sessions"`
	SweepIntervalSeconds  int     `json:"sweep_interval_seconds"`
}

type FeedbackConfig struct {
	LearningRate float64 `json:"learning_rate"`
}

type CoachConfig struct {
	MaxConcurrentDecisions int  `json:"max_concurrent_decisions"`
	MaxToolCalls           int  `json:"max_tool_calls"`
	MaxProcessingMs        int  `json:"max_processing_ms"`
	DeferOverCap           bool `json:"defer_over_cap"`
	AllowExternalCalls     bool `json:"allow_external_calls"`
	HistoryWindow          int  `json:"history_window"`
}

type Config struct {
	Server struct {
		Host      string `json:"host"`
		Port      int    `json:"port"`
		JWTSecret string `json:"jwtSecret"`
	} `json:"server"`
	Postgres struct {
		DSN string `json:"dsn"`
	} `json:"postgres"`
	SQLite struct {
		Path string `json:"path"`
	} `json:"sqlite"`
	Redis struct {
		Addr     string `json:"addr"`
		Password string `json:"password"`
		DB       int    `json:"db"`
	} `json:"redis"`
	Qdrant struct {
		URL        string `json:"url"`
		Collection string `json:"collection"`
		APIKey     string `json:"api_key"`
	} `json:"qdrant"`
	EmbeddingModel struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"embedding_model"`
	AdviceLLM AdviceLLMConfig `json:"advice_llm"`
	Tracker   struct {
		BaseURL string `json:"base_url"`
	} `json:"tracker"`
	TTS struct {
		URL string `json:"url"`
	} `json:"tts"`
	Monitor  MonitorConfig  `json:"monitor"`
	Feedback FeedbackConfig `json:"feedback"`
	Coach    CoachConfig    `json:"coach"`
}

var (
	once   sync.Once
	cfg    *Config
	cfgErr error
)

// LoadConfig reads config.json from disk (singleton)
func LoadConfig(path string) (*Config, error) {
	once.Do(func() {
		raw, err := os.ReadFile(path)
		if err != nil {
			cfgErr = fmt.Errorf("failed to read config file: %w", err)
			return
		}
		var c Config
		if err := json.Unmarshal(raw, &c); err != nil {
			cfgErr = fmt.Errorf("invalid config format: %w", err)
			return
		}
		// Minimal validation
		if c.Server.JWTSecret == "" {
			cfgErr = errors.New("jwtSecret must be set in config")
			return
		}
		applyDefaults(&c)
		cfg = &c
	})
	return cfg, cfgErr
}

// applyDefaults fills tuning knobs the operator left unset. The monitor and
// feedback constants mirror the values the scoring model was calibrated with.
func applyDefaults(c *Config) {
	if c.Monitor.MinMonitoringSeconds == 0 {
		c.Monitor.MinMonitoringSeconds = 10
	}
	if c.Monitor.MaxMonitoringSeconds == 0 {
		c.Monitor.MaxMonitoringSeconds = 60
	}
	if c.Monitor.SignificanceThreshold == 0 {
		c.Monitor.SignificanceThreshold = 0.3
	}
	if c.Monitor.LearningThreshold == 0 {
		c.Monitor.LearningThreshold = 0.6
	}
	if c.Monitor.EngagementThreshold == 0 {
		c.Monitor.EngagementThreshold = 0.6
	}
	if c.Monitor.DecaySeconds == 0 {
		c.Monitor.DecaySeconds = 30
	}
	if c.Monitor.MaxSessions == 0 {
		c.Monitor.MaxSessions = 64
	}
	if c.Monitor.SweepIntervalSeconds == 0 {
		c.Monitor.SweepIntervalSeconds = 15
	}
	if c.Feedback.LearningRate == 0 {
		c.Feedback.LearningRate = 0.1
	}
	if c.Coach.MaxConcurrentDecisions == 0 {
		c.Coach.MaxConcurrentDecisions = 3
	}
	if c.Coach.MaxToolCalls == 0 {
		c.Coach.MaxToolCalls = 6
	}
	if c.Coach.MaxProcessingMs == 0 {
		c.Coach.MaxProcessingMs = 5000
	}
	if c.Coach.HistoryWindow == 0 {
		c.Coach.HistoryWindow = 128
	}
}

// GetConfig returns the loaded config (must call LoadConfig first)
func GetConfig() *Config {
	return cfg
}

// ResetConfigForTest resets the singleton state (for testing only)
func ResetConfigForTest() {
	once = sync.Once{}
	cfg = nil
	cfgErr = nil
}
