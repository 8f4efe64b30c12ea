// Package config holds all meshrouter configuration.
// Configuration is loaded from a YAML file with environment variable
// overrides, and every sub-config has working defaults so the router
// can start with no file at all.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all meshrouter configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Backend RPC connection
	Backend BackendConfig `yaml:"backend"`

	// Scene context analysis
	Scene SceneConfig `yaml:"scene"`

	// Geometry pattern detection
	Pattern PatternConfig `yaml:"pattern"`

	// Tool correction engine
	Correction CorrectionConfig `yaml:"correction"`

	// Workflow expansion
	Workflow WorkflowConfig `yaml:"workflow"`

	// Tool call overrides
	Override OverrideConfig `yaml:"override"`

	// Error firewall
	Firewall FirewallConfig `yaml:"firewall"`

	// Call interception audit
	Intercept InterceptConfig `yaml:"intercept"`

	// Vector store and semantic search
	Vector VectorConfig `yaml:"vector"`

	// Embedding engine
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// BackendConfig configures the backend RPC client.
type BackendConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	ConnectTimeout string `yaml:"connect_timeout"`
	CommandTimeout string `yaml:"command_timeout"`
}

// SceneConfig configures the scene context analyzer.
type SceneConfig struct {
	// CacheTTL is how long a cached snapshot stays fresh.
	CacheTTL string `yaml:"cache_ttl"`
}

// PatternConfig configures the geometry pattern detector.
type PatternConfig struct {
	// DetectionThreshold is the minimum confidence for a best match.
	DetectionThreshold float64 `yaml:"detection_threshold"`
}

// CorrectionConfig configures the tool correction engine.
// Each correction step can be toggled independently.
type CorrectionConfig struct {
	EnableModeSwitch bool `yaml:"enable_mode_switch"`
	EnableSelection  bool `yaml:"enable_selection"`
	EnableClamping   bool `yaml:"enable_clamping"`
}

// WorkflowConfig configures workflow triggering and adaptation.
type WorkflowConfig struct {
	// DefinitionsPath optionally extends the built-in workflow registry.
	DefinitionsPath string `yaml:"definitions_path"`

	// Confidence level boundaries for fuzzy-matched workflows.
	HighConfidence   float64 `yaml:"high_confidence"`
	MediumConfidence float64 `yaml:"medium_confidence"`
	LowConfidence    float64 `yaml:"low_confidence"`
}

// OverrideConfig configures the tool call override engine.
type OverrideConfig struct {
	// RulesPath points at a YAML file of override rules; empty leaves
	// the engine without rules.
	RulesPath string `yaml:"rules_path"`
}

// FirewallConfig configures the error firewall.
type FirewallConfig struct {
	// RulesPath optionally extends the built-in rule set.
	RulesPath string `yaml:"rules_path"`

	// WatchRules reloads RulesPath on file change.
	WatchRules bool `yaml:"watch_rules"`
}

// InterceptConfig configures the call interception audit store.
type InterceptConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// VectorConfig configures the vector store.
type VectorConfig struct {
	// IndexPath is the SQLite backing index; empty means in-memory only.
	IndexPath string `yaml:"index_path"`

	// SearchThreshold is the minimum cosine similarity for standard search.
	SearchThreshold float64 `yaml:"search_threshold"`

	// WeightedMinScore is the minimum final score for weighted workflow search.
	WeightedMinScore float64 `yaml:"weighted_min_score"`
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	// Provider: "ollama" or "genai". Empty disables semantic search
	// (classifiers fall back to TF-IDF).
	Provider string `yaml:"provider"`

	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`

	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"`

	// TaskType for GenAI embeddings.
	TaskType string `yaml:"task_type"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	File   string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "meshrouter",
		Version: "0.4.0",

		Backend: BackendConfig{
			Host:           "localhost",
			Port:           9876,
			ConnectTimeout: "5s",
			CommandTimeout: "15s",
		},

		Scene: SceneConfig{
			CacheTTL: "2s",
		},

		Pattern: PatternConfig{
			DetectionThreshold: 0.5,
		},

		Correction: CorrectionConfig{
			EnableModeSwitch: true,
			EnableSelection:  true,
			EnableClamping:   true,
		},

		Workflow: WorkflowConfig{
			HighConfidence:   0.90,
			MediumConfidence: 0.75,
			LowConfidence:    0.60,
		},

		Firewall: FirewallConfig{
			WatchRules: false,
		},

		Intercept: InterceptConfig{
			DatabasePath: "data/meshrouter.db",
		},

		Vector: VectorConfig{
			IndexPath:        "data/vectors.db",
			SearchThreshold:  0.5,
			WeightedMinScore: 0.45,
		},

		Embedding: EmbeddingConfig{
			Provider:       "",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			TaskType:       "SEMANTIC_SIMILARITY",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file, applying defaults for
// anything unset and environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if host := os.Getenv("MESHROUTER_BACKEND_HOST"); host != "" {
		c.Backend.Host = host
	}
	if port := os.Getenv("MESHROUTER_BACKEND_PORT"); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil && p > 0 {
			c.Backend.Port = p
		}
	}
	if path := os.Getenv("MESHROUTER_DB"); path != "" {
		c.Intercept.DatabasePath = path
	}
	if path := os.Getenv("MESHROUTER_VECTOR_DB"); path != "" {
		c.Vector.IndexPath = path
	}

	// Embedding provider keys (checked in priority order)
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Embedding.GenAIAPIKey = key
		if c.Embedding.Provider == "" {
			c.Embedding.Provider = "genai"
		}
	}
	if endpoint := os.Getenv("OLLAMA_HOST"); endpoint != "" {
		c.Embedding.OllamaEndpoint = endpoint
		if c.Embedding.Provider == "" {
			c.Embedding.Provider = "ollama"
		}
	}
}

// GetConnectTimeout returns the backend connect timeout as a duration.
func (c *Config) GetConnectTimeout() time.Duration {
	d, err := time.ParseDuration(c.Backend.ConnectTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// GetCommandTimeout returns the backend command timeout as a duration.
func (c *Config) GetCommandTimeout() time.Duration {
	d, err := time.ParseDuration(c.Backend.CommandTimeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// GetCacheTTL returns the scene cache TTL as a duration.
func (c *Config) GetCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Scene.CacheTTL)
	if err != nil {
		return 2 * time.Second
	}
	return d
}
