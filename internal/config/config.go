package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for configuration, relative to the workspace.
const DefaultPath = ".labreport/config.yaml"

// Config holds all labreport configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM backing the analysis strategies
	LLM LLMConfig `yaml:"llm"`

	// Embedding engine used by manual context search
	Embedding EmbeddingConfig `yaml:"embedding"`

	// SQLite store (subjects, chat logs, manuals, report metadata)
	Store StoreConfig `yaml:"store"`

	// Structured event log file
	EventLog EventLogConfig `yaml:"event_log"`

	// Tiered analysis
	Analysis AnalysisConfig `yaml:"analysis"`

	// Document rendering
	Report ReportConfig `yaml:"report"`

	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the LLM client shared by all strategies.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`

	// Temperature for analysis calls (original deployment used 0.3)
	Temperature float64 `yaml:"temperature"`

	// MaxConcurrent bounds in-flight requests on the shared client
	MaxConcurrent int `yaml:"max_concurrent"`
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // genai, ollama, none
	GenAIAPIKey    string `yaml:"genai_api_key"`
	GenAIModel     string `yaml:"genai_model"`
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
	TaskType       string `yaml:"task_type"`
}

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	// Driver: "sqlite" (modernc, pure Go) or "sqlite3" (mattn, cgo)
	Driver       string `yaml:"driver"`
	DatabasePath string `yaml:"database_path"`
}

// EventLogConfig configures the structured event log source.
type EventLogConfig struct {
	// Path to a JSON-lines file; ".gz" files are read through gzip
	Path string `yaml:"path"`
}

// AnalysisConfig configures the tiered orchestrator.
type AnalysisConfig struct {
	// MaxIterations is the primary agent's tool-loop budget
	MaxIterations int `yaml:"max_iterations"`

	// MaxStructuredLogs caps structured entries in the aggregated context
	MaxStructuredLogs int `yaml:"max_structured_logs"`

	// Timeout bounds one Analyze call end to end
	Timeout string `yaml:"timeout"`

	// PersistResults stores each result in the analysis_results table
	PersistResults bool `yaml:"persist_results"`
}

// ReportConfig configures the layout engine and artifact output.
type ReportConfig struct {
	ProductName string `yaml:"product_name"`
	OutputDir   string `yaml:"output_dir"`

	// Optional UTF-8 TrueType fonts; core Helvetica is used when empty
	FontPath     string `yaml:"font_path"`
	BoldFontPath string `yaml:"bold_font_path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	JSONFormat bool            `yaml:"json_format"`
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "labreport",
		Version: "0.4.0",

		LLM: LLMConfig{
			Provider:      "openai",
			Model:         "gpt-4o-mini",
			BaseURL:       "https://api.openai.com/v1",
			Timeout:       "120s",
			Temperature:   0.3,
			MaxConcurrent: 4,
		},

		Embedding: EmbeddingConfig{
			Provider:       "none",
			GenAIModel:     "gemini-embedding-001",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			TaskType:       "RETRIEVAL_QUERY",
		},

		Store: StoreConfig{
			Driver:       "sqlite",
			DatabasePath: ".labreport/labreport.db",
		},

		EventLog: EventLogConfig{
			Path: ".labreport/experiment_logs.jsonl",
		},

		Analysis: AnalysisConfig{
			MaxIterations:     3,
			MaxStructuredLogs: 100,
			Timeout:           "5m",
		},

		Report: ReportConfig{
			ProductName: "LabGuard",
			OutputDir:   "static/reports",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
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
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
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
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "openai"
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		if c.LLM.Provider == "gemini" || c.LLM.APIKey == "" {
			c.LLM.APIKey = key
			c.LLM.Provider = "gemini"
		}
		if c.Embedding.GenAIAPIKey == "" {
			c.Embedding.GenAIAPIKey = key
		}
	}

	if path := os.Getenv("LABREPORT_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if path := os.Getenv("LABREPORT_EVENT_LOG"); path != "" {
		c.EventLog.Path = path
	}
	if dir := os.Getenv("LABREPORT_OUTPUT_DIR"); dir != "" {
		c.Report.OutputDir = dir
	}
}

// Validate checks the fields the pipeline cannot run without.
// A missing API key is not an error: the primary strategy reports it at construction time.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unsupported llm provider: %q", c.LLM.Provider)
	}
	switch c.Store.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("unsupported store driver: %q", c.Store.Driver)
	}
	if c.Store.DatabasePath == "" {
		return fmt.Errorf("store.database_path is required")
	}
	if c.Analysis.MaxIterations <= 0 {
		return fmt.Errorf("analysis.max_iterations must be positive")
	}
	if c.Analysis.MaxStructuredLogs <= 0 {
		return fmt.Errorf("analysis.max_structured_logs must be positive")
	}
	if c.Report.ProductName == "" {
		return fmt.Errorf("report.product_name is required")
	}
	return nil
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetAnalysisTimeout returns the end-to-end analysis timeout.
func (c *Config) GetAnalysisTimeout() time.Duration {
	d, err := time.ParseDuration(c.Analysis.Timeout)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}
