// Package config provides configuration loading for agentkb.
//
// Configuration is assembled from hardcoded defaults, an optional YAML file
// and AGENTKB_* environment variables, in that order of precedence (lowest
// first). See LoadWithFile.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete agentkb configuration.
type Config struct {
	Logging     LoggingConfig     `koanf:"logging"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Knowledge   KnowledgeConfig   `koanf:"knowledge"`
	Storage     StorageConfig     `koanf:"storage"`
	Model       ModelConfig       `koanf:"model"`
	Agent       AgentConfig       `koanf:"agent"`
	Secrets     SecretsConfig     `koanf:"secrets"`
	Server      ServerConfig      `koanf:"server"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// LoggingConfig selects the log level and encoder.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// EmbeddingsConfig configures the trained embedding model.
//
// When the configured provider cannot be constructed the embedding client
// runs on the deterministic hash fallback for its whole lifetime.
type EmbeddingsConfig struct {
	// Provider is "fastembed" (local ONNX), "remote" (OpenAI-compatible
	// endpoint such as TEI) or "fallback" (never load a model).
	Provider  string `koanf:"provider"`
	Model     string `koanf:"model"`
	BaseURL   string `koanf:"base_url"`
	APIKey    Secret `koanf:"api_key"`
	CacheDir  string `koanf:"cache_dir"`
	MaxLength int    `koanf:"max_length"`
}

// VectorStoreConfig selects and configures the vector database.
type VectorStoreConfig struct {
	Provider string        `koanf:"provider"`
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem-go database.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	Compress   bool   `koanf:"compress"`
}

// QdrantConfig configures a remote Qdrant instance.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	Collection string `koanf:"collection"`
	APIKey     Secret `koanf:"api_key"`
	UseTLS     bool   `koanf:"use_tls"`
}

// KnowledgeConfig lists the documents that back the agent's knowledge.
type KnowledgeConfig struct {
	URLs         []string `koanf:"urls"`
	ChunkSize    int      `koanf:"chunk_size"`
	ChunkOverlap int      `koanf:"chunk_overlap"`
	NumDocuments int      `koanf:"num_documents"`
}

// StorageConfig configures agent session storage.
type StorageConfig struct {
	Provider string `koanf:"provider"`
	Path     string `koanf:"path"`
	Table    string `koanf:"table"`
	RedisURL Secret `koanf:"redis_url"`
}

// ModelConfig configures the chat model.
type ModelConfig struct {
	ID          string        `koanf:"id"`
	BaseURL     string        `koanf:"base_url"`
	APIKey      Secret        `koanf:"api_key"`
	APIKeyEnv   string        `koanf:"api_key_env"`
	Temperature float64       `koanf:"temperature"`
	RateLimit   float64       `koanf:"rate_limit"`
	Timeout     time.Duration `koanf:"timeout"`
}

// AgentConfig configures how the agent composes its prompt.
type AgentConfig struct {
	Name                      string   `koanf:"name"`
	Instructions              []string `koanf:"instructions"`
	NumHistoryRuns            int      `koanf:"num_history_runs"`
	AddHistoryToMessages      bool     `koanf:"add_history_to_messages"`
	AddDatetimeToInstructions bool     `koanf:"add_datetime_to_instructions"`
	Markdown                  bool     `koanf:"markdown"`
}

// ServerConfig is the listen address of `agentkb serve`.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// SecretsConfig controls redaction of credentials from stored sessions and
// indexed knowledge.
type SecretsConfig struct {
	Enabled bool `koanf:"enabled"`

	// Allowlist is a TOML file in .gitleaks.toml allowlist format.
	Allowlist string `koanf:"allowlist"`
}

// TelemetryConfig configures optional OTLP export of traces and metrics.
type TelemetryConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"`

	// Protocol is "grpc" (default) or "http/protobuf".
	Protocol        string   `koanf:"protocol"`
	Insecure        bool     `koanf:"insecure"`
	SamplingRate    float64  `koanf:"sampling_rate"`
	Metrics         bool     `koanf:"metrics"`
	ExportInterval  Duration `koanf:"export_interval"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Default returns the configuration used when nothing else is provided.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "fastembed",
			Model:     "sentence-transformers/all-MiniLM-L6-v2",
			BaseURL:   "http://localhost:8080/v1",
			CacheDir:  "tmp/models",
			MaxLength: 512,
		},
		VectorStore: VectorStoreConfig{
			Provider: "chromem",
			Chromem: ChromemConfig{
				Path:       "tmp/chromem",
				Collection: "agno_docs_with_embeddings",
			},
			Qdrant: QdrantConfig{
				Host:       "localhost",
				Port:       6334,
				Collection: "agno_docs_with_embeddings",
			},
		},
		Knowledge: KnowledgeConfig{
			URLs:         []string{"https://docs.agno.com/introduction.md"},
			ChunkSize:    1000,
			ChunkOverlap: 100,
			NumDocuments: 5,
		},
		Storage: StorageConfig{
			Provider: "file",
			Path:     "tmp/sessions",
			Table:    "agent_sessions_with_embeddings",
		},
		Model: ModelConfig{
			ID:          "deepseek-chat",
			BaseURL:     "https://api.deepseek.com/v1",
			APIKeyEnv:   "DEEPSEEK_API_KEY",
			Temperature: 0.7,
			RateLimit:   2,
			Timeout:     60 * time.Second,
		},
		Agent: AgentConfig{
			Name: "Level 2 Agent with Embeddings",
			Instructions: []string{
				"Search your knowledge before answering the question.",
				"Only include the output in your response. No other text.",
			},
			NumHistoryRuns:            3,
			AddHistoryToMessages:      true,
			AddDatetimeToInstructions: true,
			Markdown:                  true,
		},
		Secrets: SecretsConfig{
			Enabled: true,
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: 9090,
		},
		Telemetry: TelemetryConfig{
			Enabled:         false,
			Endpoint:        "localhost:4317",
			Protocol:        "grpc",
			Insecure:        true,
			SamplingRate:    1.0,
			Metrics:         true,
			ExportInterval:  Duration(15 * time.Second),
			ShutdownTimeout: Duration(5 * time.Second),
		},
	}
}

// Validate validates the configuration.
//
// Returns an error if:
//   - a provider name is unknown
//   - knowledge chunking parameters are inconsistent
//   - history or retrieval counts are negative
//   - the chat model has no id or base URL
func (c *Config) Validate() error {
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	switch c.Embeddings.Provider {
	case "fastembed", "remote", "fallback":
	default:
		return fmt.Errorf("invalid embeddings provider %q (valid: fastembed, remote, fallback)", c.Embeddings.Provider)
	}
	if c.Embeddings.Provider == "remote" && c.Embeddings.BaseURL == "" {
		return errors.New("embeddings base_url is required when provider is remote")
	}

	switch c.VectorStore.Provider {
	case "chromem":
		if c.VectorStore.Chromem.Collection == "" {
			return errors.New("vectorstore chromem collection is required")
		}
	case "qdrant":
		if c.VectorStore.Qdrant.Host == "" {
			return errors.New("vectorstore qdrant host is required")
		}
		if c.VectorStore.Qdrant.Port < 1 || c.VectorStore.Qdrant.Port > 65535 {
			return fmt.Errorf("invalid qdrant port: %d (must be 1-65535)", c.VectorStore.Qdrant.Port)
		}
	default:
		return fmt.Errorf("invalid vectorstore provider %q (valid: chromem, qdrant)", c.VectorStore.Provider)
	}

	if c.Knowledge.ChunkSize <= 0 {
		return fmt.Errorf("knowledge chunk_size must be positive, got %d", c.Knowledge.ChunkSize)
	}
	if c.Knowledge.ChunkOverlap < 0 || c.Knowledge.ChunkOverlap >= c.Knowledge.ChunkSize {
		return fmt.Errorf("knowledge chunk_overlap must be in [0, chunk_size), got %d", c.Knowledge.ChunkOverlap)
	}
	if c.Knowledge.NumDocuments < 0 {
		return fmt.Errorf("knowledge num_documents cannot be negative, got %d", c.Knowledge.NumDocuments)
	}

	switch c.Storage.Provider {
	case "file":
		if c.Storage.Path == "" {
			return errors.New("storage path is required when provider is file")
		}
	case "redis":
		if !c.Storage.RedisURL.IsSet() {
			return errors.New("storage redis_url is required when provider is redis")
		}
	default:
		return fmt.Errorf("invalid storage provider %q (valid: file, redis)", c.Storage.Provider)
	}
	if c.Storage.Table == "" {
		return errors.New("storage table is required")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}

	if c.Model.ID == "" || c.Model.BaseURL == "" {
		return errors.New("model id and base_url are required")
	}
	if c.Model.RateLimit < 0 {
		return fmt.Errorf("model rate_limit cannot be negative, got %v", c.Model.RateLimit)
	}

	if c.Agent.NumHistoryRuns < 0 {
		return fmt.Errorf("agent num_history_runs cannot be negative, got %d", c.Agent.NumHistoryRuns)
	}

	return nil
}
