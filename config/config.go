// Package config loads ResearchGPT configuration from defaults, an optional
// config file, and environment variables, in increasing order of precedence.
//
// The config file is searched as researchgpt.yaml in the working directory
// and ~/.researchgpt/, or taken from $RESEARCHGPT_CONFIG. Every key can be
// overridden through the environment with the RESEARCHGPT_ prefix
// (dots become underscores), e.g. RESEARCHGPT_RETRIEVAL_TOP_K=8. The two
// credentials keep their conventional variable names: OPENAI_API_KEY and
// AZURE_STORAGE_CONNECTION_STRING.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all settings for the pipeline.
type Config struct {
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Azure     AzureConfig     `mapstructure:"azure"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Storage   StorageConfig   `mapstructure:"storage"`
	LogLevel  string          `mapstructure:"log_level"`
}

// OpenAIConfig configures the hosted model provider.
type OpenAIConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
}

// AzureConfig configures Azure Blob ingestion.
type AzureConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	Container        string `mapstructure:"container"`
}

// VectorConfig configures the vector store.
type VectorConfig struct {
	// Type is "chromem", "milvus", or "memory".
	Type string `mapstructure:"type"`
	// Path is the on-disk location for the chromem store.
	Path string `mapstructure:"path"`
	// Address is the milvus connection address.
	Address    string `mapstructure:"address"`
	Collection string `mapstructure:"collection"`
}

// ChunkingConfig controls document splitting.
type ChunkingConfig struct {
	Size    int `mapstructure:"size"`
	Overlap int `mapstructure:"overlap"`
}

// RetrievalConfig controls the ensemble retrievers.
type RetrievalConfig struct {
	TopK     int     `mapstructure:"top_k"`
	MinScore float64 `mapstructure:"min_score"`
	// Weights orders as semantic, multi-query, compression.
	Weights []float64 `mapstructure:"weights"`
	// RRFConstant is the k constant in reciprocal rank fusion.
	RRFConstant float64 `mapstructure:"rrf_constant"`
}

// StorageConfig controls local PDF bookkeeping.
type StorageConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	PDFDir        string `mapstructure:"pdf_dir"`
	Backup        bool   `mapstructure:"backup"`
	MaxFileSizeMB int64  `mapstructure:"max_file_size_mb"`
}

// Load reads configuration from all sources.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RESEARCHGPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional credential variables take precedence over file values
	// but stay overridable by the prefixed forms.
	if err := v.BindEnv("openai.api_key", "RESEARCHGPT_OPENAI_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("azure.connection_string", "RESEARCHGPT_AZURE_CONNECTION_STRING", "AZURE_STORAGE_CONNECTION_STRING"); err != nil {
		return nil, err
	}

	if path := os.Getenv("RESEARCHGPT_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("researchgpt")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".researchgpt"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("openai.model", "gpt-4")
	v.SetDefault("openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("azure.container", "research-papers")
	v.SetDefault("vector.type", "chromem")
	v.SetDefault("vector.path", "./vector_db")
	v.SetDefault("vector.address", "localhost:19530")
	v.SetDefault("vector.collection", "research_papers")
	v.SetDefault("chunking.size", 1000)
	v.SetDefault("chunking.overlap", 200)
	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.min_score", 0.7)
	v.SetDefault("retrieval.weights", []float64{0.4, 0.3, 0.3})
	v.SetDefault("retrieval.rrf_constant", 60.0)
	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.pdf_dir", "./pdfs")
	v.SetDefault("storage.backup", true)
	v.SetDefault("storage.max_file_size_mb", 50)
	v.SetDefault("log_level", "info")
}

// Validate checks that required settings are present: the OpenAI key
// always, and the Azure connection string when local storage is disabled
// (there has to be at least one document source).
func (c *Config) Validate() error {
	var missing []string
	if c.OpenAI.APIKey == "" {
		missing = append(missing, "openai.api_key (OPENAI_API_KEY)")
	}
	if !c.Storage.Enabled && c.Azure.ConnectionString == "" {
		missing = append(missing, "azure.connection_string (AZURE_STORAGE_CONNECTION_STRING)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", c.Chunking.Overlap, c.Chunking.Size)
	}
	if len(c.Retrieval.Weights) != 3 {
		return fmt.Errorf("retrieval.weights must list exactly 3 weights, got %d", len(c.Retrieval.Weights))
	}
	return nil
}

// MaxFileSizeBytes returns the storage size cap in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return c.Storage.MaxFileSizeMB * 1024 * 1024
}
