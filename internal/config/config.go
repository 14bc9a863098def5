package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment string
	ListenHost  string
	ListenPort  string
	Store       StoreConfig
	Vector      VectorConfig
	Completion  CompletionConfig
	Images      ImagesConfig
	Currency    string
}

// StoreConfig holds relational store configuration
type StoreConfig struct {
	Path           string
	MigrationsPath string
	MaxOpenConns   int
	MaxIdleConns   int
}

// VectorConfig holds vector index configuration
type VectorConfig struct {
	Backend      string // "persistent" or "memory"
	Path         string
	EmbeddingDim int
}

// ImagesConfig holds the receipt image archive configuration. An empty Dir
// disables archiving.
type ImagesConfig struct {
	Dir string
}

// CompletionConfig holds completion-service configuration
type CompletionConfig struct {
	Endpoint       string
	VisionModel    string
	TextModel      string
	EmbeddingModel string
	MaxInflight    int
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	viper.AutomaticEnv()
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("LISTEN_HOST", "127.0.0.1")
	viper.SetDefault("LISTEN_PORT", "8081")
	viper.SetDefault("STORE_PATH", "./data/bookkeeper.db")
	viper.SetDefault("MIGRATIONS_PATH", "./migrations")
	viper.SetDefault("STORE_MAX_OPEN_CONNS", 1)
	viper.SetDefault("STORE_MAX_IDLE_CONNS", 1)
	viper.SetDefault("VECTOR_BACKEND", "persistent")
	viper.SetDefault("VECTOR_PATH", "./data/vectors")
	viper.SetDefault("EMBEDDING_DIM", 384)
	viper.SetDefault("COMPLETION_ENDPOINT", "http://localhost:11434")
	viper.SetDefault("VISION_MODEL", "llava:13b")
	viper.SetDefault("TEXT_MODEL", "llama3.1:8b")
	viper.SetDefault("EMBEDDING_MODEL", "all-minilm")
	viper.SetDefault("MAX_INFLIGHT_COMPLETIONS", 4)
	viper.SetDefault("IMAGES_PATH", "./data/images")
	viper.SetDefault("CURRENCY", "EUR")

	config := &Config{
		Environment: viper.GetString("ENVIRONMENT"),
		ListenHost:  viper.GetString("LISTEN_HOST"),
		ListenPort:  viper.GetString("LISTEN_PORT"),
		Store: StoreConfig{
			Path:           viper.GetString("STORE_PATH"),
			MigrationsPath: viper.GetString("MIGRATIONS_PATH"),
			MaxOpenConns:   viper.GetInt("STORE_MAX_OPEN_CONNS"),
			MaxIdleConns:   viper.GetInt("STORE_MAX_IDLE_CONNS"),
		},
		Vector: VectorConfig{
			Backend:      viper.GetString("VECTOR_BACKEND"),
			Path:         viper.GetString("VECTOR_PATH"),
			EmbeddingDim: viper.GetInt("EMBEDDING_DIM"),
		},
		Completion: CompletionConfig{
			Endpoint:       viper.GetString("COMPLETION_ENDPOINT"),
			VisionModel:    viper.GetString("VISION_MODEL"),
			TextModel:      viper.GetString("TEXT_MODEL"),
			EmbeddingModel: viper.GetString("EMBEDDING_MODEL"),
			MaxInflight:    viper.GetInt("MAX_INFLIGHT_COMPLETIONS"),
		},
		Images: ImagesConfig{
			Dir: viper.GetString("IMAGES_PATH"),
		},
		Currency: viper.GetString("CURRENCY"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks configuration values that would misconfigure the service
func (c *Config) Validate() error {
	if c.Vector.Backend != "persistent" && c.Vector.Backend != "memory" {
		return fmt.Errorf("invalid vector backend %q: must be persistent or memory", c.Vector.Backend)
	}
	if c.Vector.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("currency must be a 3-letter code")
	}
	if c.Completion.MaxInflight < 1 {
		return fmt.Errorf("max inflight completions must be at least 1")
	}
	return nil
}

// ListenAddr returns the host:port pair the HTTP server binds to
func (c *Config) ListenAddr() string {
	return c.ListenHost + ":" + c.ListenPort
}
