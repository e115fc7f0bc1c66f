package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"docquery"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"docquery"`

	// Vector store. "weaviate" talks to a Weaviate instance, "chromem"
	// keeps an embedded store on local disk.
	VectorBackend  string `envconfig:"VECTOR_BACKEND" default:"weaviate"`
	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`
	ChromemPath    string `envconfig:"CHROMEM_PATH" default:"data/chromem"`
	CollectionName string `envconfig:"COLLECTION_NAME" default:"DocumentChunk"`

	GeminiAPIKey   string `envconfig:"GEMINI_API_KEY"`
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-004"`
	EmbeddingDim   int    `envconfig:"EMBEDDING_DIM" default:"768"`
	EmbedBatchSize int    `envconfig:"EMBED_BATCH_SIZE" default:"100"`

	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"200"`

	NSQLookupd         string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost           string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	EnableIngestWorker bool   `envconfig:"ENABLE_INGEST_WORKER" default:"true"`

	ServerPort      int    `envconfig:"SERVER_PORT" default:"8081"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`
	UploadDir       string `envconfig:"UPLOAD_DIR" default:"./uploads"`
	QueryLogPath    string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	QueryTopK       int    `envconfig:"QUERY_TOP_K" default:"5"`
	MigrationPath   string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars may come from the shell; .env files are optional.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	switch c.VectorBackend {
	case "weaviate", "chromem":
	default:
		return fmt.Errorf("unknown VECTOR_BACKEND %q", c.VectorBackend)
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("EMBEDDING_DIM must be positive, got %d", c.EmbeddingDim)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	if c.EmbedBatchSize <= 0 {
		return fmt.Errorf("EMBED_BATCH_SIZE must be positive, got %d", c.EmbedBatchSize)
	}
	return nil
}
