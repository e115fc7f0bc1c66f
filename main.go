package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	chromemgo "github.com/philippgille/chromem-go"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"docquery/features/document"
	"docquery/features/query"
	chromemstore "docquery/internal/adapter/chromem"
	"docquery/internal/adapter/gemini"
	wstore "docquery/internal/adapter/weaviate"
	"docquery/internal/config"
	"docquery/internal/embed"
	"docquery/internal/extract"
	"docquery/internal/ingest"
	"docquery/internal/middleware"
	"docquery/internal/retrieval"
	"docquery/internal/text"
	"docquery/internal/vector"
	"docquery/internal/worker"
)

// vectorStore is the surface both backends provide.
type vectorStore interface {
	EnsureSchema(ctx context.Context) error
	UpsertChunks(ctx context.Context, chunks []vector.Chunk) (*vector.UpsertReport, error)
	NearestNeighbors(ctx context.Context, queryVector []float32, limit int) ([]vector.Match, error)
}

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// 2. Database Connection
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("failed to open db connection", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1, "max_attempts", cfg.BootstrapRetryAttempts)
		time.Sleep(retryDelay)
	}
	if err := db.Ping(); err != nil {
		slog.Error("failed to ping db after retries", "error", err)
		os.Exit(1)
	}

	// 3. Run Migrations
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		slog.Error("failed to create migration driver", "error", err)
		os.Exit(1)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		slog.Error("failed to create migration instance", "error", err)
		os.Exit(1)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("migrations applied successfully")

	// 4. Vector Store & Schema
	var vecStore vectorStore
	switch cfg.VectorBackend {
	case "chromem":
		chromemDB, err := chromemgo.NewPersistentDB(cfg.ChromemPath, false)
		if err != nil {
			slog.Error("failed to open chromem store", "error", err, "path", cfg.ChromemPath)
			os.Exit(1)
		}
		vecStore = chromemstore.NewStore(chromemDB, cfg.CollectionName)
	default:
		wCfg := weaviate.Config{
			Host:   cfg.WeaviateHost,
			Scheme: cfg.WeaviateScheme,
		}
		wClient, err := weaviate.NewClient(wCfg)
		if err != nil {
			slog.Error("failed to create weaviate client", "error", err)
			os.Exit(1)
		}
		vecStore = wstore.NewStore(wClient, cfg.CollectionName)
	}

	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := vecStore.EnsureSchema(context.Background()); err == nil {
			slog.Info("vector schema ensured", "backend", cfg.VectorBackend, "collection", cfg.CollectionName)
			break
		}
		slog.Warn("failed to ensure vector schema, retrying...", "attempt", i+1, "error", err)
		time.Sleep(retryDelay)
	}
	if err := vecStore.EnsureSchema(context.Background()); err != nil {
		slog.Error("failed to ensure vector schema after retries", "error", err)
		os.Exit(1)
	}

	// 5. Embedding & Pipeline
	geminiEmbedder, err := gemini.NewEmbedder(context.Background(), cfg.GeminiAPIKey, cfg.EmbeddingModel)
	if err != nil {
		slog.Error("failed to create gemini embedder", "error", err)
		os.Exit(1)
	}
	defer geminiEmbedder.Close()

	batcher := embed.NewBatcher(geminiEmbedder, cfg.EmbedBatchSize, cfg.EmbeddingDim)
	pipeline := ingest.NewPipeline(
		extract.NewExtractor(),
		text.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		batcher,
		vecStore,
	)

	// NSQ Producer
	nsqProducer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		slog.Error("failed to create NSQ producer", "error", err)
		os.Exit(1)
	}

	// Feature: Document
	docRepo := document.NewPostgresRepo(db)
	docService := document.NewService(docRepo, nsqProducer, pipeline)
	docHandler := document.NewHandler(docService, cfg.UploadDir, int(cfg.MaxUploadSizeMB))

	// Feature: Query
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	retrievalService := retrieval.NewService(batcher, vecStore, cfg.QueryTopK, queryLogger)
	queryHandler := query.NewHandler(retrievalService)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	http.Handle("POST /documents/upload", middleware.CorrelationID(enableCORS(docHandler.Upload)))
	http.Handle("POST /documents/upload-batch", middleware.CorrelationID(enableCORS(docHandler.UploadBatch)))
	http.Handle("GET /documents", middleware.CorrelationID(enableCORS(docHandler.List)))
	http.Handle("GET /documents/{id}", middleware.CorrelationID(enableCORS(docHandler.Get)))
	http.Handle("POST /query", middleware.CorrelationID(enableCORS(queryHandler.Query)))

	// Worker (Ingest Consumer)
	if cfg.EnableIngestWorker {
		ingestConsumer := worker.NewIngestConsumer(pipeline, docRepo)
		consumer, err := nsq.NewConsumer(document.IngestTopic, "backend", nsq.NewConfig())
		if err != nil {
			slog.Error("failed to create NSQ consumer", "error", err)
		} else {
			consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
				return ingestConsumer.HandleMessage(m)
			}))
			if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
				slog.Error("failed to connect to NSQLookupd", "error", err)
			} else {
				slog.Info("NSQ ingest consumer connected")
			}
		}
	}

	// 6. Start Server
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	slog.Info("server starting", "port", cfg.ServerPort)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.ServerPort), nil); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
