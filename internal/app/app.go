package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"ragstore/features/document"
	"ragstore/features/stats"
	"ragstore/internal/adapter/docling"
	"ragstore/internal/adapter/gemini"
	wstore "ragstore/internal/adapter/weaviate"
	"ragstore/internal/blob"
	"ragstore/internal/config"
	"ragstore/internal/embedding"
	"ragstore/internal/middleware"
	"ragstore/internal/retrieval"
	"ragstore/internal/text"
	"ragstore/internal/worker"
)

type App struct {
	Handler         http.Handler
	DocumentService *document.Service
	Consumer        *worker.Consumer

	port int
}

func New(ctx context.Context, cfg *config.Config, db *sql.DB, wClient *weaviate.Client, pub document.EventPublisher) (*App, error) {
	docRepo := document.NewPostgresRepo(db)
	fragRepo := document.NewPostgresFragmentRepo(db)

	blobs, err := blob.NewLocalStore(cfg.UploadDir)
	if err != nil {
		return nil, err
	}

	// Embedding: a missing API key leaves the client nil; the provider then
	// rejects every call with a not-configured error instead of crashing the
	// server, so the document CRUD surface stays usable.
	var embedClient embedding.Client
	if cfg.GeminiAPIKey != "" {
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
		if err != nil {
			return nil, err
		}
		embedClient = client
	} else {
		slog.Warn("GEMINI_API_KEY not set, embedding is disabled")
	}
	embedder := embedding.NewProvider(embedClient, embedding.NewCache(),
		cfg.EmbedMaxRetries, time.Duration(cfg.EmbedTimeoutSeconds)*time.Second)

	// Retrieval strategy is fixed at startup: native delegates ranking to
	// Weaviate, memory ranks Postgres-held embeddings in-process.
	var strategy retrieval.Strategy
	var fragmentIndex *wstore.Store
	if cfg.RetrievalStrategy == config.StrategyNative {
		fragmentIndex = wstore.NewStore(wClient)
		strategy = retrieval.NewNativeStrategy(fragmentIndex, docRepo, cfg.RetrievalTopK, cfg.RetrievalMaxDistance)
	} else {
		strategy = retrieval.NewMemoryStrategy(fragRepo, cfg.RetrievalTopK)
	}

	// Typed-nil guard: the service and processor check their index against
	// nil, so only hand them a non-nil interface value.
	var docIndex document.FragmentIndex
	var workerIndex worker.FragmentIndex
	if fragmentIndex != nil {
		docIndex = fragmentIndex
		workerIndex = fragmentIndex
	}

	docService := document.NewService(docRepo, fragRepo, blobs, pub, docIndex,
		cfg.MaxUploadBytes(), cfg.ChunkOverlap)
	docHandler := document.NewHandler(docService, cfg.MaxUploadBytes())

	extractor := docling.NewClient(cfg.DoclingURL, 0)
	chunker := text.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	processor := worker.NewProcessor(docRepo, fragRepo, workerIndex, blobs, extractor, chunker, embedder)
	consumer := worker.NewConsumer(processor)

	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	retrievalService := retrieval.NewService(docRepo, embedder, strategy, queryLogger)
	retrievalHandler := retrieval.NewHandler(retrievalService)

	statsHandler := stats.NewHandler(docRepo, fragRepo, embedder)

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

	mux := http.NewServeMux()

	mux.Handle("POST /documents", middleware.CorrelationID(enableCORS(docHandler.Upload)))
	mux.Handle("GET /documents", middleware.CorrelationID(enableCORS(docHandler.List)))
	mux.Handle("GET /documents/{id}", middleware.CorrelationID(enableCORS(docHandler.Get)))
	mux.Handle("DELETE /documents/{id}", middleware.CorrelationID(enableCORS(docHandler.Delete)))
	mux.Handle("GET /documents/{id}/content", middleware.CorrelationID(enableCORS(docHandler.GetContent)))
	mux.Handle("POST /documents/{id}/reprocess", middleware.CorrelationID(enableCORS(docHandler.Reprocess)))

	mux.Handle("POST /query", middleware.CorrelationID(enableCORS(retrievalHandler.Query)))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.Get)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:         mux,
		DocumentService: docService,
		Consumer:        consumer,
		port:            cfg.ServerPort,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.port),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
