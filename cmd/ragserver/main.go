// Package main implements the RAG core's HTTP API server: knowledge base
// and document management, multi-mode search, and the conversation
// send-message protocol, grounded on cmd/api/main.go's process wiring.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ragcore/ragcore/internal/agent"
	"github.com/ragcore/ragcore/internal/config"
	"github.com/ragcore/ragcore/internal/conversation"
	"github.com/ragcore/ragcore/internal/httpapi"
	"github.com/ragcore/ragcore/internal/ingest"
	"github.com/ragcore/ragcore/internal/modelclient"
	"github.com/ragcore/ragcore/internal/obs"
	"github.com/ragcore/ragcore/internal/retrieval"
	"github.com/ragcore/ragcore/internal/store/blob"
	"github.com/ragcore/ragcore/internal/store/graph"
	"github.com/ragcore/ragcore/internal/store/metadata"
	"github.com/ragcore/ragcore/internal/store/vector"
	"github.com/ragcore/ragcore/pkg/mid"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.Load()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := obs.InitProvider(ctx, obs.ProviderConfig{ServiceName: "ragserver"})
	if err != nil {
		return fmt.Errorf("init otel provider: %w", err)
	}
	defer shutdownOTel(context.Background())
	metrics := obs.Default()

	metadataStore, err := metadata.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("postgres connect: %w", err)
	}
	defer metadataStore.Close()

	neo4jDriver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URL, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Pass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer neo4jDriver.Close(ctx)
	graphStore := graph.New(neo4jDriver)

	vectorStore, err := vector.New(cfg.Qdrant.GRPCAddr)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()

	blobStore, err := blob.New(ctx, blob.Config{
		Endpoint:  cfg.Blob.Endpoint,
		Region:    cfg.Blob.Region,
		Bucket:    cfg.Blob.Bucket,
		AccessKey: cfg.Blob.AccessKey,
		SecretKey: cfg.Blob.SecretKey,
		PathStyle: cfg.Blob.PathStyle,
	})
	if err != nil {
		return fmt.Errorf("blob store connect: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	usage := modelclient.NewChanUsageRecorder(256)
	go logUsage(ctx, logger, usage)

	embedder := modelclient.WrapEmbedder(
		modelclient.NewOllamaEmbedder(cfg.Models.OllamaURL, cfg.Models.EmbeddingModel),
		resilienceOpts(cfg, metrics, "ollama"),
	)
	llm := modelclient.WrapLLM(
		modelclient.NewAnthropicLLM(cfg.Models.AnthropicAPIKey, cfg.Models.AnthropicModel, usage),
		resilienceOpts(cfg, metrics, "anthropic"),
	)
	vision := modelclient.WrapVisionLanguage(
		modelclient.NewOpenAIVisionLanguage(cfg.Models.OpenAIAPIKey, cfg.Models.VisionModel),
		resilienceOpts(cfg, metrics, "openai_vision"),
	)
	reranker := modelclient.WrapReranker(
		modelclient.NewHTTPReranker(cfg.Models.RerankerURL),
		resilienceOpts(cfg, metrics, "reranker"),
	)

	retrievalEngine := retrieval.New(retrieval.Deps{
		Embedder: embedder,
		Reranker: reranker,
		LLM:      llm,
		Vectors:  vectorStore,
		Graph:    graphStore,
		Chunks:   metadataStore,
		Metrics:  metrics,
	})

	agentDeps := agent.Deps{
		Retrieval:         retrievalEngine,
		LLM:               llm,
		Metrics:           metrics,
		MaxParallelAgents: cfg.Concurrency.MaxParallelAgents,
	}
	orchestrator := agent.NewOrchestrator(agentDeps, redisClient)

	ingestDeps := ingest.Deps{
		Parser:   ingest.DefaultParser{},
		Embedder: embedder,
		Vision:   vision,
		Metadata: metadataStore,
		Vectors:  vectorStore,
		Graph:    graphStore,
		Blobs:    blobStore,
		Chunking: ingest.ChunkingConfig{
			TargetSize:   cfg.Chunking.TargetSize,
			OverlapSize:  cfg.Chunking.Overlap,
			MaxChunkSize: cfg.Chunking.MaxSize,
		},
		EmbedBatch: cfg.Concurrency.EmbedBatchSize,
		Logger:     logger,
		Metrics:    metrics,
	}

	convDeps := conversation.Deps{
		Metadata:     metadataStore,
		Orchestrator: orchestrator,
		Vision:       vision,
		Blobs:        blobStore,
		Metrics:      metrics,
		IdleTTL:      cfg.Session.IdleTTL,
		GCEvery:      cfg.Session.GCEvery,
	}
	registry := conversation.NewRegistry(metrics, redisClient)

	gcCtx, gcCancel := context.WithCancel(context.Background())
	defer gcCancel()
	go conversation.RunGC(gcCtx, registry, convDeps, logger)

	mux := httpapi.NewMux(httpapi.Deps{
		Metadata:     metadataStore,
		Vectors:      vectorStore,
		IngestDeps:   ingestDeps,
		Retrieval:    retrievalEngine,
		Conversation: convDeps,
		Registry:     registry,
		Metrics:      metrics,
		Logger:       logger,
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.HTTP.CORSOrigin),
		mid.OTel("ragserver"),
		obs.Middleware(metrics),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ragserver starting", "port", cfg.HTTP.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func resilienceOpts(cfg config.Config, metrics *obs.Metrics, backend string) modelclient.ResilienceOpts {
	opts := modelclient.DefaultResilienceOpts
	opts.Backend = backend
	opts.Metrics = metrics
	return opts
}

func logUsage(ctx context.Context, logger *slog.Logger, usage *modelclient.ChanUsageRecorder) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-usage.Records():
			logger.Info("model.usage",
				"backend", rec.Backend, "model", rec.Model,
				"prompt_tokens", rec.PromptTokens, "output_tokens", rec.OutputTokens,
				"err", rec.Err)
		}
	}
}
