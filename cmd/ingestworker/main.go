// Package main implements the asynchronous document ingestion worker: a
// NATS consumer that runs uploads published to ingest.IngestSubject
// through the Validate->Parse->Chunk->Embed->Index->Finalize pipeline,
// grounded on cmd/api/main.go's process wiring style and
// engine/ingest.StartConsumer's retry/DLQ consumer.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ragcore/ragcore/internal/config"
	"github.com/ragcore/ragcore/internal/ingest"
	"github.com/ragcore/ragcore/internal/modelclient"
	"github.com/ragcore/ragcore/internal/obs"
	"github.com/ragcore/ragcore/internal/store/blob"
	"github.com/ragcore/ragcore/internal/store/graph"
	"github.com/ragcore/ragcore/internal/store/metadata"
	"github.com/ragcore/ragcore/internal/store/vector"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.Load()

	if err := run(cfg, logger); err != nil {
		logger.Error("ingestworker exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := obs.InitProvider(ctx, obs.ProviderConfig{ServiceName: "ingestworker"})
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

	usage := modelclient.NewChanUsageRecorder(256)
	go drainUsage(ctx, logger, usage)

	embedder := modelclient.WrapEmbedder(
		modelclient.NewOllamaEmbedder(cfg.Models.OllamaURL, cfg.Models.EmbeddingModel),
		resilienceOpts(metrics, "ollama"),
	)
	vision := modelclient.WrapVisionLanguage(
		modelclient.NewOpenAIVisionLanguage(cfg.Models.OpenAIAPIKey, cfg.Models.VisionModel),
		resilienceOpts(metrics, "openai_vision"),
	)

	nc, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

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

	sub, err := ingest.StartConsumer(nc, ingestDeps)
	if err != nil {
		return fmt.Errorf("start ingest consumer: %w", err)
	}
	defer sub.Unsubscribe()

	logger.Info("ingestworker started", "subject", ingest.IngestSubject)
	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nil
}

func resilienceOpts(metrics *obs.Metrics, backend string) modelclient.ResilienceOpts {
	opts := modelclient.DefaultResilienceOpts
	opts.Backend = backend
	opts.Metrics = metrics
	return opts
}

func drainUsage(ctx context.Context, logger *slog.Logger, usage *modelclient.ChanUsageRecorder) {
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
