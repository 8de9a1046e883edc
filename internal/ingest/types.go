// Package ingest implements the Validate -> Parse -> Chunk -> Embed ->
// Index -> Finalize document ingestion pipeline.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"

	"github.com/ragcore/ragcore/internal/domain"
	"github.com/ragcore/ragcore/internal/modelclient"
	"github.com/ragcore/ragcore/internal/obs"
	"github.com/ragcore/ragcore/internal/store/graph"
	"github.com/ragcore/ragcore/internal/store/vector"
)

// MetadataStore is the subset of *metadata.Store the pipeline needs,
// narrowed to an interface so the pipeline can be exercised with a fake
// in tests without a live Postgres connection.
type MetadataStore interface {
	CreateDocument(ctx context.Context, d domain.Document) (domain.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status domain.DocumentStatus, message string) error
	InsertChunksTx(ctx context.Context, documentID string, chunks []domain.Chunk) error
	ActivateKnowledgeBase(ctx context.Context, id string) error
}

// VectorStore is the subset of *vector.Store the pipeline needs.
type VectorStore interface {
	Upsert(ctx context.Context, collection string, records []vector.Record) error
}

// GraphStore is the subset of *graph.Store the pipeline needs.
type GraphStore interface {
	UpsertBatch(ctx context.Context, nodes []graph.Node, edges []graph.Edge) error
}

// BlobStore is the subset of *blob.Store the pipeline needs.
type BlobStore interface {
	Put(ctx context.Context, key string, contentType string, content io.Reader) error
}

// ParsedContent is what an external Parser returns for an uploaded file.
type ParsedContent struct {
	Markdown  string
	Images    [][]byte
	Tables    []string
	PageCount int
	WordCount int
}

// Parser extracts structured content from raw file bytes. Implementations
// may call an external document-parsing service (DefaultParser parses in
// process) and may take seconds to minutes for large PDFs.
type Parser interface {
	Parse(ctx context.Context, contentType string, fileBytes []byte) (ParsedContent, error)
}

// UploadRequest is the caller-supplied input to IngestDocument.
type UploadRequest struct {
	KnowledgeBaseID string
	Filename        string
	ContentType     string
	Content         io.Reader
}

// ChunkingConfig configures the recursive chunker.
type ChunkingConfig struct {
	TargetSize   int
	OverlapSize  int
	MaxChunkSize int
}

// DefaultChunkingConfig holds the default target/overlap/max chunk sizes.
var DefaultChunkingConfig = ChunkingConfig{
	TargetSize:   1000,
	OverlapSize:  200,
	MaxChunkSize: 2000,
}

// QueueDepths reports current pressure on the downstream stages an
// admission-control gate checks before accepting a new document.
type QueueDepths struct {
	EmbedQueueDepth int
	IndexQueueDepth int
}

// HighWaterMarks are the thresholds QueueDepths are compared against.
type HighWaterMarks struct {
	EmbedHighWater int
	IndexHighWater int
}

// Deps holds every external dependency the ingestion pipeline needs.
type Deps struct {
	Parser     Parser
	Embedder   modelclient.Embedder
	Vision     modelclient.VisionLanguageClient
	Metadata   MetadataStore
	Vectors    VectorStore
	Graph      GraphStore
	Blobs      BlobStore
	Chunking   ChunkingConfig
	EmbedBatch int
	HighWater  HighWaterMarks
	QueueDepth func() QueueDepths
	Logger     *slog.Logger
	Metrics    *obs.Metrics
}

// contentHash computes the SHA-256 hex digest used for idempotency.
func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// stageContext threads a Document through the pipeline's stages,
// accumulating intermediate state as each stage completes.
type stageContext struct {
	doc       domain.Document
	raw       []byte
	parsed    ParsedContent
	chunks    []domain.Chunk
	embedding [][]float32
}
