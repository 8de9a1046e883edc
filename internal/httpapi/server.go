package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ragcore/ragcore/internal/conversation"
	"github.com/ragcore/ragcore/internal/domain"
	"github.com/ragcore/ragcore/internal/ingest"
	"github.com/ragcore/ragcore/internal/obs"
	"github.com/ragcore/ragcore/internal/retrieval"
)

// MetadataStore is the subset of *metadata.Store the RPC surface needs for
// knowledge base and document management, narrowed the same way
// internal/ingest and internal/conversation narrow their own store seams.
type MetadataStore interface {
	CreateKnowledgeBase(ctx context.Context, name string, embeddingDims int) (domain.KnowledgeBase, error)
	GetKnowledgeBase(ctx context.Context, id string) (domain.KnowledgeBase, error)
	SoftDeleteKnowledgeBase(ctx context.Context, id string) error
	GetDocument(ctx context.Context, id string) (domain.Document, error)
}

// CollectionStore is the subset of *vector.Store the RPC surface needs to
// provision a new knowledge base's vector collection at creation time.
type CollectionStore interface {
	EnsureCollection(ctx context.Context, collection string, dims int) error
}

// Deps bundles every dependency the RPC surface needs. IngestDeps and
// Retrieval are the same package-level entry points
// cmd/ingestworker's NATS consumer and the conversation layer's workflows
// already call; this package adds no competing code path for either.
type Deps struct {
	Metadata     MetadataStore
	Vectors      CollectionStore
	IngestDeps   ingest.Deps
	Retrieval    *retrieval.Engine
	Conversation conversation.Deps
	Registry     *conversation.Registry
	Metrics      *obs.Metrics
	Logger       *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// NewMux builds the RPC surface's http.ServeMux. The caller wraps it with
// pkg/mid.Chain (Recover, Logger, CORS, OTel) and obs.Middleware exactly as
// cmd/ragserver does for every other route.
func NewMux(deps Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handleHealth)

	mux.HandleFunc("POST /api/v1/knowledge-bases", handleCreateKnowledgeBase(deps))
	mux.HandleFunc("GET /api/v1/knowledge-bases/{id}", handleGetKnowledgeBase(deps))
	mux.HandleFunc("DELETE /api/v1/knowledge-bases/{id}", handleDeleteKnowledgeBase(deps))

	mux.HandleFunc("POST /api/v1/knowledge-bases/{id}/documents", handleIngestDocument(deps))
	mux.HandleFunc("GET /api/v1/documents/{id}", handleGetDocumentStatus(deps))

	mux.HandleFunc("POST /api/v1/search", handleSearch(deps))

	mux.HandleFunc("POST /api/v1/conversations", handleStartConversation(deps))
	mux.HandleFunc("GET /api/v1/conversations/{id}/messages", handleListMessages(deps))
	mux.HandleFunc("POST /api/v1/conversations/{id}/messages", handleSendMessage(deps))

	return mux
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
