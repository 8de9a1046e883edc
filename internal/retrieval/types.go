// Package retrieval implements the multi-mode search engine: dense and
// sparse vector search, graph traversal, client-side reciprocal-rank
// fusion, optional reranking and query expansion, and a small filter AST
// pushed to the vector store where possible.
package retrieval

import (
	"context"
	"time"

	"github.com/ragcore/ragcore/internal/domain"
	"github.com/ragcore/ragcore/internal/modelclient"
	"github.com/ragcore/ragcore/internal/obs"
	"github.com/ragcore/ragcore/internal/store/graph"
	"github.com/ragcore/ragcore/internal/store/vector"
)

// Mode selects which retrieval strategy answers a Request.
type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeSparse   Mode = "sparse"
	ModeHybrid   Mode = "hybrid"
	ModeGraph    Mode = "graph"
	ModeAll      Mode = "all"
)

const (
	defaultTopK          = 10
	defaultSubSearchWait = 5 * time.Second
	defaultMaxHops       = 2
	rrfK                 = 60
)

// Request is the caller-supplied input to Engine.Search.
type Request struct {
	Query           string
	KnowledgeBaseID string
	Mode            Mode
	TopK            int
	Filter          Expr
	EnableRerank    bool
	ExpandQuery     bool
	ExpansionCount  int
	MaxHops         int
	SubSearchWait   time.Duration
	// SemanticWeight and SparseWeight weight the semantic and sparse lists
	// going into RRF fusion for the hybrid mode. Zero values default to 1.0 each.
	SemanticWeight float64
	SparseWeight   float64
}

// RetrievedChunk is one ranked result, carrying enough provenance for the
// caller to attribute an answer back to its source.
type RetrievedChunk struct {
	ChunkID      string
	DocumentID   string
	Content      string
	Score        float64
	MatchedModes []Mode
	WinningMode  Mode
	Meta         map[string]string
}

// ResponseMeta reports what actually happened during a Search call, since
// sub-searches can time out or a reranker can fail without aborting the
// whole request.
type ResponseMeta struct {
	CompletedModes  []Mode
	RerankFailed    bool
	ExpandedQueries []string
}

// Response is the full result of a Search call.
type Response struct {
	Chunks []RetrievedChunk
	Meta   ResponseMeta
}

// VectorSearcher is the subset of *vector.Store the engine needs.
type VectorSearcher interface {
	SearchDense(ctx context.Context, collection string, embedding []float32, topK int, filter vector.Filter) ([]vector.SearchHit, error)
	SearchSparse(ctx context.Context, collection string, terms map[uint32]float32, topK int, filter vector.Filter) ([]vector.SearchHit, error)
}

// GraphSearcher is the subset of *graph.Store the graph mode needs.
type GraphSearcher interface {
	NeighborsWithWeights(ctx context.Context, nodeID string, depth int) ([]graph.Node, map[string]float64, error)
}

// ChunkFetcher resolves chunk IDs found via graph traversal back to their
// text, the subset of *metadata.Store the graph mode needs.
type ChunkFetcher interface {
	GetChunksByIDs(ctx context.Context, ids []string) ([]domain.Chunk, error)
}

// Deps holds every external dependency the retrieval engine needs.
type Deps struct {
	Embedder modelclient.Embedder
	Reranker modelclient.Reranker
	LLM      modelclient.LLMClient
	Vectors  VectorSearcher
	Graph    GraphSearcher
	Chunks   ChunkFetcher
	Metrics  *obs.Metrics
}

// Engine answers Search requests against one set of storage backends.
type Engine struct {
	deps Deps
}

// New builds an Engine over deps.
func New(deps Deps) *Engine {
	return &Engine{deps: deps}
}

func (r Request) topK() int {
	if r.TopK > 0 {
		return r.TopK
	}
	return defaultTopK
}

func (r Request) maxHops() int {
	if r.MaxHops > 0 {
		return r.MaxHops
	}
	return defaultMaxHops
}

func (r Request) subSearchWait() time.Duration {
	if r.SubSearchWait > 0 {
		return r.SubSearchWait
	}
	return defaultSubSearchWait
}

func (r Request) semanticWeight() float64 {
	if r.SemanticWeight > 0 {
		return r.SemanticWeight
	}
	return 1.0
}

func (r Request) sparseWeight() float64 {
	if r.SparseWeight > 0 {
		return r.SparseWeight
	}
	return 1.0
}
