package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragcore/ragcore/internal/domain"
	"github.com/ragcore/ragcore/internal/modelclient"
	"github.com/ragcore/ragcore/internal/store/graph"
	"github.com/ragcore/ragcore/internal/store/vector"
)

type fakeEmbedder struct {
	err   error
	delay time.Duration
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 0, 0}
	}
	return out, nil
}

type fakeVectors struct {
	dense      []vector.SearchHit
	sparse     []vector.SearchHit
	denseErr   error
	sparseErr  error
	lastFilter vector.Filter
}

func (f *fakeVectors) SearchDense(ctx context.Context, collection string, embedding []float32, topK int, filter vector.Filter) ([]vector.SearchHit, error) {
	f.lastFilter = filter
	if f.denseErr != nil {
		return nil, f.denseErr
	}
	return f.dense, nil
}

func (f *fakeVectors) SearchSparse(ctx context.Context, collection string, terms map[uint32]float32, topK int, filter vector.Filter) ([]vector.SearchHit, error) {
	if f.sparseErr != nil {
		return nil, f.sparseErr
	}
	return f.sparse, nil
}

type fakeGraph struct {
	byNode map[string]struct {
		nodes   []graph.Node
		weights map[string]float64
	}
}

func (f *fakeGraph) NeighborsWithWeights(ctx context.Context, nodeID string, depth int) ([]graph.Node, map[string]float64, error) {
	entry, ok := f.byNode[nodeID]
	if !ok {
		return nil, nil, nil
	}
	return entry.nodes, entry.weights, nil
}

func nodeIDFor(kb, name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(kb+":"+name)).String()
}

type fakeChunks struct {
	byID map[string]domain.Chunk
}

func (f *fakeChunks) GetChunksByIDs(ctx context.Context, ids []string) ([]domain.Chunk, error) {
	out := make([]domain.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := f.byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeReranker struct {
	scored []modelclient.Scored
	err    error
}

func (f *fakeReranker) Rerank(ctx context.Context, query string, passages []string, topK int) ([]modelclient.Scored, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.scored, nil
}

type fakeLLM struct {
	content string
	err     error
}

func (f *fakeLLM) Complete(ctx context.Context, msgs []modelclient.Message, opts modelclient.CompletionOpts) (modelclient.CompletionResult, error) {
	if f.err != nil {
		return modelclient.CompletionResult{}, f.err
	}
	return modelclient.CompletionResult{Content: f.content}, nil
}

func (f *fakeLLM) CompleteStream(ctx context.Context, msgs []modelclient.Message, opts modelclient.CompletionOpts) (<-chan modelclient.TokenChunk, error) {
	ch := make(chan modelclient.TokenChunk)
	close(ch)
	return ch, nil
}

func TestSearch_SemanticModeReturnsDenseHits(t *testing.T) {
	vectors := &fakeVectors{dense: []vector.SearchHit{
		{ID: "c1", Score: 0.9, DocumentID: "d1", Content: "first"},
		{ID: "c2", Score: 0.5, DocumentID: "d1", Content: "second"},
	}}
	eng := New(Deps{Embedder: &fakeEmbedder{}, Vectors: vectors})

	resp, err := eng.Search(context.Background(), Request{Query: "hello", KnowledgeBaseID: "kb-1", Mode: ModeSemantic, TopK: 5})

	require.NoError(t, err)
	require.Len(t, resp.Chunks, 2)
	assert.Equal(t, []Mode{ModeSemantic}, resp.Meta.CompletedModes)
	assert.Equal(t, ModeSemantic, resp.Chunks[0].WinningMode)
}

func TestSearch_SparseModeReturnsSparseHits(t *testing.T) {
	vectors := &fakeVectors{sparse: []vector.SearchHit{
		{ID: "c1", Score: 0.7, DocumentID: "d1", Content: "term hit"},
	}}
	eng := New(Deps{Vectors: vectors})

	resp, err := eng.Search(context.Background(), Request{Query: "widget install", KnowledgeBaseID: "kb-1", Mode: ModeSparse})

	require.NoError(t, err)
	require.Len(t, resp.Chunks, 1)
	assert.Equal(t, "c1", resp.Chunks[0].ChunkID)
}

func TestSearch_HybridFusesBothLists(t *testing.T) {
	vectors := &fakeVectors{
		dense:  []vector.SearchHit{{ID: "c1", DocumentID: "d1", Content: "dense hit"}},
		sparse: []vector.SearchHit{{ID: "c1", DocumentID: "d1", Content: "dense hit"}, {ID: "c2", DocumentID: "d1", Content: "sparse only"}},
	}
	eng := New(Deps{Embedder: &fakeEmbedder{}, Vectors: vectors})

	resp, err := eng.Search(context.Background(), Request{Query: "widget", KnowledgeBaseID: "kb-1", Mode: ModeHybrid})

	require.NoError(t, err)
	require.Len(t, resp.Chunks, 2)
	assert.Equal(t, "c1", resp.Chunks[0].ChunkID, "c1 appears in both lists and should rank first")
	assert.ElementsMatch(t, []Mode{ModeSemantic, ModeSparse}, resp.Chunks[0].MatchedModes)
}

func TestSearch_GraphModeTraversesAndFetchesChunks(t *testing.T) {
	kb := "kb-1"
	seedID := nodeIDFor(kb, "Marie Curie")
	neighborID := uuid.NewString()

	g := &fakeGraph{byNode: map[string]struct {
		nodes   []graph.Node
		weights map[string]float64
	}{
		seedID: {
			nodes:   []graph.Node{{ID: neighborID, Name: "Pierre Curie", Properties: map[string]string{"source_chunk_id": "chunk-1"}}},
			weights: map[string]float64{neighborID: 0.8},
		},
	}}
	chunks := &fakeChunks{byID: map[string]domain.Chunk{
		"chunk-1": {ID: "chunk-1", DocumentID: "doc-1", Text: "Marie Curie and Pierre Curie"},
	}}
	eng := New(Deps{Graph: g, Chunks: chunks})

	resp, err := eng.Search(context.Background(), Request{Query: "Tell me about Marie Curie", KnowledgeBaseID: kb, Mode: ModeGraph})

	require.NoError(t, err)
	require.Len(t, resp.Chunks, 1)
	assert.Equal(t, "chunk-1", resp.Chunks[0].ChunkID)
	assert.InDelta(t, 0.8, resp.Chunks[0].Score, 1e-9)
	assert.Equal(t, ModeGraph, resp.Chunks[0].WinningMode)
}

func TestSearch_GraphModeNoEntityCandidatesReturnsEmptyNotError(t *testing.T) {
	eng := New(Deps{Graph: &fakeGraph{byNode: map[string]struct {
		nodes   []graph.Node
		weights map[string]float64
	}{}}})

	resp, err := eng.Search(context.Background(), Request{Query: "lowercase only query", KnowledgeBaseID: "kb-1", Mode: ModeGraph})

	require.NoError(t, err)
	assert.Empty(t, resp.Chunks)
	assert.Equal(t, []Mode{ModeGraph}, resp.Meta.CompletedModes)
}

func TestSearch_AllModeMergesAndDedupes(t *testing.T) {
	kb := "kb-1"
	seedID := nodeIDFor(kb, "Marie Curie")
	neighborID := uuid.NewString()

	vectors := &fakeVectors{
		dense:  []vector.SearchHit{{ID: "c1", DocumentID: "d1", Content: "dense"}},
		sparse: []vector.SearchHit{{ID: "c1", DocumentID: "d1", Content: "dense"}},
	}
	g := &fakeGraph{byNode: map[string]struct {
		nodes   []graph.Node
		weights map[string]float64
	}{
		seedID: {
			nodes:   []graph.Node{{ID: neighborID, Properties: map[string]string{"source_chunk_id": "c2"}}},
			weights: map[string]float64{neighborID: 1},
		},
	}}
	chunks := &fakeChunks{byID: map[string]domain.Chunk{"c2": {ID: "c2", DocumentID: "d2", Text: "graph hit"}}}
	eng := New(Deps{Embedder: &fakeEmbedder{}, Vectors: vectors, Graph: g, Chunks: chunks})

	resp, err := eng.Search(context.Background(), Request{Query: "Marie Curie", KnowledgeBaseID: kb, Mode: ModeAll})

	require.NoError(t, err)
	var ids []string
	for _, c := range resp.Chunks {
		ids = append(ids, c.ChunkID)
	}
	assert.Contains(t, ids, "c1")
	assert.Contains(t, ids, "c2")
	assert.ElementsMatch(t, []Mode{ModeSemantic, ModeHybrid, ModeGraph}, resp.Meta.CompletedModes)
}

func TestSearch_RerankReordersByRerankerScore(t *testing.T) {
	vectors := &fakeVectors{dense: []vector.SearchHit{
		{ID: "c1", DocumentID: "d1", Content: "low"},
		{ID: "c2", DocumentID: "d1", Content: "high"},
	}}
	reranker := &fakeReranker{scored: []modelclient.Scored{{Index: 1, Score: 0.99}, {Index: 0, Score: 0.1}}}
	eng := New(Deps{Embedder: &fakeEmbedder{}, Vectors: vectors, Reranker: reranker})

	resp, err := eng.Search(context.Background(), Request{Query: "q", KnowledgeBaseID: "kb-1", Mode: ModeSemantic, EnableRerank: true})

	require.NoError(t, err)
	require.Len(t, resp.Chunks, 2)
	assert.Equal(t, "c2", resp.Chunks[0].ChunkID)
	assert.False(t, resp.Meta.RerankFailed)
}

func TestSearch_RerankFailureFallsBackToFusedRanking(t *testing.T) {
	vectors := &fakeVectors{dense: []vector.SearchHit{{ID: "c1", DocumentID: "d1", Content: "x"}}}
	reranker := &fakeReranker{err: errors.New("reranker backend unavailable")}
	eng := New(Deps{Embedder: &fakeEmbedder{}, Vectors: vectors, Reranker: reranker})

	resp, err := eng.Search(context.Background(), Request{Query: "q", KnowledgeBaseID: "kb-1", Mode: ModeSemantic, EnableRerank: true})

	require.NoError(t, err)
	require.Len(t, resp.Chunks, 1)
	assert.True(t, resp.Meta.RerankFailed)
}

func TestSearch_SubSearchTimeoutDropsModeWithoutError(t *testing.T) {
	eng := New(Deps{Embedder: &fakeEmbedder{delay: 50 * time.Millisecond}, Vectors: &fakeVectors{}})

	resp, err := eng.Search(context.Background(), Request{
		Query: "q", KnowledgeBaseID: "kb-1", Mode: ModeSemantic, SubSearchWait: 5 * time.Millisecond,
	})

	require.NoError(t, err)
	assert.Empty(t, resp.Chunks)
	assert.Empty(t, resp.Meta.CompletedModes)
}

func TestSearch_FilterExpressionAppliedInProcess(t *testing.T) {
	vectors := &fakeVectors{dense: []vector.SearchHit{
		{ID: "c1", DocumentID: "d1", Content: "keep", Meta: map[string]string{"chunk_type": "text"}},
		{ID: "c2", DocumentID: "d1", Content: "drop", Meta: map[string]string{"chunk_type": "table"}},
	}}
	eng := New(Deps{Embedder: &fakeEmbedder{}, Vectors: vectors})

	resp, err := eng.Search(context.Background(), Request{
		Query: "q", KnowledgeBaseID: "kb-1", Mode: ModeSemantic,
		Filter: Atom{Field: "chunk_type", Op: OpEq, Value: "text"},
	})

	require.NoError(t, err)
	require.Len(t, resp.Chunks, 1)
	assert.Equal(t, "c1", resp.Chunks[0].ChunkID)
}

func TestSearch_QueryExpansionUnionsResultsAndReportsExpandedQueries(t *testing.T) {
	vectors := &fakeVectors{dense: []vector.SearchHit{{ID: "c1", DocumentID: "d1", Content: "x"}}}
	llm := &fakeLLM{content: `["alternate phrasing one", "alternate phrasing two"]`}
	eng := New(Deps{Embedder: &fakeEmbedder{}, Vectors: vectors, LLM: llm})

	resp, err := eng.Search(context.Background(), Request{
		Query: "original query", KnowledgeBaseID: "kb-1", Mode: ModeSemantic, ExpandQuery: true,
	})

	require.NoError(t, err)
	require.Len(t, resp.Meta.ExpandedQueries, 3)
	assert.Equal(t, "original query", resp.Meta.ExpandedQueries[0])
}

func TestSearch_RejectsEmptyQuery(t *testing.T) {
	eng := New(Deps{})
	_, err := eng.Search(context.Background(), Request{KnowledgeBaseID: "kb-1"})
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidInput, domain.ClassifyKind(err))
}

func TestSearch_UnknownModeIsInvalidInput(t *testing.T) {
	eng := New(Deps{})
	_, err := eng.Search(context.Background(), Request{Query: "q", KnowledgeBaseID: "kb-1", Mode: "bogus"})
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidInput, domain.ClassifyKind(err))
}
