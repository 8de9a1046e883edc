package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ragcore/ragcore/internal/domain"
	"github.com/ragcore/ragcore/internal/store/vector"
)

var (
	errEmptyQuery           = errors.New("retrieval: query is empty")
	errMissingKnowledgeBase = errors.New("retrieval: knowledge_base_id is required")
)

// Search answers req against the configured mode, always returning a
// Response even when a sub-search or the reranker degrades: both are
// treated as non-fatal and reported in ResponseMeta instead of failing
// the whole request.
func (e *Engine) Search(ctx context.Context, req Request) (Response, error) {
	mode := req.Mode
	if mode == "" {
		mode = ModeHybrid
	}
	start := time.Now()
	defer func() { e.deps.Metrics.RecordRetrieval(ctx, start, string(mode)) }()

	if strings.TrimSpace(req.Query) == "" {
		return Response{}, domain.Wrap(domain.KindInvalidInput, "retrieval.Search", errEmptyQuery)
	}
	if req.KnowledgeBaseID == "" {
		return Response{}, domain.Wrap(domain.KindInvalidInput, "retrieval.Search", errMissingKnowledgeBase)
	}

	switch mode {
	case ModeSemantic:
		queries := expandQueries(ctx, e.deps.LLM, req)
		chunks, ok := e.runSemantic(ctx, req, queries)
		return e.finalize(ctx, req, chunks, completedIf(ok, ModeSemantic), queries), nil
	case ModeSparse:
		queries := expandQueries(ctx, e.deps.LLM, req)
		chunks, ok := e.runSparse(ctx, req, queries)
		return e.finalize(ctx, req, chunks, completedIf(ok, ModeSparse), queries), nil
	case ModeHybrid:
		queries := expandQueries(ctx, e.deps.LLM, req)
		chunks, completed := e.runHybrid(ctx, req, queries)
		return e.finalize(ctx, req, chunks, completed, queries), nil
	case ModeGraph:
		chunks, ok := e.runGraph(ctx, req)
		return e.finalize(ctx, req, chunks, completedIf(ok, ModeGraph), nil), nil
	case ModeAll:
		return e.runAllMode(ctx, req), nil
	default:
		return Response{}, domain.Wrap(domain.KindInvalidInput, "retrieval.Search", fmt.Errorf("unknown mode %q", mode))
	}
}

// withTimeout bounds a single sub-search with req's per-sub-search wait,
// reporting completion rather than propagating context.DeadlineExceeded:
// a sub-search that times out is simply dropped from the fusion, with no
// error propagated to the caller.
func (e *Engine) withTimeout(ctx context.Context, wait time.Duration, fn func(context.Context) error) bool {
	sctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	return fn(sctx) == nil
}

func hitMeta(h vector.SearchHit) map[string]string {
	m := make(map[string]string, len(h.Meta)+2)
	for k, v := range h.Meta {
		m[k] = v
	}
	m["document_id"] = h.DocumentID
	m["chunk_id"] = h.ID
	return m
}

func hitToChunk(h vector.SearchHit) RetrievedChunk {
	return RetrievedChunk{
		ChunkID:    h.ID,
		DocumentID: h.DocumentID,
		Content:    h.Content,
		Meta:       hitMeta(h),
	}
}

func (e *Engine) runSemanticOnce(ctx context.Context, req Request, query string) ([]RetrievedChunk, error) {
	embeddings, err := e.deps.Embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("retrieval: embedder returned no vectors for query")
	}
	hits, err := e.deps.Vectors.SearchDense(ctx, req.KnowledgeBaseID, embeddings[0], req.topK()*2, pushdownFilter(req.Filter))
	if err != nil {
		return nil, err
	}
	return filterHits(hits, req.Filter), nil
}

func (e *Engine) runSparseOnce(ctx context.Context, req Request, query string) ([]RetrievedChunk, error) {
	hits, err := e.deps.Vectors.SearchSparse(ctx, req.KnowledgeBaseID, sparseTerms(query), req.topK()*2, pushdownFilter(req.Filter))
	if err != nil {
		return nil, err
	}
	return filterHits(hits, req.Filter), nil
}

func filterHits(hits []vector.SearchHit, filter Expr) []RetrievedChunk {
	out := make([]RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		rc := hitToChunk(h)
		if !Matches(filter, rc.Meta) {
			continue
		}
		out = append(out, rc)
	}
	return out
}

// runSemantic embeds every expanded query, searches each independently
// under its own timeout, and RRF-fuses the per-query result lists, so
// query expansion's variants are unioned before fusion rather than
// competing as separate results.
func (e *Engine) runSemantic(ctx context.Context, req Request, queries []string) ([]RetrievedChunk, bool) {
	var lists []rankedList
	for _, q := range queries {
		var chunks []RetrievedChunk
		ok := e.withTimeout(ctx, req.subSearchWait(), func(sctx context.Context) error {
			c, err := e.runSemanticOnce(sctx, req, q)
			if err != nil {
				return err
			}
			chunks = c
			return nil
		})
		if ok {
			lists = append(lists, rankedList{mode: ModeSemantic, weight: 1, results: chunks})
		}
	}
	return reciprocalRankFusion(lists), len(lists) > 0
}

func (e *Engine) runSparse(ctx context.Context, req Request, queries []string) ([]RetrievedChunk, bool) {
	var lists []rankedList
	for _, q := range queries {
		var chunks []RetrievedChunk
		ok := e.withTimeout(ctx, req.subSearchWait(), func(sctx context.Context) error {
			c, err := e.runSparseOnce(sctx, req, q)
			if err != nil {
				return err
			}
			chunks = c
			return nil
		})
		if ok {
			lists = append(lists, rankedList{mode: ModeSparse, weight: 1, results: chunks})
		}
	}
	return reciprocalRankFusion(lists), len(lists) > 0
}

// runHybrid fuses the semantic and sparse result sets with configurable
// RRF weights, each computed independently so one side failing still lets
// the other contribute.
func (e *Engine) runHybrid(ctx context.Context, req Request, queries []string) ([]RetrievedChunk, []Mode) {
	semChunks, semOK := e.runSemantic(ctx, req, queries)
	sparseChunks, sparseOK := e.runSparse(ctx, req, queries)

	var lists []rankedList
	var completed []Mode
	if semOK {
		lists = append(lists, rankedList{mode: ModeSemantic, weight: req.semanticWeight(), results: semChunks})
		completed = append(completed, ModeSemantic)
	}
	if sparseOK {
		lists = append(lists, rankedList{mode: ModeSparse, weight: req.sparseWeight(), results: sparseChunks})
		completed = append(completed, ModeSparse)
	}
	return reciprocalRankFusion(lists), completed
}

// runGraph extracts entity-candidate names from the raw query (no query
// expansion — paraphrases would otherwise multiply entity candidates
// unpredictably), traverses the graph up to maxHops from each, and scores
// the chunks that mention a reached entity by confidence (fixed at 1.0 for
// a heuristically-extracted candidate) times the traversal path's
// edge-weight product.
func (e *Engine) runGraph(ctx context.Context, req Request) ([]RetrievedChunk, bool) {
	candidates := extractEntityCandidates(req.Query)
	if len(candidates) == 0 {
		return nil, true
	}

	var chunks []RetrievedChunk
	ok := e.withTimeout(ctx, req.subSearchWait(), func(sctx context.Context) error {
		scores := make(map[string]float64)
		for _, name := range candidates {
			nodeID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(req.KnowledgeBaseID+":"+name)).String()
			neighbors, weights, err := e.deps.Graph.NeighborsWithWeights(sctx, nodeID, req.maxHops())
			if err != nil {
				return err
			}
			for _, n := range neighbors {
				chunkID := n.Properties["source_chunk_id"]
				if chunkID == "" {
					continue
				}
				score := 1.0 * weights[n.ID]
				if score > scores[chunkID] {
					scores[chunkID] = score
				}
			}
		}
		if len(scores) == 0 {
			return nil
		}
		ids := make([]string, 0, len(scores))
		for id := range scores {
			ids = append(ids, id)
		}
		fetched, err := e.deps.Chunks.GetChunksByIDs(sctx, ids)
		if err != nil {
			return err
		}
		for _, c := range fetched {
			meta := map[string]string{"document_id": c.DocumentID, "chunk_id": c.ID}
			if !Matches(req.Filter, meta) {
				continue
			}
			chunks = append(chunks, RetrievedChunk{
				ChunkID:      c.ID,
				DocumentID:   c.DocumentID,
				Content:      c.Text,
				Score:        scores[c.ID],
				MatchedModes: []Mode{ModeGraph},
				WinningMode:  ModeGraph,
				Meta:         meta,
			})
		}
		return nil
	})
	sortByScoreDesc(chunks)
	return chunks, ok
}

// runAllMode fans semantic, hybrid and graph search out in parallel, then
// merges, dedupes and reranks the union.
func (e *Engine) runAllMode(ctx context.Context, req Request) Response {
	queries := expandQueries(ctx, e.deps.LLM, req)

	var semChunks, hybChunks, graphChunks []RetrievedChunk
	var hybCompleted []Mode
	var semOK, graphOK bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		semChunks, semOK = e.runSemantic(gctx, req, queries)
		return nil
	})
	g.Go(func() error {
		hybChunks, hybCompleted = e.runHybrid(gctx, req, queries)
		return nil
	})
	g.Go(func() error {
		graphChunks, graphOK = e.runGraph(gctx, req)
		return nil
	})
	_ = g.Wait()

	merged := make([]RetrievedChunk, 0, len(semChunks)+len(hybChunks)+len(graphChunks))
	merged = append(merged, semChunks...)
	merged = append(merged, hybChunks...)
	merged = append(merged, graphChunks...)
	deduped := dedupeByDocumentChunk(merged)

	var completed []Mode
	if semOK {
		completed = append(completed, ModeSemantic)
	}
	if len(hybCompleted) > 0 {
		completed = append(completed, ModeHybrid)
	}
	if graphOK {
		completed = append(completed, ModeGraph)
	}

	return e.finalize(ctx, req, deduped, completed, queries)
}

// maybeRerank passes the top 2×K candidates to the reranker client when
// enabled, falling back to the fused ranking (and flagging rerank_failed)
// if the call errors.
func (e *Engine) maybeRerank(ctx context.Context, req Request, chunks []RetrievedChunk) ([]RetrievedChunk, bool) {
	if !req.EnableRerank || e.deps.Reranker == nil || len(chunks) == 0 {
		return chunks, false
	}
	passages := make([]string, len(chunks))
	for i, c := range chunks {
		passages[i] = c.Content
	}
	scored, err := e.deps.Reranker.Rerank(ctx, req.Query, passages, req.topK())
	if err != nil {
		return chunks, true
	}
	out := make([]RetrievedChunk, 0, len(scored))
	for _, s := range scored {
		if s.Index < 0 || s.Index >= len(chunks) {
			continue
		}
		rc := chunks[s.Index]
		rc.Score = s.Score
		out = append(out, rc)
	}
	return out, false
}

func (e *Engine) finalize(ctx context.Context, req Request, chunks []RetrievedChunk, completedModes []Mode, expandedQueries []string) Response {
	candidates := topN(chunks, req.topK()*2)
	reranked, rerankFailed := e.maybeRerank(ctx, req, candidates)
	final := topN(reranked, req.topK())

	meta := ResponseMeta{CompletedModes: completedModes, RerankFailed: rerankFailed}
	if len(expandedQueries) > 1 {
		meta.ExpandedQueries = expandedQueries
	}
	return Response{Chunks: final, Meta: meta}
}

func completedIf(ok bool, mode Mode) []Mode {
	if !ok {
		return nil
	}
	return []Mode{mode}
}
