package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/ragcore/ragcore/internal/domain"
)

// HTTPReranker calls a cross-encoder reranking service over plain JSON/HTTP:
// POST {query, passages, top_k} -> {scored_indices: [{index, score}]}.
type HTTPReranker struct {
	baseURL string
	client  *http.Client
}

// NewHTTPReranker creates a reranker client against baseURL.
func NewHTTPReranker(baseURL string) *HTTPReranker {
	return &HTTPReranker{baseURL: baseURL, client: &http.Client{}}
}

type rerankReq struct {
	Query    string   `json:"query"`
	Passages []string `json:"passages"`
	TopK     int      `json:"top_k"`
}

type rerankResp struct {
	ScoredIndices []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"scored_indices"`
}

// Rerank implements Reranker. On a decode or transport failure the caller
// is expected to fall back to original passage ordering (graceful
// degradation); this method returns an error rather than doing that
// itself, since only the caller knows the original order it wants back.
func (c *HTTPReranker) Rerank(ctx context.Context, query string, passages []string, topK int) ([]Scored, error) {
	body, err := json.Marshal(rerankReq{Query: query, Passages: passages, TopK: topK})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.Wrap(domain.KindTransient, "reranker.rerank", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.Wrap(domain.KindTransient, "reranker.rerank", fmt.Errorf("status %d", resp.StatusCode))
	}

	var out rerankResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, domain.Wrap(domain.KindPermanent, "reranker.rerank.decode", err)
	}

	scored := make([]Scored, 0, len(out.ScoredIndices))
	for _, s := range out.ScoredIndices {
		if s.Index < 0 || s.Index >= len(passages) {
			continue
		}
		scored = append(scored, Scored{Index: s.Index, Score: s.Score})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// FallbackOrder returns the identity reranking (original order, zero
// scores) used when a Reranker call fails and the caller wants to
// degrade gracefully rather than fail the request.
func FallbackOrder(n, topK int) []Scored {
	if topK > 0 && topK < n {
		n = topK
	}
	out := make([]Scored, n)
	for i := range out {
		out[i] = Scored{Index: i, Score: 0}
	}
	return out
}
