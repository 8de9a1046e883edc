package modelclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPReranker_Rerank(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "engine noise", req.Query)
		assert.Equal(t, 2, req.TopK)

		_ = json.NewEncoder(w).Encode(rerankResp{
			ScoredIndices: []struct {
				Index int     `json:"index"`
				Score float64 `json:"score"`
			}{
				{Index: 1, Score: 0.2},
				{Index: 0, Score: 0.9},
				{Index: 2, Score: 0.5},
			},
		})
	}))
	defer srv.Close()

	c := NewHTTPReranker(srv.URL)
	scored, err := c.Rerank(t.Context(), "engine noise", []string{"a", "b", "c"}, 2)
	require.NoError(t, err)
	require.Len(t, scored, 2)
	assert.Equal(t, 0, scored[0].Index)
	assert.Equal(t, 2, scored[1].Index)
}

func TestHTTPReranker_DropsOutOfRangeIndices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(rerankResp{
			ScoredIndices: []struct {
				Index int     `json:"index"`
				Score float64 `json:"score"`
			}{
				{Index: 5, Score: 0.9},
				{Index: 0, Score: 0.1},
			},
		})
	}))
	defer srv.Close()

	c := NewHTTPReranker(srv.URL)
	scored, err := c.Rerank(t.Context(), "q", []string{"a"}, 0)
	require.NoError(t, err)
	require.Len(t, scored, 1)
	assert.Equal(t, 0, scored[0].Index)
}

func TestHTTPReranker_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPReranker(srv.URL)
	_, err := c.Rerank(t.Context(), "q", []string{"a"}, 1)
	assert.Error(t, err)
}

func TestFallbackOrder(t *testing.T) {
	out := FallbackOrder(5, 3)
	require.Len(t, out, 3)
	assert.Equal(t, 0, out[0].Index)
	assert.Equal(t, 2, out[2].Index)
	for _, s := range out {
		assert.Zero(t, s.Score)
	}
}

func TestFallbackOrder_NoTopK(t *testing.T) {
	out := FallbackOrder(3, 0)
	assert.Len(t, out, 3)
}
