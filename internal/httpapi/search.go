package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/ragcore/ragcore/internal/domain"
	"github.com/ragcore/ragcore/internal/retrieval"
)

type searchRequest struct {
	Query           string         `json:"query"`
	KnowledgeBaseID string         `json:"knowledge_base_id"`
	Mode            retrieval.Mode `json:"mode,omitempty"`
	TopK            int            `json:"top_k,omitempty"`
	EnableRerank    bool           `json:"enable_rerank,omitempty"`
	ExpandQuery     bool           `json:"expand_query,omitempty"`
}

// handleSearch implements POST /api/v1/search, a direct pass-through to
// retrieval.Engine.Search — the mode matrix, fusion and reranking all
// happen inside the engine, this handler only decodes/validates the
// request and serializes the response.
func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, deps.logger(), domain.Wrap(domain.KindInvalidInput, "httpapi.Search", err))
			return
		}
		if err := domain.ValidateMessageText(req.Query); err != nil {
			writeError(w, r, deps.logger(), err)
			return
		}

		resp, err := deps.Retrieval.Search(r.Context(), retrieval.Request{
			Query:           req.Query,
			KnowledgeBaseID: req.KnowledgeBaseID,
			Mode:            req.Mode,
			TopK:            req.TopK,
			EnableRerank:    req.EnableRerank,
			ExpandQuery:     req.ExpandQuery,
		})
		if err != nil {
			writeError(w, r, deps.logger(), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
