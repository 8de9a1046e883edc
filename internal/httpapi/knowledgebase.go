package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/ragcore/ragcore/internal/domain"
)

// defaultEmbeddingDims mirrors the dimension of the default embedding
// model internal/config.ModelsConfig points at (Ollama nomic-embed-text)
// and is used when a caller doesn't specify one. OpenAI's default
// text-embedding-3-small produces 1536 dimensions, not this value.
const defaultEmbeddingDims = 768

type createKnowledgeBaseRequest struct {
	Name          string `json:"name"`
	EmbeddingDims int    `json:"embedding_dims,omitempty"`
}

// handleCreateKnowledgeBase implements POST /api/v1/knowledge-bases.
// Creating the metadata row and provisioning the vector collection happen
// back to back. The row is the first write because the collection is
// named after the row's generated ID; if provisioning the collection then
// fails, the error is returned and the row is left without a collection.
func handleCreateKnowledgeBase(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createKnowledgeBaseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, deps.logger(), domain.Wrap(domain.KindInvalidInput, "httpapi.CreateKnowledgeBase", err))
			return
		}
		if err := domain.ValidateKnowledgeBaseName(req.Name); err != nil {
			writeError(w, r, deps.logger(), err)
			return
		}
		dims := req.EmbeddingDims
		if dims <= 0 {
			dims = defaultEmbeddingDims
		}

		kb, err := deps.Metadata.CreateKnowledgeBase(r.Context(), req.Name, dims)
		if err != nil {
			writeError(w, r, deps.logger(), err)
			return
		}
		if deps.Vectors != nil {
			if err := deps.Vectors.EnsureCollection(r.Context(), kb.ID, dims); err != nil {
				writeError(w, r, deps.logger(), err)
				return
			}
		}
		writeJSON(w, http.StatusCreated, kb)
	}
}

// handleGetKnowledgeBase implements GET /api/v1/knowledge-bases/{id}.
func handleGetKnowledgeBase(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kb, err := deps.Metadata.GetKnowledgeBase(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, r, deps.logger(), err)
			return
		}
		writeJSON(w, http.StatusOK, kb)
	}
}

// handleDeleteKnowledgeBase implements DELETE /api/v1/knowledge-bases/{id},
// the review's "DeleteKnowledgeBase" RPC, served by the existing
// SoftDeleteKnowledgeBase store method.
func handleDeleteKnowledgeBase(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Metadata.SoftDeleteKnowledgeBase(r.Context(), r.PathValue("id")); err != nil {
			writeError(w, r, deps.logger(), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
