package httpapi

import (
	"mime/multipart"
	"net/http"

	"github.com/ragcore/ragcore/internal/domain"
	"github.com/ragcore/ragcore/internal/ingest"
)

// maxUploadMemory bounds how much of a multipart body ParseMultipartForm
// buffers in memory before spilling to a temp file; larger uploads are
// still accepted, just backed by disk past this point.
const maxUploadMemory = 32 << 20

// handleIngestDocument implements POST
// /api/v1/knowledge-bases/{id}/documents: a multipart upload with a single
// "file" part, run synchronously through the same ingest.IngestDocument
// entry point cmd/ingestworker's NATS consumer calls for asynchronous
// uploads.
func handleIngestDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		knowledgeBaseID := r.PathValue("id")

		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			writeError(w, r, deps.logger(), domain.Wrap(domain.KindInvalidInput, "httpapi.IngestDocument", err))
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, deps.logger(), domain.Wrap(domain.KindInvalidInput, "httpapi.IngestDocument", err))
			return
		}
		defer file.Close()

		contentType := partContentType(header)
		if err := domain.ValidateDocumentUpload(contentType, header.Size); err != nil {
			writeError(w, r, deps.logger(), err)
			return
		}

		doc, err := ingest.IngestDocument(r.Context(), deps.IngestDeps, ingest.UploadRequest{
			KnowledgeBaseID: knowledgeBaseID,
			Filename:        header.Filename,
			ContentType:     contentType,
			Content:         file,
		})
		if err != nil {
			writeError(w, r, deps.logger(), err)
			return
		}
		writeJSON(w, http.StatusAccepted, doc)
	}
}

func partContentType(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// handleGetDocumentStatus implements GET /api/v1/documents/{id}, the
// review's "GetDocumentStatus" RPC, served by the existing GetDocument
// store method — a Document's Status/StatusMessage/ChunkCount fields are
// its status.
func handleGetDocumentStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := deps.Metadata.GetDocument(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, r, deps.logger(), err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}
