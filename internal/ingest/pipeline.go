package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ragcore/ragcore/internal/domain"
	"github.com/ragcore/ragcore/internal/store/blob"
	"github.com/ragcore/ragcore/internal/store/graph"
	"github.com/ragcore/ragcore/internal/store/vector"
	"github.com/ragcore/ragcore/pkg/fn"
)

const defaultEmbedBatch = 32

// errAdmissionRejected is wrapped into a Transient CoreError when the
// pipeline is under backpressure and the caller should retry later.
var errAdmissionRejected = fmt.Errorf("ingest: embed/index queues over high water mark")

// checkAdmission rejects new work when configured queue depths exceed the
// configured high-water marks, a backpressure gate layered on top of the
// NATS consumer's own retry/DLQ handling.
func checkAdmission(deps Deps) error {
	if deps.QueueDepth == nil {
		return nil
	}
	depths := deps.QueueDepth()
	hw := deps.HighWater
	if hw.EmbedHighWater > 0 && depths.EmbedQueueDepth >= hw.EmbedHighWater {
		return domain.Wrap(domain.KindTransient, "ingest.Admission", errAdmissionRejected)
	}
	if hw.IndexHighWater > 0 && depths.IndexQueueDepth >= hw.IndexHighWater {
		return domain.Wrap(domain.KindTransient, "ingest.Admission", errAdmissionRejected)
	}
	return nil
}

// loggedTap logs an enter/exit pair tagged with name at its point in the
// stage chain, grounded directly on engine/ingest.LoggedTap. It wraps no
// stage, so the logged duration covers only the tap itself.
func loggedTap(name string, log *slog.Logger) fn.Stage[stageContext, stageContext] {
	return func(ctx context.Context, sc stageContext) fn.Result[stageContext] {
		log.Info("ingest.stage.enter", "stage", name, "document_id", sc.doc.ID)
		start := time.Now()
		defer func() {
			log.Info("ingest.stage.exit", "stage", name, "document_id", sc.doc.ID, "duration", time.Since(start))
		}()
		return fn.Ok(sc)
	}
}

// newValidateStage reads the upload body, computes its content hash, and
// creates the Document row. A duplicate content hash within the same
// knowledge base surfaces as a Conflict error (idempotency), per
// metadata.Store.CreateDocument's UNIQUE constraint.
func newValidateStage(deps Deps) fn.Stage[UploadRequest, stageContext] {
	return func(ctx context.Context, req UploadRequest) fn.Result[stageContext] {
		raw, err := io.ReadAll(req.Content)
		if err != nil {
			return fn.Err[stageContext](domain.Wrap(domain.KindInvalidInput, "ingest.Validate", err))
		}
		if err := domain.ValidateDocumentUpload(req.ContentType, int64(len(raw))); err != nil {
			return fn.Err[stageContext](err)
		}

		docID := uuid.NewString()
		hash := contentHash(raw)
		key := blob.Key(req.KnowledgeBaseID, docID, req.Filename)

		doc, err := deps.Metadata.CreateDocument(ctx, domain.Document{
			ID:              docID,
			KnowledgeBaseID: req.KnowledgeBaseID,
			Filename:        req.Filename,
			ContentType:     req.ContentType,
			ContentHash:     hash,
			BlobKey:         key,
		})
		if err != nil {
			return fn.Err[stageContext](err)
		}
		return fn.Ok(stageContext{doc: doc, raw: raw})
	}
}

// newParseStage persists the raw bytes to blob storage and hands them to
// deps.Parser for structured extraction.
func newParseStage(deps Deps) fn.Stage[stageContext, stageContext] {
	return func(ctx context.Context, sc stageContext) fn.Result[stageContext] {
		if err := deps.Blobs.Put(ctx, sc.doc.BlobKey, sc.doc.ContentType, bytes.NewReader(sc.raw)); err != nil {
			return fn.Err[stageContext](err)
		}
		parsed, err := deps.Parser.Parse(ctx, sc.doc.ContentType, sc.raw)
		if err != nil {
			return fn.Err[stageContext](domain.Wrap(domain.KindDependencyFailure, "ingest.Parse", err))
		}
		sc.parsed = parsed
		return fn.Ok(sc)
	}
}

// newChunkStage runs the recursive, structure-preserving chunker over the
// parsed markdown.
func newChunkStage(deps Deps) fn.Stage[stageContext, stageContext] {
	return func(_ context.Context, sc stageContext) fn.Result[stageContext] {
		chunks := ChunkText(sc.doc.ID, sc.parsed.Markdown, deps.Chunking)
		if len(chunks) == 0 {
			chunks = []domain.Chunk{{DocumentID: sc.doc.ID, Index: 0, Text: sc.parsed.Markdown}}
		}
		sc.chunks = chunks
		return fn.Ok(sc)
	}
}

// newEmbedStage embeds chunks in batches of deps.EmbedBatch, preserving
// order, grounded on engine/ingest.NewEmbed's batching loop.
func newEmbedStage(deps Deps) fn.Stage[stageContext, stageContext] {
	batchSize := deps.EmbedBatch
	if batchSize <= 0 {
		batchSize = defaultEmbedBatch
	}
	return func(ctx context.Context, sc stageContext) fn.Result[stageContext] {
		embeddings := make([][]float32, len(sc.chunks))
		for i := 0; i < len(sc.chunks); i += batchSize {
			end := i + batchSize
			if end > len(sc.chunks) {
				end = len(sc.chunks)
			}
			texts := make([]string, end-i)
			for j, c := range sc.chunks[i:end] {
				texts[j] = c.Text
			}
			out, err := deps.Embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return fn.Err[stageContext](err)
			}
			copy(embeddings[i:end], out)
		}
		sc.embedding = embeddings
		return fn.Ok(sc)
	}
}

// newIndexStage writes Chunks to the metadata store first, then
// VectorRecords, then optionally Entities/Relations to the graph store,
// enforcing the ordering invariant that no VectorRecord exists without a
// parent Chunk.
func newIndexStage(deps Deps) fn.Stage[stageContext, stageContext] {
	return func(ctx context.Context, sc stageContext) fn.Result[stageContext] {
		for i := range sc.chunks {
			sc.chunks[i].ID = uuid.NewString()
		}
		if err := deps.Metadata.InsertChunksTx(ctx, sc.doc.ID, sc.chunks); err != nil {
			return fn.Err[stageContext](err)
		}

		records := make([]vector.Record, len(sc.chunks))
		for i, c := range sc.chunks {
			records[i] = vector.Record{
				ID:        c.ID,
				Embedding: sc.embedding[i],
				Payload: map[string]any{
					"document_id": sc.doc.ID,
					"chunk_index": c.Index,
					"content":     c.Text,
				},
			}
		}
		if err := deps.Vectors.Upsert(ctx, sc.doc.KnowledgeBaseID, records); err != nil {
			return fn.Err[stageContext](err)
		}

		if deps.Graph != nil {
			var nodes []graph.Node
			var edges []graph.Edge
			for _, c := range sc.chunks {
				n, e := ExtractEntities(sc.doc.KnowledgeBaseID, c)
				nodes = append(nodes, n...)
				edges = append(edges, e...)
			}
			if len(nodes) > 0 {
				if err := deps.Graph.UpsertBatch(ctx, nodes, edges); err != nil {
					deps.Logger.Warn("ingest: graph enrichment failed", "document_id", sc.doc.ID, "error", err)
				}
			}
		}
		return fn.Ok(sc)
	}
}

// newFinalizeStage transitions the Document to completed and records its
// final chunk count.
func newFinalizeStage(deps Deps) fn.Stage[stageContext, domain.Document] {
	return func(ctx context.Context, sc stageContext) fn.Result[domain.Document] {
		if err := deps.Metadata.UpdateDocumentStatus(ctx, sc.doc.ID, domain.DocumentStatusCompleted, ""); err != nil {
			return fn.Err[domain.Document](err)
		}
		if err := deps.Metadata.ActivateKnowledgeBase(ctx, sc.doc.KnowledgeBaseID); err != nil {
			deps.Logger.Warn("ingest: activate knowledge base failed", "knowledge_base_id", sc.doc.KnowledgeBaseID, "error", err)
		}
		sc.doc.Status = domain.DocumentStatusCompleted
		sc.doc.ChunkCount = len(sc.chunks)
		return fn.Ok(sc.doc)
	}
}

// afterValidate composes Parse -> Chunk -> Embed -> Index, all of which
// operate on the same stageContext type, into one Pipeline so the stage
// producing the final Document stays a separate, explicit step.
func afterValidate(deps Deps, log *slog.Logger) fn.Stage[stageContext, stageContext] {
	return fn.Pipeline(
		fn.Then(loggedTap("validate", log), newParseStage(deps)),
		fn.Then(loggedTap("parse", log), newChunkStage(deps)),
		fn.Then(loggedTap("chunk", log), newEmbedStage(deps)),
		fn.Then(loggedTap("embed", log), newIndexStage(deps)),
	)
}

// NewPipeline composes the full Validate -> Parse -> Chunk -> Embed ->
// Index -> Finalize pipeline with logging taps between stages, grounded
// directly on engine/ingest.NewPipeline's Then-chain composition style.
func NewPipeline(deps Deps) fn.Stage[UploadRequest, domain.Document] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	validated := newValidateStage(deps)
	indexed := fn.Then(validated, afterValidate(deps, log))
	return fn.Then(indexed, fn.Then(loggedTap("index", log), newFinalizeStage(deps)))
}

// IngestDocument runs req through the full pipeline, marking the
// document failed in the metadata store if any stage after Validate
// returns an error, since only Validate can fail before the Document row
// exists to update.
func IngestDocument(ctx context.Context, deps Deps, req UploadRequest) (doc domain.Document, err error) {
	start := time.Now()
	status := string(domain.DocumentStatusCompleted)
	defer func() { deps.Metrics.RecordIngest(ctx, start, status) }()

	if err = checkAdmission(deps); err != nil {
		status = string(domain.DocumentStatusFailed)
		return domain.Document{}, err
	}

	validated := newValidateStage(deps)(ctx, req)
	sc, err := validated.Unwrap()
	if err != nil {
		status = string(domain.DocumentStatusFailed)
		return domain.Document{}, err
	}

	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	rest := fn.Then(afterValidate(deps, log), fn.Then(loggedTap("index", log), newFinalizeStage(deps)))
	result := rest(ctx, sc)
	doc, err = result.Unwrap()
	if err != nil {
		status = string(domain.DocumentStatusFailed)
		_ = deps.Metadata.UpdateDocumentStatus(ctx, sc.doc.ID, domain.DocumentStatusFailed, err.Error())
		return domain.Document{}, err
	}
	return doc, nil
}
