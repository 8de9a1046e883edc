// Package metadata provides the relational system of record for
// KnowledgeBase, Document, Chunk, Conversation and Message rows. There is no
// teacher equivalent for this façade; it is new, grounded on the pgx pooling
// and upsert-with-RETURNING patterns used across the retrieved corpus.
package metadata

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ragcore/ragcore/internal/domain"
)

// Store is the sole owner of Postgres schema and CRUD operations.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects a pgx pool to dsn.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("metadata: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("metadata: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() { s.pool.Close() }

// InitSchema creates every table this façade needs if it does not already
// exist. Soft-delete is modeled as a nullable deleted_at column throughout.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS knowledge_bases (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  embedding_dims INT NOT NULL,
  status TEXT NOT NULL DEFAULT 'empty',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  deleted_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS documents (
  id TEXT PRIMARY KEY,
  knowledge_base_id TEXT NOT NULL REFERENCES knowledge_bases(id) ON DELETE CASCADE,
  filename TEXT NOT NULL,
  content_type TEXT NOT NULL,
  content_hash TEXT NOT NULL,
  blob_key TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  status_message TEXT NOT NULL DEFAULT '',
  chunk_count INT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  deleted_at TIMESTAMPTZ,
  UNIQUE (knowledge_base_id, content_hash)
);
CREATE TABLE IF NOT EXISTS chunks (
  id TEXT PRIMARY KEY,
  document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
  index INT NOT NULL,
  text TEXT NOT NULL,
  token_count INT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS conversations (
  id TEXT PRIMARY KEY,
  knowledge_base_id TEXT NOT NULL REFERENCES knowledge_bases(id) ON DELETE CASCADE,
  title TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  deleted_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS messages (
  id TEXT PRIMARY KEY,
  conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
  role TEXT NOT NULL,
  content TEXT NOT NULL,
  workflow_name TEXT NOT NULL DEFAULT '',
  cancelled BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`)
	if err != nil {
		return domain.Wrap(domain.KindDependencyFailure, "metadata.InitSchema", err)
	}
	return nil
}

// CreateKnowledgeBase inserts a new KnowledgeBase row.
func (s *Store) CreateKnowledgeBase(ctx context.Context, name string, embeddingDims int) (domain.KnowledgeBase, error) {
	kb := domain.KnowledgeBase{
		ID:            uuid.NewString(),
		Name:          name,
		EmbeddingDims: embeddingDims,
		Status:        domain.IndexStatusEmpty,
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO knowledge_bases (id, name, embedding_dims, status)
VALUES ($1, $2, $3, $4)
RETURNING created_at, updated_at`, kb.ID, kb.Name, kb.EmbeddingDims, kb.Status)
	if err := row.Scan(&kb.CreatedAt, &kb.UpdatedAt); err != nil {
		return domain.KnowledgeBase{}, domain.Wrap(domain.KindTransient, "metadata.CreateKnowledgeBase", err)
	}
	return kb, nil
}

// GetKnowledgeBase fetches a non-deleted KnowledgeBase by ID.
func (s *Store) GetKnowledgeBase(ctx context.Context, id string) (domain.KnowledgeBase, error) {
	var kb domain.KnowledgeBase
	row := s.pool.QueryRow(ctx, `
SELECT id, name, embedding_dims, status, created_at, updated_at
FROM knowledge_bases WHERE id = $1 AND deleted_at IS NULL`, id)
	if err := row.Scan(&kb.ID, &kb.Name, &kb.EmbeddingDims, &kb.Status, &kb.CreatedAt, &kb.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.KnowledgeBase{}, domain.Wrap(domain.KindNotFound, "metadata.GetKnowledgeBase", err)
		}
		return domain.KnowledgeBase{}, domain.Wrap(domain.KindTransient, "metadata.GetKnowledgeBase", err)
	}
	return kb, nil
}

// ActivateKnowledgeBase transitions a KnowledgeBase from empty to active once
// its first document has been indexed, locking in its embedding dimension.
func (s *Store) ActivateKnowledgeBase(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE knowledge_bases SET status = $1, updated_at = now() WHERE id = $2`,
		domain.IndexStatusActive, id)
	if err != nil {
		return domain.Wrap(domain.KindTransient, "metadata.ActivateKnowledgeBase", err)
	}
	return nil
}

// SoftDeleteKnowledgeBase marks a KnowledgeBase (and its documents and
// conversations, by foreign key cascade at the vector/graph/blob layer, not
// here) as deleted without removing the row.
func (s *Store) SoftDeleteKnowledgeBase(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE knowledge_bases SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return domain.Wrap(domain.KindTransient, "metadata.SoftDeleteKnowledgeBase", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Wrap(domain.KindNotFound, "metadata.SoftDeleteKnowledgeBase", fmt.Errorf("knowledge base %s not found", id))
	}
	return nil
}

// CreateDocument inserts a new Document row in pending status. Returns a
// conflict error if a document with the same content hash already exists in
// the knowledge base, giving the ingestion pipeline its idempotency check.
func (s *Store) CreateDocument(ctx context.Context, d domain.Document) (domain.Document, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.Status = domain.DocumentStatusPending
	row := s.pool.QueryRow(ctx, `
INSERT INTO documents (id, knowledge_base_id, filename, content_type, content_hash, blob_key, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at, updated_at`,
		d.ID, d.KnowledgeBaseID, d.Filename, d.ContentType, d.ContentHash, d.BlobKey, d.Status)
	if err := row.Scan(&d.CreatedAt, &d.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.Document{}, domain.Wrap(domain.KindConflict, "metadata.CreateDocument", fmt.Errorf("document with hash %s already ingested", d.ContentHash))
		}
		return domain.Document{}, domain.Wrap(domain.KindTransient, "metadata.CreateDocument", err)
	}
	return d, nil
}

// UpdateDocumentStatus transitions a document's lifecycle status.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id string, status domain.DocumentStatus, message string) error {
	_, err := s.pool.Exec(ctx, `
UPDATE documents SET status = $1, status_message = $2, updated_at = now() WHERE id = $3`,
		status, message, id)
	if err != nil {
		return domain.Wrap(domain.KindTransient, "metadata.UpdateDocumentStatus", err)
	}
	return nil
}

// GetDocument fetches a non-deleted Document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	var d domain.Document
	row := s.pool.QueryRow(ctx, `
SELECT id, knowledge_base_id, filename, content_type, content_hash, blob_key, status, status_message, chunk_count, created_at, updated_at
FROM documents WHERE id = $1 AND deleted_at IS NULL`, id)
	if err := row.Scan(&d.ID, &d.KnowledgeBaseID, &d.Filename, &d.ContentType, &d.ContentHash, &d.BlobKey,
		&d.Status, &d.StatusMessage, &d.ChunkCount, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Document{}, domain.Wrap(domain.KindNotFound, "metadata.GetDocument", err)
		}
		return domain.Document{}, domain.Wrap(domain.KindTransient, "metadata.GetDocument", err)
	}
	return d, nil
}

// InsertChunksTx inserts every chunk of a document and bumps its chunk_count
// in one transaction. The document's status is not touched here; the
// ingestion pipeline's Finalize stage sets it to completed afterwards.
func (s *Store) InsertChunksTx(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Wrap(domain.KindTransient, "metadata.InsertChunksTx", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range chunks {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO chunks (id, document_id, index, text, token_count) VALUES ($1, $2, $3, $4, $5)`,
			c.ID, documentID, c.Index, c.Text, c.TokenCount); err != nil {
			return domain.Wrap(domain.KindTransient, "metadata.InsertChunksTx", err)
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE documents SET chunk_count = $1, updated_at = now() WHERE id = $2`,
		len(chunks), documentID); err != nil {
		return domain.Wrap(domain.KindTransient, "metadata.InsertChunksTx", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Wrap(domain.KindTransient, "metadata.InsertChunksTx", err)
	}
	return nil
}

// GetChunksByIDs fetches chunks by primary key, in no particular order,
// used by the retrieval engine's graph mode to resolve entity mentions
// back to the chunk text that produced them.
func (s *Store) GetChunksByIDs(ctx context.Context, ids []string) ([]domain.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, document_id, index, text, token_count, created_at
FROM chunks WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, domain.Wrap(domain.KindTransient, "metadata.GetChunksByIDs", err)
	}
	defer rows.Close()

	var out []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Text, &c.TokenCount, &c.CreatedAt); err != nil {
			return nil, domain.Wrap(domain.KindTransient, "metadata.GetChunksByIDs", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateConversation inserts a new Conversation row.
func (s *Store) CreateConversation(ctx context.Context, knowledgeBaseID, title string) (domain.Conversation, error) {
	c := domain.Conversation{ID: uuid.NewString(), KnowledgeBaseID: knowledgeBaseID, Title: title}
	row := s.pool.QueryRow(ctx, `
INSERT INTO conversations (id, knowledge_base_id, title) VALUES ($1, $2, $3)
RETURNING created_at, updated_at`, c.ID, c.KnowledgeBaseID, c.Title)
	if err := row.Scan(&c.CreatedAt, &c.UpdatedAt); err != nil {
		return domain.Conversation{}, domain.Wrap(domain.KindTransient, "metadata.CreateConversation", err)
	}
	return c, nil
}

// AppendMessage inserts a Message row into an existing Conversation.
func (s *Store) AppendMessage(ctx context.Context, m domain.Message) (domain.Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO messages (id, conversation_id, role, content, workflow_name, cancelled)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`, m.ID, m.ConversationID, m.Role, m.Content, m.WorkflowName, m.Cancelled)
	if err := row.Scan(&m.CreatedAt); err != nil {
		return domain.Message{}, domain.Wrap(domain.KindTransient, "metadata.AppendMessage", err)
	}
	return m, nil
}

// ListMessages returns a Conversation's messages in chronological order.
func (s *Store) ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, conversation_id, role, content, workflow_name, cancelled, created_at
FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC LIMIT $2`, conversationID, limit)
	if err != nil {
		return nil, domain.Wrap(domain.KindTransient, "metadata.ListMessages", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.WorkflowName, &m.Cancelled, &m.CreatedAt); err != nil {
			return nil, domain.Wrap(domain.KindTransient, "metadata.ListMessages", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	return err != nil && pgErrCode(err) == "23505"
}

func pgErrCode(err error) string {
	type sqlState interface{ SQLState() string }
	if se, ok := err.(sqlState); ok {
		return se.SQLState()
	}
	return ""
}
