// Package domain defines the core types shared across the retrieval-augmented
// generation pipeline and the validation gate at its entry points.
package domain

import "time"

// IndexStatus tracks a KnowledgeBase's embedding/graph dimension configuration
// lock. Once a KnowledgeBase has ingested its first document its EmbeddingDims
// and distance metric are frozen.
type IndexStatus string

const (
	IndexStatusEmpty  IndexStatus = "empty"
	IndexStatusActive IndexStatus = "active"
)

// KnowledgeBase is an isolated collection of documents, chunks and graph
// entities sharing one embedding configuration.
type KnowledgeBase struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	EmbeddingDims int       `json:"embedding_dims"`
	Status        IndexStatus `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

// DocumentStatus is the lifecycle state of an ingested document.
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Document is a single ingested source file within a KnowledgeBase.
type Document struct {
	ID              string         `json:"id"`
	KnowledgeBaseID string         `json:"knowledge_base_id"`
	Filename        string         `json:"filename"`
	ContentType     string         `json:"content_type"`
	ContentHash     string         `json:"content_hash"`
	BlobKey         string         `json:"blob_key"`
	Status          DocumentStatus `json:"status"`
	StatusMessage   string         `json:"status_message,omitempty"`
	ChunkCount      int            `json:"chunk_count"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       *time.Time     `json:"deleted_at,omitempty"`
}

// Chunk is a single embeddable segment of a Document's parsed content.
type Chunk struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Index      int               `json:"index"`
	Text       string            `json:"text"`
	TokenCount int               `json:"token_count"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// VectorRecord is a Chunk's embedding as stored in the vector index.
type VectorRecord struct {
	ID         string
	ChunkID    string
	DocumentID string
	Embedding  []float32
	Payload    map[string]any
}

// Entity is a knowledge-graph node extracted from ingested content.
type Entity struct {
	ID              string            `json:"id"`
	KnowledgeBaseID string            `json:"knowledge_base_id"`
	Name            string            `json:"name"`
	Type            string            `json:"type"`
	Properties      map[string]string `json:"properties,omitempty"`
	SourceChunkIDs  []string          `json:"source_chunk_ids,omitempty"`
}

// Relation is a directed, typed edge between two Entities.
type Relation struct {
	ID       string `json:"id"`
	FromID   string `json:"from_id"`
	ToID     string `json:"to_id"`
	Type     string `json:"type"`
	Weight   float64 `json:"weight,omitempty"`
}

// Conversation groups a sequence of Messages under one owner.
type Conversation struct {
	ID              string    `json:"id"`
	KnowledgeBaseID string    `json:"knowledge_base_id"`
	Title           string    `json:"title,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

// MessageRole distinguishes user turns from assistant turns.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one turn in a Conversation.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Role           MessageRole `json:"role"`
	Content        string      `json:"content"`
	ImageRefs      []string    `json:"image_refs,omitempty"`
	WorkflowName   string      `json:"workflow_name,omitempty"`
	Sources        []SourceRef `json:"sources,omitempty"`
	Cancelled      bool        `json:"cancelled,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// SourceRef attributes part of an assistant answer to a retrieved Chunk.
type SourceRef struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
}

// WorkflowExecutionStatus is the lifecycle state of an agent workflow run.
type WorkflowExecutionStatus string

const (
	WorkflowRunning   WorkflowExecutionStatus = "running"
	WorkflowCompleted WorkflowExecutionStatus = "completed"
	WorkflowFailed    WorkflowExecutionStatus = "failed"
	WorkflowCancelled WorkflowExecutionStatus = "cancelled"
)

// WorkflowExecution tracks one run of an agent.Workflow against a query.
type WorkflowExecution struct {
	ID           string                  `json:"id"`
	WorkflowName string                  `json:"workflow_name"`
	ConversationID string                `json:"conversation_id"`
	Status       WorkflowExecutionStatus `json:"status"`
	StepResults  map[string]string       `json:"step_results,omitempty"`
	StartedAt    time.Time               `json:"started_at"`
	FinishedAt   *time.Time              `json:"finished_at,omitempty"`
}
