// Package modelclient defines the outbound model-serving contracts
// (embedding, reranking, completion, vision-language) and wraps each
// backend with rate limiting, circuit breaking and retry.
package modelclient

import "context"

// Role identifies the speaker of a Message in a completion request.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a function-call requested by the model mid-completion.
type ToolCall struct {
	ID   string
	Name string
	Args []byte
}

// ToolSchema describes a callable tool the LLM may invoke.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Message is one turn in a completion request.
type Message struct {
	Role      Role
	Content   string
	ToolID    string
	ToolCalls []ToolCall
}

// CompletionOpts configures a single Complete/CompleteStream call.
type CompletionOpts struct {
	Model       string
	MaxTokens   int64
	Temperature float64
	Tools       []ToolSchema
}

// CompletionResult is the outcome of a non-streaming Complete call.
type CompletionResult struct {
	Content      string
	ToolCalls    []ToolCall
	StopReason   string
	PromptTokens int
	OutputTokens int
}

// FinishReason enumerates why a stream of TokenChunks ended.
type FinishReason string

const (
	FinishNone      FinishReason = ""
	FinishStop      FinishReason = "stop"
	FinishToolCall  FinishReason = "tool_call"
	FinishMaxTokens FinishReason = "max_tokens"
	FinishError     FinishReason = "error"
)

// TokenChunk is one increment of a streamed completion. Exactly one of
// Delta or ToolCall is populated for a given chunk, except the final
// chunk, which carries Finish and no payload.
type TokenChunk struct {
	Delta    string
	ToolCall *ToolCall
	Finish   FinishReason
	Err      error
}

// Scored is one reranked passage: Index refers back into the caller's
// original passage slice.
type Scored struct {
	Index int
	Score float64
}

// Embedder produces L2-normalized embedding vectors for a batch of texts.
// Order is preserved; a failure anywhere in the batch fails the whole call.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Reranker scores passages against a query and returns the top K indices.
type Reranker interface {
	Rerank(ctx context.Context, query string, passages []string, topK int) ([]Scored, error)
}

// LLMClient issues chat completions, with or without token streaming.
type LLMClient interface {
	Complete(ctx context.Context, msgs []Message, opts CompletionOpts) (CompletionResult, error)
	CompleteStream(ctx context.Context, msgs []Message, opts CompletionOpts) (<-chan TokenChunk, error)
}

// VisionLanguageClient captions images for the ingestion pipeline.
type VisionLanguageClient interface {
	DescribeImage(ctx context.Context, image []byte, prompt string) (string, error)
}

// UsageRecord is pushed to a UsageRecorder after every backend call.
type UsageRecord struct {
	Backend      string
	Model        string
	PromptTokens int
	OutputTokens int
	Err          error
}

// UsageRecorder receives fire-and-forget usage telemetry. Implementations
// must not block the caller; Record should return immediately.
type UsageRecorder interface {
	Record(UsageRecord)
}

// NoopUsageRecorder discards all usage records.
type NoopUsageRecorder struct{}

// Record implements UsageRecorder.
func (NoopUsageRecorder) Record(UsageRecord) {}

// ChanUsageRecorder pushes records onto a buffered channel, dropping them
// if the channel is full rather than blocking the caller.
type ChanUsageRecorder struct {
	ch chan UsageRecord
}

// NewChanUsageRecorder creates a ChanUsageRecorder with the given buffer size.
func NewChanUsageRecorder(buffer int) *ChanUsageRecorder {
	return &ChanUsageRecorder{ch: make(chan UsageRecord, buffer)}
}

// Record implements UsageRecorder, dropping the record if the buffer is full.
func (c *ChanUsageRecorder) Record(rec UsageRecord) {
	select {
	case c.ch <- rec:
	default:
	}
}

// Records returns the channel of pushed usage records for a consumer to drain.
func (c *ChanUsageRecorder) Records() <-chan UsageRecord {
	return c.ch
}
