// Package conversation implements the stateful session layer in front of
// the agent orchestrator: the send-message protocol, SSE token delivery,
// mid-stream cancellation, session GC, and multimodal context assembly
// spec'd as the Conversation/Streaming Layer.
package conversation

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/ragcore/ragcore/internal/agent"
	"github.com/ragcore/ragcore/internal/domain"
	"github.com/ragcore/ragcore/internal/modelclient"
	"github.com/ragcore/ragcore/internal/obs"
)

// historyLimit bounds the ring buffer of prior messages kept in a Session
// for prompt construction.
const historyLimit = 10

// EventType is the typed event set an SSE stream emits for one SendMessage
// call, generalizing cmd/chat's untyped "sources"/"token"/"done" events.
type EventType string

const (
	EventText       EventType = "text"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventKnowledge  EventType = "knowledge"
	EventError      EventType = "error"
	EventDone       EventType = "done"
)

// Event is one line-delimited record forwarded to a streaming caller.
type Event struct {
	Type      EventType      `json:"type"`
	MessageID string         `json:"message_id"`
	Delta     string         `json:"delta,omitempty"`
	Content   string         `json:"content,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Session tracks one conversation's live state between SendMessage calls:
// who owns it, when it last saw activity, and a bounded ring buffer of
// recent messages used to build each new turn's prompt context.
type Session struct {
	mu              sync.Mutex
	ID              string
	ConversationID  string
	KnowledgeBaseID string
	OwnerID         string
	LastActivity    time.Time
	History         []domain.Message
}

func newSession(conversationID, knowledgeBaseID, ownerID string) *Session {
	return &Session{
		ID:              conversationID,
		ConversationID:  conversationID,
		KnowledgeBaseID: knowledgeBaseID,
		OwnerID:         ownerID,
		LastActivity:    time.Now(),
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.LastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.LastActivity)
}

// recentMessages returns a copy of the last historyLimit messages.
func (s *Session) recentMessages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.History))
	copy(out, s.History)
	return out
}

// remember appends m to the session's history, discarding the oldest entry
// once historyLimit is exceeded.
func (s *Session) remember(m domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.History = append(s.History, m)
	if len(s.History) > historyLimit {
		s.History = s.History[len(s.History)-historyLimit:]
	}
}

// MetadataStore is the subset of *metadata.Store the conversation layer
// needs to persist Conversations and Messages.
type MetadataStore interface {
	CreateConversation(ctx context.Context, knowledgeBaseID, title string) (domain.Conversation, error)
	AppendMessage(ctx context.Context, m domain.Message) (domain.Message, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
}

// BlobResolver is the subset of *blob.Store needed to resolve an
// ImageRef key into bytes for the vision-language client.
type BlobResolver interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// Deps bundles every external dependency the conversation layer needs.
type Deps struct {
	Metadata     MetadataStore
	Orchestrator *agent.Orchestrator
	Vision       modelclient.VisionLanguageClient
	Blobs        BlobResolver
	Metrics      *obs.Metrics
	IdleTTL      time.Duration
	GCEvery      time.Duration
}

func (d Deps) idleTTL() time.Duration {
	if d.IdleTTL > 0 {
		return d.IdleTTL
	}
	return 30 * time.Minute
}

func (d Deps) gcEvery() time.Duration {
	if d.GCEvery > 0 {
		return d.GCEvery
	}
	return 5 * time.Minute
}

// SendRequest is the caller-supplied input to SendMessage.
type SendRequest struct {
	ConversationID  string
	KnowledgeBaseID string
	Content         string
	ImageRefs       []string
	Workflow        string
	Stream          bool
}

// SendResult is SendMessage's non-streaming return value; streaming callers
// consume the Events channel returned by SendMessageStream instead.
type SendResult struct {
	Message domain.Message
	Quality agent.Quality
}
