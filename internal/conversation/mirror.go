package conversation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ragcore/ragcore/internal/domain"
)

const sessionMirrorTTL = time.Hour

// SessionMirror is the subset of redis.Cmdable the Registry needs to make a
// Session's state visible across httpapi replicas, the same
// cache-not-system-of-record split agent.ExecutionMirror uses for
// WorkflowExecutions: the in-process map stays authoritative for the
// replica that owns a conversation, the mirror only lets a different
// replica rehydrate history if a later request lands there instead.
type SessionMirror interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type sessionSnapshot struct {
	ConversationID  string    `json:"conversation_id"`
	KnowledgeBaseID string    `json:"knowledge_base_id"`
	OwnerID         string    `json:"owner_id"`
	LastActivity    time.Time `json:"last_activity"`
	History         []byte    `json:"history"`
}

func sessionMirrorKey(conversationID string) string {
	return "ragcore:conversation_session:" + conversationID
}

// mirrorSession best-effort publishes a Session's current state. A failed
// write never fails the caller; it only degrades cross-replica visibility.
func mirrorSession(ctx context.Context, mirror SessionMirror, s *Session) {
	if mirror == nil {
		return
	}
	s.mu.Lock()
	history, err := json.Marshal(s.History)
	snap := sessionSnapshot{
		ConversationID:  s.ConversationID,
		KnowledgeBaseID: s.KnowledgeBaseID,
		OwnerID:         s.OwnerID,
		LastActivity:    s.LastActivity,
	}
	s.mu.Unlock()
	if err != nil {
		return
	}
	snap.History = history

	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	mirror.Set(ctx, sessionMirrorKey(s.ConversationID), data, sessionMirrorTTL)
}

// loadMirroredSession rehydrates a Session from the mirror, returning
// ok=false if the mirror is unset or has nothing for conversationID.
func loadMirroredSession(ctx context.Context, mirror SessionMirror, conversationID string) (*Session, bool) {
	if mirror == nil {
		return nil, false
	}
	raw, err := mirror.Get(ctx, sessionMirrorKey(conversationID)).Bytes()
	if err != nil {
		return nil, false
	}
	var snap sessionSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, false
	}
	var history []domain.Message
	if len(snap.History) > 0 {
		if err := json.Unmarshal(snap.History, &history); err != nil {
			history = nil
		}
	}
	s := newSession(snap.ConversationID, snap.KnowledgeBaseID, snap.OwnerID)
	s.LastActivity = snap.LastActivity
	s.History = history
	return s, true
}

func evictMirroredSession(ctx context.Context, mirror SessionMirror, conversationID string) {
	if mirror == nil {
		return
	}
	mirror.Del(ctx, sessionMirrorKey(conversationID))
}
