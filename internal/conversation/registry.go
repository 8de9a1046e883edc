package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Registry is the in-process session store: a plain map guarded by a
// single mutex on every lookup, insert and evict, mirroring the
// agent.Orchestrator's in-process-authoritative, Redis-for-visibility-only
// design. Every Session lookup and mutation goes through here so the send
// protocol and the GC loop never touch raw session state directly.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	mirror   SessionMirror
	metrics  interface {
		SessionOpened(ctx context.Context)
		SessionClosed(ctx context.Context)
	}
}

// NewRegistry builds an empty Registry. metrics and mirror may both be nil;
// with no mirror, Sessions live only in this process, as plain in-memory
// chat state.
func NewRegistry(metrics interface {
	SessionOpened(ctx context.Context)
	SessionClosed(ctx context.Context)
}, mirror SessionMirror) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		mirror:   mirror,
		metrics:  metrics,
	}
}

// GetOrCreate returns the existing Session for conversationID. If this
// process has not seen it, it first tries to rehydrate it from the mirror
// (a request for an existing conversation may have landed on a different
// httpapi replica than the one that last handled it) before falling back to
// a fresh Session.
func (r *Registry) GetOrCreate(ctx context.Context, conversationID, knowledgeBaseID, ownerID string) *Session {
	r.mu.Lock()
	if s, ok := r.sessions[conversationID]; ok {
		r.mu.Unlock()
		s.touch()
		mirrorSession(ctx, r.mirror, s)
		return s
	}
	r.mu.Unlock()

	s, rehydrated := loadMirroredSession(ctx, r.mirror, conversationID)
	if !rehydrated {
		s = newSession(conversationID, knowledgeBaseID, ownerID)
	} else {
		s.touch()
	}

	r.mu.Lock()
	if existing, ok := r.sessions[conversationID]; ok {
		r.mu.Unlock()
		existing.touch()
		return existing
	}
	r.sessions[conversationID] = s
	r.mu.Unlock()

	if !rehydrated && r.metrics != nil {
		r.metrics.SessionOpened(ctx)
	}
	mirrorSession(ctx, r.mirror, s)
	return s
}

// Evict removes a session, releasing its cached history and clearing it
// from the mirror. Returns false if the session was not present locally.
func (r *Registry) Evict(ctx context.Context, conversationID string) bool {
	r.mu.Lock()
	_, ok := r.sessions[conversationID]
	delete(r.sessions, conversationID)
	r.mu.Unlock()

	if !ok {
		return false
	}
	evictMirroredSession(ctx, r.mirror, conversationID)
	if r.metrics != nil {
		r.metrics.SessionClosed(ctx)
	}
	return true
}

// Sync re-publishes a Session's current state to the mirror. Callers that
// mutate a Session's history (the send-message protocol, after each
// remember) call this so a later request for the same conversation can be
// served correctly even if it lands on a different replica.
func (r *Registry) Sync(ctx context.Context, s *Session) {
	mirrorSession(ctx, r.mirror, s)
}

// Len reports how many sessions this process currently holds.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// idleSessions returns conversation IDs idle past ttl, as of now.
func (r *Registry) idleSessions(now time.Time, ttl time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var idle []string
	for id, s := range r.sessions {
		if s.idleSince(now) >= ttl {
			idle = append(idle, id)
		}
	}
	return idle
}

// RunGC evicts sessions idle past deps.idleTTL() every deps.gcEvery() tick
// until ctx is cancelled.
func RunGC(ctx context.Context, reg *Registry, deps Deps, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	ticker := time.NewTicker(deps.gcEvery())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			idle := reg.idleSessions(now, deps.idleTTL())
			for _, id := range idle {
				reg.Evict(ctx, id)
				log.Info("conversation.session.evicted", "conversation_id", id)
			}
		}
	}
}
