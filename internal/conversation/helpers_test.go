package conversation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/ragcore/ragcore/internal/domain"
)

func testMessage(prefix string, i int) domain.Message {
	return domain.Message{ID: fmt.Sprintf("%s%d", prefix, i), Role: domain.RoleUser, Content: prefix}
}

// fakeMetadataStore is an in-memory stand-in for *metadata.Store, sufficient
// for exercising the send-message protocol without a real Postgres.
type fakeMetadataStore struct {
	mu       sync.Mutex
	convs    map[string]domain.Conversation
	messages map[string][]domain.Message
	nextID   int
}

func newFakeMetadataStore() *fakeMetadataStore {
	return &fakeMetadataStore{
		convs:    make(map[string]domain.Conversation),
		messages: make(map[string][]domain.Message),
	}
}

func (f *fakeMetadataStore) CreateConversation(ctx context.Context, knowledgeBaseID, title string) (domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	conv := domain.Conversation{ID: fmt.Sprintf("conv%d", f.nextID), KnowledgeBaseID: knowledgeBaseID, Title: title}
	f.convs[conv.ID] = conv
	return conv, nil
}

func (f *fakeMetadataStore) AppendMessage(ctx context.Context, m domain.Message) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[m.ConversationID] = append(f.messages[m.ConversationID], m)
	return m, nil
}

func (f *fakeMetadataStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// fakeBlobResolver serves fixed byte payloads keyed by blob ref.
type fakeBlobResolver struct {
	blobs map[string][]byte
}

func (f *fakeBlobResolver) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.blobs[key]
	if !ok {
		return nil, fmt.Errorf("conversation: no blob for key %q", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// fakeVision captions every image with a fixed string, recording what it saw.
type fakeVision struct {
	caption string
}

func (f *fakeVision) DescribeImage(ctx context.Context, image []byte, prompt string) (string, error) {
	return f.caption, nil
}
