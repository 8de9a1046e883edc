package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ragcore/ragcore/internal/agent"
	"github.com/ragcore/ragcore/internal/domain"
	"github.com/ragcore/ragcore/internal/modelclient"
)

// StartConversation creates a new Conversation row and registers its
// Session, ahead of the first SendMessage.
func StartConversation(ctx context.Context, deps Deps, reg *Registry, knowledgeBaseID, ownerID string) (domain.Conversation, error) {
	conv, err := deps.Metadata.CreateConversation(ctx, knowledgeBaseID, "")
	if err != nil {
		return domain.Conversation{}, err
	}
	reg.GetOrCreate(ctx, conv.ID, knowledgeBaseID, ownerID)
	return conv, nil
}

// ListMessages returns a Conversation's messages, delegating straight to
// the metadata store.
func ListMessages(ctx context.Context, deps Deps, conversationID string, limit int) ([]domain.Message, error) {
	return deps.Metadata.ListMessages(ctx, conversationID, limit)
}

// resolveWorkflow implements step 3 of the send-message protocol: use the
// caller's explicit choice when given and known, otherwise recommend one
// from the message content.
func resolveWorkflow(requested, content string) (agent.Workflow, error) {
	name := requested
	if name == "" {
		name = agent.RecommendWorkflow(content)
	}
	wf, ok := agent.Predefined[name]
	if !ok {
		return agent.Workflow{}, domain.Wrap(domain.KindInvalidInput, "conversation.resolveWorkflow",
			fmt.Errorf("unknown workflow %q", name))
	}
	return wf, nil
}

// describeImages resolves each image ref through the blob store and the
// vision-language client, folding the results into one block of text the
// orchestrator's retrieval/synthesis steps can use as ordinary query
// context.
func describeImages(ctx context.Context, deps Deps, refs []string) string {
	if len(refs) == 0 || deps.Vision == nil || deps.Blobs == nil {
		return ""
	}
	var sb strings.Builder
	for _, ref := range refs {
		rc, err := deps.Blobs.Get(ctx, ref)
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		caption, err := deps.Vision.DescribeImage(ctx, data, "Describe the contents of this image relevant to the user's question.")
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "[image %s]: %s\n", ref, caption)
	}
	return sb.String()
}

// buildInput implements steps 1-3 of the send-message protocol: persist the
// user Message, retrieve the last N messages for context, and assemble the
// orchestrator Input.
func buildInput(ctx context.Context, deps Deps, reg *Registry, sess *Session, req SendRequest) (agent.Input, domain.Message, agent.Workflow, error) {
	userMsg := domain.Message{
		ID:             uuid.NewString(),
		ConversationID: req.ConversationID,
		Role:           domain.RoleUser,
		Content:        req.Content,
		ImageRefs:      req.ImageRefs,
	}
	userMsg, err := deps.Metadata.AppendMessage(ctx, userMsg)
	if err != nil {
		return agent.Input{}, domain.Message{}, agent.Workflow{}, err
	}
	sess.remember(userMsg)
	reg.Sync(ctx, sess)

	wf, err := resolveWorkflow(req.Workflow, req.Content)
	if err != nil {
		return agent.Input{}, domain.Message{}, agent.Workflow{}, err
	}

	query := req.Content
	if caption := describeImages(ctx, deps, req.ImageRefs); caption != "" {
		query = query + "\n\n" + caption
	}

	return agent.Input{
		Query:           query,
		KnowledgeBaseID: req.KnowledgeBaseID,
		ConversationID:  req.ConversationID,
		RecentMessages:  sess.recentMessages(),
		ImageRefs:       req.ImageRefs,
	}, userMsg, wf, nil
}

// SendMessage runs the full non-streaming send-message protocol: persist
// the user Message, run the resolved workflow to completion, persist the
// assistant Message, and return both.
func SendMessage(ctx context.Context, deps Deps, reg *Registry, req SendRequest) (SendResult, error) {
	sess := reg.GetOrCreate(ctx, req.ConversationID, req.KnowledgeBaseID, "")
	in, _, wf, err := buildInput(ctx, deps, reg, sess, req)
	if err != nil {
		return SendResult{}, err
	}

	result, err := deps.Orchestrator.Run(ctx, wf, in)
	if err != nil {
		return SendResult{}, err
	}

	assistantMsg := domain.Message{
		ID:             uuid.NewString(),
		ConversationID: req.ConversationID,
		Role:           domain.RoleAssistant,
		Content:        result.Answer,
		WorkflowName:   wf.Name,
		Sources:        result.Sources,
	}
	assistantMsg, err = deps.Metadata.AppendMessage(ctx, assistantMsg)
	if err != nil {
		return SendResult{}, err
	}
	sess.remember(assistantMsg)
	reg.Sync(ctx, sess)

	return SendResult{Message: assistantMsg, Quality: result.Quality}, nil
}

// SendMessageStream runs the send-message protocol in streaming mode: the
// returned channel carries strictly-ordered Events for this one message
// and is always closed, its last event always type=done. Cancelling ctx
// aborts the underlying workflow
// within the 100ms bound context cancellation already provides, and
// persists the partial assistant Message with cancelled=true.
func SendMessageStream(ctx context.Context, deps Deps, reg *Registry, req SendRequest) (<-chan Event, error) {
	sess := reg.GetOrCreate(ctx, req.ConversationID, req.KnowledgeBaseID, "")
	in, _, wf, err := buildInput(ctx, deps, reg, sess, req)
	if err != nil {
		return nil, err
	}

	messageID := uuid.NewString()
	events := make(chan Event, 8)

	go func() {
		defer close(events)
		streamAnswer(ctx, deps, reg, sess, req, wf, in, messageID, events)
	}()

	return events, nil
}

func streamAnswer(ctx context.Context, deps Deps, reg *Registry, sess *Session, req SendRequest, wf agent.Workflow, in agent.Input, messageID string, events chan<- Event) {
	exec, resolved, tokens, err := deps.Orchestrator.RunStreaming(ctx, wf, in)
	if err != nil {
		events <- Event{Type: EventError, MessageID: messageID, Content: err.Error()}
		events <- Event{Type: EventDone, MessageID: messageID}
		return
	}

	if len(resolved.Sources) > 0 {
		meta := map[string]any{"sources": resolved.Sources}
		events <- Event{Type: EventKnowledge, MessageID: messageID, Metadata: meta}
	}

	var answer strings.Builder
	var streamErr error

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case chunk, ok := <-tokens:
			if !ok {
				break loop
			}
			if chunk.Err != nil {
				streamErr = chunk.Err
				events <- Event{Type: EventError, MessageID: messageID, Content: chunk.Err.Error()}
				continue
			}
			if chunk.ToolCall != nil {
				events <- toolCallEvent(messageID, chunk.ToolCall)
				continue
			}
			if chunk.Delta != "" {
				answer.WriteString(chunk.Delta)
				events <- Event{Type: EventText, MessageID: messageID, Delta: chunk.Delta}
			}
		}
	}

	// Whichever branch broke the loop, ctx's own error is the one reliable
	// signal: a closed tokens channel racing a just-cancelled ctx must still
	// count as cancelled.
	cancelled := ctx.Err() != nil

	result := deps.Orchestrator.FinalizeStreaming(ctx, exec, resolved, answer.String(), cancelled)

	assistantMsg := domain.Message{
		ID:             messageID,
		ConversationID: req.ConversationID,
		Role:           domain.RoleAssistant,
		Content:        result.Answer,
		WorkflowName:   wf.Name,
		Sources:        result.Sources,
		Cancelled:      cancelled,
	}
	// Persisting uses a background context: the caller's ctx may already be
	// cancelled, but the partial Message must still be written.
	persisted, persistErr := deps.Metadata.AppendMessage(context.Background(), assistantMsg)
	if persistErr == nil {
		sess.remember(persisted)
		reg.Sync(context.Background(), sess)
	}

	if streamErr != nil && !cancelled {
		events <- Event{Type: EventError, MessageID: messageID, Content: streamErr.Error()}
	}
	events <- Event{Type: EventDone, MessageID: messageID, Metadata: map[string]any{"cancelled": cancelled}}
}

// toolCallEvent reshapes a modelclient.ToolCall into the MCP CallToolParams
// shape the event-stream format uses for tool_call payloads.
func toolCallEvent(messageID string, tc *modelclient.ToolCall) Event {
	var args any
	if len(tc.Args) > 0 {
		_ = json.Unmarshal(tc.Args, &args)
	}
	params := &mcp.CallToolParams{Name: tc.Name, Arguments: args}
	return Event{
		Type:      EventToolCall,
		MessageID: messageID,
		Metadata:  map[string]any{"call": params, "tool_call_id": tc.ID},
	}
}
