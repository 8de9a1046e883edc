package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ragcore/ragcore/internal/conversation"
	"github.com/ragcore/ragcore/internal/domain"
)

type startConversationRequest struct {
	KnowledgeBaseID string `json:"knowledge_base_id"`
	OwnerID         string `json:"owner_id,omitempty"`
}

// handleStartConversation implements POST /api/v1/conversations, step 0 of
// the send-message protocol.
func handleStartConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startConversationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, deps.logger(), domain.Wrap(domain.KindInvalidInput, "httpapi.StartConversation", err))
			return
		}
		if req.KnowledgeBaseID == "" {
			writeError(w, r, deps.logger(), domain.NewValidationError("knowledge_base_id", "", domain.ErrInvalidKnowledgeBase))
			return
		}

		conv, err := conversation.StartConversation(r.Context(), deps.Conversation, deps.Registry, req.KnowledgeBaseID, req.OwnerID)
		if err != nil {
			writeError(w, r, deps.logger(), err)
			return
		}
		writeJSON(w, http.StatusCreated, conv)
	}
}

// handleListMessages implements GET /api/v1/conversations/{id}/messages.
func handleListMessages(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}

		msgs, err := conversation.ListMessages(r.Context(), deps.Conversation, r.PathValue("id"), limit)
		if err != nil {
			writeError(w, r, deps.logger(), err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

type sendMessageRequest struct {
	KnowledgeBaseID string   `json:"knowledge_base_id"`
	Content         string   `json:"content"`
	ImageRefs       []string `json:"image_refs,omitempty"`
	Workflow        string   `json:"workflow,omitempty"`
	Stream          bool     `json:"stream,omitempty"`
}

// handleSendMessage implements POST /api/v1/conversations/{id}/messages.
// The caller picks JSON or SSE by either setting "stream": true in the body
// or sending Accept: text/event-stream — accepting either lets a plain curl
// POST ask for streaming without fighting content negotiation.
func handleSendMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, deps.logger(), domain.Wrap(domain.KindInvalidInput, "httpapi.SendMessage", err))
			return
		}
		if err := domain.ValidateMessageText(req.Content); err != nil {
			writeError(w, r, deps.logger(), err)
			return
		}

		sendReq := conversation.SendRequest{
			ConversationID:  r.PathValue("id"),
			KnowledgeBaseID: req.KnowledgeBaseID,
			Content:         req.Content,
			ImageRefs:       req.ImageRefs,
			Workflow:        req.Workflow,
			Stream:          req.Stream,
		}

		if sendReq.Stream || r.Header.Get("Accept") == "text/event-stream" {
			handleSendMessageStream(deps, w, r, sendReq)
			return
		}

		result, err := conversation.SendMessage(r.Context(), deps.Conversation, deps.Registry, sendReq)
		if err != nil {
			writeError(w, r, deps.logger(), err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleSendMessageStream(deps Deps, w http.ResponseWriter, r *http.Request, sendReq conversation.SendRequest) {
	events, err := conversation.SendMessageStream(r.Context(), deps.Conversation, deps.Registry, sendReq)
	if err != nil {
		writeError(w, r, deps.logger(), err)
		return
	}
	if err := conversation.WriteStream(w, r, events); err != nil {
		deps.logger().Warn("httpapi: sse stream ended early", "conversation_id", sendReq.ConversationID, "error", err)
	}
}
