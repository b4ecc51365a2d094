package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/mercadoclaw/internal/bus"
	"github.com/nextlevelbuilder/mercadoclaw/internal/sessions"
)

// ConversationsHandler serves the inbound buffer and cooldown endpoints used
// by the chat transport adapter.
type ConversationsHandler struct {
	buffer     *bus.Buffer
	gate       *bus.CooldownGate
	blocked    *sessions.BlockList
	limiter    *InboundRateLimiter
	defaultTTL time.Duration
	token      string
}

func NewConversationsHandler(buffer *bus.Buffer, gate *bus.CooldownGate, blocked *sessions.BlockList, defaultTTL time.Duration, token string) *ConversationsHandler {
	if blocked == nil {
		blocked = sessions.NewBlockList(nil)
	}
	return &ConversationsHandler{
		buffer:     buffer,
		gate:       gate,
		blocked:    blocked,
		limiter:    NewInboundRateLimiter(),
		defaultTTL: defaultTTL,
		token:      token,
	}
}

// RegisterRoutes registers all conversation routes on the given mux.
func (h *ConversationsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/conversations/{id}/messages", requireToken(h.token, h.handlePush))
	mux.HandleFunc("POST /v1/conversations/{id}/drain", requireToken(h.token, h.handleDrain))
	mux.HandleFunc("GET /v1/conversations/{id}/cooldown", requireToken(h.token, h.handleCooldownStatus))
	mux.HandleFunc("POST /v1/conversations/{id}/cooldown", requireToken(h.token, h.handleCooldownActivate))
}

// conversationID validates the {id} path value and writes a 400 on failure.
func conversationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := sessions.NormalizeConversationID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

type pushRequest struct {
	Text      string `json:"text"`
	MessageID string `json:"message_id"`
}

func (h *ConversationsHandler) handlePush(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}
	if h.blocked.Blocked(id) {
		slog.Info("conversations.blocked", "conversation", id)
		writeError(w, http.StatusForbidden, "conversation is blocked")
		return
	}
	if !h.limiter.Allow(id) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req pushRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !h.buffer.Push(r.Context(), id, req.Text, req.MessageID) {
		writeError(w, http.StatusServiceUnavailable, "buffer unavailable")
		return
	}

	active, _ := h.gate.IsActive(r.Context(), id)
	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"buffered": h.buffer.Len(r.Context(), id),
		"cooldown": active,
	})
}

func (h *ConversationsHandler) handleDrain(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}
	texts, lastID := h.buffer.Drain(r.Context(), id)
	if texts == nil {
		texts = []string{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"texts":           texts,
		"last_message_id": lastID,
	})
}

func (h *ConversationsHandler) handleCooldownStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}
	active, ttl := h.gate.IsActive(r.Context(), id)
	WriteJSON(w, http.StatusOK, map[string]interface{}{"active": active, "ttl": ttl})
}

type cooldownRequest struct {
	TTLSeconds int `json:"ttl_seconds"`
}

func (h *ConversationsHandler) handleCooldownActivate(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}
	var req cooldownRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}

	ttl := h.defaultTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	} else if req.TTLSeconds < 0 {
		writeError(w, http.StatusBadRequest, "ttl_seconds must be positive")
		return
	}

	activated := h.gate.Activate(r.Context(), id, ttl)
	WriteJSON(w, http.StatusOK, map[string]interface{}{"activated": activated, "ttl": int(ttl / time.Second)})
}
