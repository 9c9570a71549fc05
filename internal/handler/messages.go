package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/UdaynoorSingh/freelancer-marketplace2/internal/middleware"
	"github.com/UdaynoorSingh/freelancer-marketplace2/internal/model"
	"github.com/UdaynoorSingh/freelancer-marketplace2/internal/service"
	"github.com/UdaynoorSingh/freelancer-marketplace2/internal/store"
	"github.com/UdaynoorSingh/freelancer-marketplace2/pkg/logger"
)

// MessageHandler handles the message endpoints.
type MessageHandler struct {
	service      *service.MessageService
	historyLimit int64
	logger       *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(svc *service.MessageService, historyMaxLimit int, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		service:      svc,
		historyLimit: int64(historyMaxLimit),
		logger:       log,
	}
}

// Send handles POST /api/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	senderID := middleware.GetUserID(ctx)

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.service.Send(ctx, senderID, &req, "http")
	if err != nil {
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Reason)
			return
		}
		h.logger.Error("failed to send message", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// History handles GET /api/messages/{userID}
// Optional cursor params: before (RFC 3339) and limit.
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewerID := middleware.GetUserID(ctx)
	otherID := chi.URLParam(r, "userID")

	if err := middleware.ValidateUserID(otherID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var before time.Time
	if b := r.URL.Query().Get("before"); b != "" {
		parsed, err := time.Parse(time.RFC3339Nano, b)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid before timestamp")
			return
		}
		before = parsed
	}

	var limit int64
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.ParseInt(l, 10, 64)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
		if limit > h.historyLimit {
			limit = h.historyLimit
		}
	}

	messages, err := h.service.History(ctx, viewerID, otherID, before, limit)
	if err != nil {
		h.logger.Error("failed to fetch history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}

	writeJSON(w, http.StatusOK, messages)
}

// Conversations handles GET /api/messages/conversations
func (h *MessageHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewerID := middleware.GetUserID(ctx)

	conversations, err := h.service.Conversations(ctx, viewerID)
	if err != nil {
		h.logger.Error("failed to build conversations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch conversations")
		return
	}
	if conversations == nil {
		conversations = []model.Conversation{}
	}

	writeJSON(w, http.StatusOK, conversations)
}

// Thread handles GET /api/messages/thread/{userID}
func (h *MessageHandler) Thread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewerID := middleware.GetUserID(ctx)
	otherID := chi.URLParam(r, "userID")

	if err := middleware.ValidateUserID(otherID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	thread, err := h.service.Thread(ctx, viewerID, otherID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("failed to build thread", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch thread")
		return
	}

	writeJSON(w, http.StatusOK, thread)
}
