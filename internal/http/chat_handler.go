package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/shiftline/internal/application"
	"github.com/example/shiftline/internal/logging"
)

type chatService interface {
	SendMessage(ctx context.Context, params application.SendMessageParams) (application.Message, error)
	MarkRead(ctx context.Context, params application.MarkReadParams) (application.Message, error)
	ListMessages(ctx context.Context, params application.ListMessagesParams) ([]application.Message, error)
	ListChats(ctx context.Context, principal application.Principal) ([]application.Chat, error)
}

type ChatHandler struct {
	service   chatService
	responder responder
	logger    *slog.Logger
}

func NewChatHandler(service chatService, logger *slog.Logger) *ChatHandler {
	base := logging.OrDefault(logger)
	return &ChatHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *ChatHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "ChatHandler", operation, attrs...)
}

// SendMessage handles POST /chat/{chatId}/messages.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	chatID := strings.TrimSpace(chi.URLParam(r, "chatId"))

	var req sendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.log(r.Context(), "SendMessage", "chat_id", chatID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode message request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "SendMessage", "chat_id", chatID, "principal_id", principal.UserID)

	message, err := h.service.SendMessage(r.Context(), application.SendMessageParams{
		Principal: principal,
		ChatID:    chatID,
		Input: application.MessageInput{
			Content:     req.Content,
			Type:        application.MessageType(req.Type),
			Attachments: req.Attachments,
		},
	})
	if err != nil {
		logger.WarnContext(r.Context(), "message rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("message_id", message.ID).InfoContext(r.Context(), "message sent")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, messageResponse{Message: application.NewMessagePayload(message)})
}

// ListMessages handles GET /chat/{chatId}/messages.
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	chatID := strings.TrimSpace(chi.URLParam(r, "chatId"))
	logger := h.log(r.Context(), "ListMessages", "chat_id", chatID, "principal_id", principal.UserID)

	query := r.URL.Query()
	limit, err := parseLimit(query.Get("limit"))
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}
	var before *time.Time
	if raw := strings.TrimSpace(query.Get("before")); raw != "" {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidBefore)
			return
		}
		before = &at
	}

	messages, err := h.service.ListMessages(r.Context(), application.ListMessagesParams{
		Principal: principal,
		ChatID:    chatID,
		Before:    before,
		BeforeID:  strings.TrimSpace(query.Get("before_id")),
		Limit:     limit,
	})
	if err != nil {
		logger.WarnContext(r.Context(), "history request failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	payload := make([]application.MessagePayload, 0, len(messages))
	for _, m := range messages {
		payload = append(payload, application.NewMessagePayload(m))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, messageListResponse{Messages: payload})
}

// MarkRead handles PATCH /chat/messages/{messageId}/read.
func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	messageID := strings.TrimSpace(chi.URLParam(r, "messageId"))
	if messageID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingResource)
		return
	}
	logger := h.log(r.Context(), "MarkRead", "message_id", messageID, "principal_id", principal.UserID)

	message, err := h.service.MarkRead(r.Context(), application.MarkReadParams{Principal: principal, MessageID: messageID})
	if err != nil {
		logger.WarnContext(r.Context(), "read receipt failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, messageResponse{Message: application.NewMessagePayload(message)})
}

// ListChats handles GET /chats.
func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	chats, err := h.service.ListChats(r.Context(), principal)
	if err != nil {
		h.log(r.Context(), "ListChats", "principal_id", principal.UserID).
			WarnContext(r.Context(), "chat list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]chatDTO, 0, len(chats))
	for _, c := range chats {
		out = append(out, toChatDTO(c))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, chatListResponse{Chats: out})
}

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errInvalidLimit
	}
	return limit, nil
}

type sendMessageRequest struct {
	Content     string                   `json:"content"`
	Type        string                   `json:"type"`
	Attachments []application.Attachment `json:"attachments"`
}

type messageResponse struct {
	Message application.MessagePayload `json:"message"`
}

type messageListResponse struct {
	Messages []application.MessagePayload `json:"messages"`
}

type chatDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsGroup   bool   `json:"isGroup"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type chatListResponse struct {
	Chats []chatDTO `json:"chats"`
}

func toChatDTO(c application.Chat) chatDTO {
	return chatDTO{
		ID:        c.ID,
		Name:      c.Name,
		IsGroup:   c.IsGroup,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: c.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
