package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/shiftline/internal/application"
	"github.com/example/shiftline/internal/auth"
	"github.com/example/shiftline/internal/persistence"
)

type tokenIssuerAdapter struct {
	jwt *auth.JWTService
}

func newTokenIssuerAdapter(jwt *auth.JWTService) *tokenIssuerAdapter {
	return &tokenIssuerAdapter{jwt: jwt}
}

func (a *tokenIssuerAdapter) Issue(claims application.TokenClaims) (string, time.Time, error) {
	return a.jwt.Generate(auth.Identity{
		UserID:    claims.Subject,
		CompanyID: claims.CompanyID,
		Role:      string(claims.Role),
		Name:      claims.Name,
	})
}

func (a *tokenIssuerAdapter) Verify(token string) (application.TokenClaims, error) {
	identity, err := a.jwt.Validate(token)
	if err != nil {
		return application.TokenClaims{}, err
	}
	return application.TokenClaims{
		Subject:   identity.UserID,
		CompanyID: identity.CompanyID,
		Role:      application.Role(identity.Role),
		Name:      identity.Name,
		ExpiresAt: identity.ExpiresAt,
	}, nil
}

type credentialStoreAdapter struct {
	repo persistence.UserRepository
}

func newCredentialStoreAdapter(repo persistence.UserRepository) *credentialStoreAdapter {
	return &credentialStoreAdapter{repo: repo}
}

func (a *credentialStoreAdapter) GetUserCredentialsByEmail(ctx context.Context, email string) (application.UserCredentials, error) {
	stored, err := a.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return application.UserCredentials{}, err
	}
	return application.UserCredentials{
		User:         toApplicationUser(stored),
		PasswordHash: stored.PasswordHash,
	}, nil
}

func (a *credentialStoreAdapter) GetUser(ctx context.Context, id string) (application.User, error) {
	stored, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

type chatStoreAdapter struct {
	repo persistence.ChatRepository
}

func newChatStoreAdapter(repo persistence.ChatRepository) *chatStoreAdapter {
	return &chatStoreAdapter{repo: repo}
}

func (a *chatStoreAdapter) FindChatParticipants(ctx context.Context, chatID string) (application.ChatParticipants, error) {
	stored, err := a.repo.FindChatParticipants(ctx, chatID)
	if err != nil {
		return application.ChatParticipants{}, err
	}
	return application.ChatParticipants{
		ChatID:         stored.ChatID,
		CompanyID:      stored.CompanyID,
		ParticipantIDs: append([]string(nil), stored.ParticipantIDs...),
	}, nil
}

func (a *chatStoreAdapter) TouchChatUpdatedAt(ctx context.Context, chatID string, at time.Time) error {
	return a.repo.TouchChatUpdatedAt(ctx, chatID, at)
}

func (a *chatStoreAdapter) ListChatsForUser(ctx context.Context, userID string) ([]application.Chat, error) {
	models, err := a.repo.ListChatsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	chats := make([]application.Chat, 0, len(models))
	for _, model := range models {
		chats = append(chats, application.Chat{
			ID:        model.ID,
			CompanyID: model.CompanyID,
			Name:      model.Name,
			IsGroup:   model.IsGroup,
			CreatedAt: model.CreatedAt,
			UpdatedAt: model.UpdatedAt,
		})
	}
	return chats, nil
}

type messageStoreAdapter struct {
	repo persistence.MessageRepository
}

func newMessageStoreAdapter(repo persistence.MessageRepository) *messageStoreAdapter {
	return &messageStoreAdapter{repo: repo}
}

func (a *messageStoreAdapter) InsertMessage(ctx context.Context, message application.Message) (application.Message, error) {
	model, err := toPersistenceMessage(message)
	if err != nil {
		return application.Message{}, err
	}
	if err := a.repo.InsertMessage(ctx, model); err != nil {
		return application.Message{}, err
	}
	return message, nil
}

func (a *messageStoreAdapter) GetMessage(ctx context.Context, id string) (application.Message, error) {
	stored, err := a.repo.GetMessage(ctx, id)
	if err != nil {
		return application.Message{}, err
	}
	return toApplicationMessage(stored)
}

func (a *messageStoreAdapter) AppendMessageReader(ctx context.Context, messageID, userID string, at time.Time) error {
	return a.repo.AppendMessageReader(ctx, messageID, userID, at)
}

func (a *messageStoreAdapter) ListMessages(ctx context.Context, chatID string, before *time.Time, beforeID string, limit int) ([]application.Message, error) {
	models, err := a.repo.ListMessages(ctx, persistence.MessageFilter{ChatID: chatID, Before: before, BeforeID: beforeID, Limit: limit})
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	messages := make([]application.Message, 0, len(models))
	for _, model := range models {
		message, err := toApplicationMessage(model)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, nil
}

type notificationStoreAdapter struct {
	repo persistence.NotificationRepository
}

func newNotificationStoreAdapter(repo persistence.NotificationRepository) *notificationStoreAdapter {
	return &notificationStoreAdapter{repo: repo}
}

func (a *notificationStoreAdapter) InsertNotification(ctx context.Context, n application.Notification) (application.Notification, error) {
	if err := a.repo.InsertNotification(ctx, toPersistenceNotification(n)); err != nil {
		return application.Notification{}, err
	}
	return n, nil
}

func (a *notificationStoreAdapter) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]application.Notification, error) {
	models, err := a.repo.ListNotifications(ctx, persistence.NotificationFilter{
		RecipientID: recipientID,
		UnreadOnly:  unreadOnly,
		Limit:       limit,
	})
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	notifications := make([]application.Notification, 0, len(models))
	for _, model := range models {
		notifications = append(notifications, toApplicationNotification(model))
	}
	return notifications, nil
}

func (a *notificationStoreAdapter) CountUnreadNotifications(ctx context.Context, recipientID string) (int, error) {
	return a.repo.CountUnreadNotifications(ctx, recipientID)
}

func (a *notificationStoreAdapter) MarkNotificationRead(ctx context.Context, recipientID, notificationID string, at time.Time) error {
	return a.repo.MarkNotificationRead(ctx, recipientID, notificationID, at)
}

func (a *notificationStoreAdapter) MarkAllNotificationsRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	return a.repo.MarkAllNotificationsRead(ctx, recipientID, at)
}

func (a *notificationStoreAdapter) DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return a.repo.DeleteReadNotificationsBefore(ctx, cutoff)
}

func toApplicationUser(model persistence.User) application.User {
	return application.User{
		ID:          model.ID,
		CompanyID:   model.CompanyID,
		Email:       model.Email,
		DisplayName: model.DisplayName,
		Role:        application.Role(model.Role),
		Active:      model.Active,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

func toPersistenceMessage(message application.Message) (persistence.Message, error) {
	attachments := []application.Attachment{}
	if len(message.Attachments) > 0 {
		attachments = message.Attachments
	}
	raw, err := json.Marshal(attachments)
	if err != nil {
		return persistence.Message{}, fmt.Errorf("encode attachments: %w", err)
	}
	return persistence.Message{
		ID:          message.ID,
		ChatID:      message.ChatID,
		SenderID:    message.SenderID,
		Content:     message.Content,
		Type:        string(message.Type),
		Attachments: string(raw),
		ReaderIDs:   append([]string(nil), message.ReaderIDs...),
		CreatedAt:   message.CreatedAt,
	}, nil
}

func toApplicationMessage(model persistence.Message) (application.Message, error) {
	var attachments []application.Attachment
	if model.Attachments != "" {
		if err := json.Unmarshal([]byte(model.Attachments), &attachments); err != nil {
			return application.Message{}, fmt.Errorf("decode attachments of message %s: %w", model.ID, err)
		}
	}
	if len(attachments) == 0 {
		attachments = nil
	}
	return application.Message{
		ID:          model.ID,
		ChatID:      model.ChatID,
		SenderID:    model.SenderID,
		Content:     model.Content,
		Type:        application.MessageType(model.Type),
		Attachments: attachments,
		ReaderIDs:   append([]string(nil), model.ReaderIDs...),
		CreatedAt:   model.CreatedAt,
	}, nil
}

func toPersistenceNotification(n application.Notification) persistence.Notification {
	payload := "{}"
	if len(n.Payload) > 0 {
		payload = string(n.Payload)
	}
	return persistence.Notification{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		CompanyID:   n.CompanyID,
		Type:        string(n.Type),
		Title:       n.Title,
		Body:        n.Body,
		Payload:     payload,
		Read:        n.Read,
		CreatedAt:   n.CreatedAt,
		ReadAt:      cloneTime(n.ReadAt),
	}
}

func toApplicationNotification(model persistence.Notification) application.Notification {
	return application.Notification{
		ID:          model.ID,
		RecipientID: model.RecipientID,
		CompanyID:   model.CompanyID,
		Type:        application.NotificationType(model.Type),
		Title:       model.Title,
		Body:        model.Body,
		Payload:     json.RawMessage(model.Payload),
		Read:        model.Read,
		CreatedAt:   model.CreatedAt,
		ReadAt:      cloneTime(model.ReadAt),
	}
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
