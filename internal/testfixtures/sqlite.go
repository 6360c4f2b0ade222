package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/shiftline/internal/persistence"
	"github.com/example/shiftline/internal/persistence/sqlite"
	"github.com/example/shiftline/internal/persistence/sqlite/migration"
)

// SQLiteHarness wraps a migrated, file-backed store in a per-test directory.
type SQLiteHarness struct {
	Store *sqlite.Store
	tb    testing.TB
}

// NewSQLiteHarness opens and migrates a fresh database. It is closed through tb.Cleanup.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	cfg := migration.DefaultSQLiteConfig(filepath.Join(tb.TempDir(), "shiftline.db"))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := sqlite.Open(cfg, logger)
	if err != nil {
		tb.Fatalf("failed to open store: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to migrate store: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close() })
	return &SQLiteHarness{Store: store, tb: tb}
}

// SeedUser inserts a user fixture and returns the stored record.
func (h *SQLiteHarness) SeedUser(opts ...UserOption) persistence.User {
	h.tb.Helper()
	user := NewUser(opts...)
	if err := h.Store.Users.CreateUser(context.Background(), user); err != nil {
		h.tb.Fatalf("seed user %s: %v", user.ID, err)
	}
	return user
}

// SeedChat inserts a chat owned by the first participant's company.
func (h *SQLiteHarness) SeedChat(participants []persistence.User, opts ...ChatOption) persistence.Chat {
	h.tb.Helper()
	if len(participants) == 0 {
		h.tb.Fatalf("seed chat: no participants")
	}
	chat := NewChat(append([]ChatOption{WithChatCompany(participants[0].CompanyID)}, opts...)...)
	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.ID)
	}
	if err := h.Store.Chats.CreateChat(context.Background(), chat, ids); err != nil {
		h.tb.Fatalf("seed chat %s: %v", chat.ID, err)
	}
	return chat
}

// SeedMessage inserts a message into chat from sender.
func (h *SQLiteHarness) SeedMessage(chat persistence.Chat, sender persistence.User, opts ...MessageOption) persistence.Message {
	h.tb.Helper()
	msg := NewMessage(chat.ID, sender.ID, opts...)
	if err := h.Store.Messages.InsertMessage(context.Background(), msg); err != nil {
		h.tb.Fatalf("seed message %s: %v", msg.ID, err)
	}
	return msg
}

// SeedNotification inserts a notification addressed to recipient.
func (h *SQLiteHarness) SeedNotification(recipient persistence.User, opts ...NotificationOption) persistence.Notification {
	h.tb.Helper()
	n := NewNotification(recipient.ID, recipient.CompanyID, opts...)
	if err := h.Store.Notifications.InsertNotification(context.Background(), n); err != nil {
		h.tb.Fatalf("seed notification %s: %v", n.ID, err)
	}
	return n
}
