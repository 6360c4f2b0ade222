package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/shiftline/internal/persistence"
	"github.com/example/shiftline/internal/testfixtures"
)

func seededNotifications() *notificationStoreStub {
	return &notificationStoreStub{rows: []Notification{
		{ID: "n1", RecipientID: "u2", Type: NotificationChatMessage, Title: "t"},
		{ID: "n2", RecipientID: "u2", Type: NotificationSystem, Title: "t", Read: true},
		{ID: "n3", RecipientID: "u3", Type: NotificationChatMessage, Title: "t"},
		{ID: "n4", RecipientID: "u2", Type: NotificationShiftPublished, Title: "t"},
	}}
}

func TestNotificationService_ListAndCount(t *testing.T) {
	store := seededNotifications()
	svc := NewNotificationService(store, 0, nil)

	all, err := svc.ListNotifications(context.Background(), ListNotificationsParams{Principal: principal("u2")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 3 || all[0].ID != "n4" {
		t.Fatalf("expected newest-first inbox of 3, got %+v", all)
	}

	unread, err := svc.ListNotifications(context.Background(), ListNotificationsParams{Principal: principal("u2"), UnreadOnly: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(unread) != 2 {
		t.Fatalf("expected 2 unread, got %d", len(unread))
	}

	count, err := svc.UnreadCount(context.Background(), principal("u2"))
	if err != nil || count != 2 {
		t.Fatalf("expected unread count 2, got %d (err %v)", count, err)
	}

	t.Run("maps store errors", func(t *testing.T) {
		store.listErr = persistence.ErrNotFound
		defer func() { store.listErr = nil }()
		if _, err := svc.ListNotifications(context.Background(), ListNotificationsParams{Principal: principal("u2")}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestNotificationService_MarkRead(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	store := seededNotifications()
	svc := NewNotificationService(store, 0, clock.NowFunc())

	t.Run("marks own notification", func(t *testing.T) {
		if err := svc.MarkRead(context.Background(), principal("u2"), "n1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !store.rows[0].Read || !store.marked["n1"].Equal(clock.Now()) {
			t.Fatalf("expected n1 read at %v, got %+v", clock.Now(), store.rows[0])
		}
	})

	t.Run("other users notification is not found", func(t *testing.T) {
		if err := svc.MarkRead(context.Background(), principal("u2"), "n3"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("blank id is not found", func(t *testing.T) {
		if err := svc.MarkRead(context.Background(), principal("u2"), " "); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("mark all", func(t *testing.T) {
		updated, err := svc.MarkAllRead(context.Background(), principal("u2"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated != 1 {
			t.Fatalf("expected 1 remaining unread to be updated, got %d", updated)
		}
	})
}

func TestNotificationService_PruneRead(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	store := &notificationStoreStub{}
	svc := NewNotificationService(store, 0, clock.NowFunc())

	deleted, err := svc.PruneRead(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 3 {
		t.Fatalf("expected stub count, got %d", deleted)
	}
	if want := clock.Now().Add(-DefaultNotificationRetention); !store.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %v, got %v", want, store.cutoff)
	}

	store.pruneErr = errors.New("locked")
	if _, err := svc.PruneRead(context.Background()); err == nil {
		t.Fatal("expected prune error")
	}
}

func TestNotificationService_NotConfigured(t *testing.T) {
	var svc *NotificationService
	if _, err := svc.UnreadCount(context.Background(), principal("u1")); err == nil {
		t.Fatal("expected error from nil service")
	}
	if _, err := NewNotificationService(nil, 0, nil).PruneRead(context.Background()); err == nil {
		t.Fatal("expected error without store")
	}
}
