package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/example/shiftline/internal/persistence"
	"github.com/example/shiftline/internal/testfixtures"
)

type chatHarness struct {
	chats         *chatStoreStub
	messages      *messageStoreStub
	notifications *notificationStoreStub
	broadcaster   *broadcasterStub
	recorder      *recorderStub
	clock         *testfixtures.Clock
	service       *ChatService
}

func newChatHarness(participants ...ChatParticipants) *chatHarness {
	h := &chatHarness{
		chats:         &chatStoreStub{participants: map[string]ChatParticipants{}},
		messages:      newMessageStoreStub(),
		notifications: &notificationStoreStub{},
		broadcaster:   &broadcasterStub{},
		recorder:      &recorderStub{},
		clock:         testfixtures.NewClock(time.Time{}),
	}
	for _, p := range participants {
		h.chats.participants[p.ChatID] = p
	}
	h.service = NewChatService(h.chats, h.messages, h.notifications, h.broadcaster,
		testfixtures.NewIDGenerator("id").NextFunc(), h.clock.NowFunc())
	h.service.SetRecorder(h.recorder)
	return h
}

func principal(id string) Principal {
	return Principal{UserID: id, Name: "User " + id, Role: RoleEmployee, CompanyID: "co1"}
}

func c1() ChatParticipants {
	return ChatParticipants{ChatID: "c1", CompanyID: "co1", ParticipantIDs: []string{"u1", "u2", "u3"}}
}

func TestChatService_SendMessage(t *testing.T) {
	t.Run("persists message and fans out to other participants", func(t *testing.T) {
		h := newChatHarness(c1())

		msg, err := h.service.SendMessage(context.Background(), SendMessageParams{
			Principal: principal("u1"),
			ChatID:    "c1",
			Input:     MessageInput{Content: "hello"},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if msg.ID == "" || msg.Type != MessageTypeText || !msg.CreatedAt.Equal(testfixtures.ReferenceTime()) {
			t.Fatalf("unexpected message: %+v", msg)
		}
		if !reflect.DeepEqual(msg.ReaderIDs, []string{"u1"}) {
			t.Fatalf("expected readers [u1], got %v", msg.ReaderIDs)
		}
		stored, err := h.messages.GetMessage(context.Background(), msg.ID)
		if err != nil || !reflect.DeepEqual(stored.ReaderIDs, []string{"u1"}) {
			t.Fatalf("expected stored readers [u1], got %v (err %v)", stored.ReaderIDs, err)
		}

		if got := h.notifications.recipients(); !reflect.DeepEqual(got, []string{"u2", "u3"}) {
			t.Fatalf("expected notifications for u2 and u3, got %v", got)
		}
		for _, n := range h.notifications.rows {
			if n.Type != NotificationChatMessage || n.Body != "hello" || n.CompanyID != "co1" {
				t.Fatalf("unexpected notification: %+v", n)
			}
			var payload ChatMessagePayload
			if err := json.Unmarshal(n.Payload, &payload); err != nil {
				t.Fatalf("payload: %v", err)
			}
			if payload != (ChatMessagePayload{ChatID: "c1", MessageID: msg.ID, SenderName: "User u1"}) {
				t.Fatalf("unexpected payload: %+v", payload)
			}
		}

		received := h.broadcaster.byEvent(EventMessageReceived)
		if len(received) != 1 {
			t.Fatalf("expected one message-received fan-out, got %d", len(received))
		}
		want := []string{"chat:c1", "user:u2", "user:u3"}
		if !reflect.DeepEqual(received[0].channels, want) {
			t.Fatalf("expected channels %v, got %v", want, received[0].channels)
		}
		event := received[0].payload.(MessageReceivedEvent)
		if event.ChatID != "c1" || event.Message.ID != msg.ID || event.Message.Content != "hello" {
			t.Fatalf("unexpected event payload: %+v", event)
		}

		if got := len(h.broadcaster.byEvent(EventNotification)); got != 2 {
			t.Fatalf("expected 2 notification events, got %d", got)
		}
		if !reflect.DeepEqual(h.chats.touched, []string{"c1"}) {
			t.Fatalf("expected chat activity to be touched, got %v", h.chats.touched)
		}
		if h.recorder.persisted != 1 || h.recorder.created != 2 {
			t.Fatalf("unexpected recorder state: %+v", h.recorder)
		}
	})

	t.Run("rejects non participants without writes", func(t *testing.T) {
		h := newChatHarness(c1())

		_, err := h.service.SendMessage(context.Background(), SendMessageParams{
			Principal: principal("u4"),
			ChatID:    "c1",
			Input:     MessageInput{Content: "hi"},
		})
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
		if len(h.messages.messages) != 0 || len(h.notifications.rows) != 0 || len(h.broadcaster.deliveries) != 0 {
			t.Fatal("expected no writes or broadcasts")
		}
	})

	t.Run("rejects empty message without writes", func(t *testing.T) {
		h := newChatHarness(c1())

		_, err := h.service.SendMessage(context.Background(), SendMessageParams{
			Principal: principal("u1"),
			ChatID:    "c1",
			Input:     MessageInput{Content: "", Attachments: []Attachment{}},
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if _, ok := vErr.FieldErrors["content"]; !ok {
			t.Fatalf("expected content field error, got %v", vErr.FieldErrors)
		}
		if len(h.messages.messages) != 0 || len(h.notifications.rows) != 0 {
			t.Fatal("expected no writes")
		}
	})

	t.Run("unknown chat is not found", func(t *testing.T) {
		h := newChatHarness(c1())
		h.chats.findErr = persistence.ErrNotFound

		_, err := h.service.SendMessage(context.Background(), SendMessageParams{
			Principal: principal("u1"), ChatID: "missing", Input: MessageInput{Content: "x"},
		})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("chat of another company is not found", func(t *testing.T) {
		h := newChatHarness(c1())
		intruder := principal("u1")
		intruder.CompanyID = "co2"

		_, err := h.service.SendMessage(context.Background(), SendMessageParams{
			Principal: intruder, ChatID: "c1", Input: MessageInput{Content: "x"},
		})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("store failure aborts before notifications", func(t *testing.T) {
		h := newChatHarness(c1())
		h.messages.insertErr = errors.New("disk unavailable")

		_, err := h.service.SendMessage(context.Background(), SendMessageParams{
			Principal: principal("u1"), ChatID: "c1", Input: MessageInput{Content: "hello"},
		})
		if err == nil || ErrorKind(err) != "unexpected" {
			t.Fatalf("expected internal error, got %v", err)
		}
		if len(h.notifications.rows) != 0 || len(h.broadcaster.deliveries) != 0 || len(h.chats.touched) != 0 {
			t.Fatal("expected no side effects after failed insert")
		}
	})

	t.Run("notification failures do not fail the send", func(t *testing.T) {
		h := newChatHarness(c1())
		h.notifications.failFor = map[string]bool{"u3": true}
		h.chats.touchErr = errors.New("busy")

		msg, err := h.service.SendMessage(context.Background(), SendMessageParams{
			Principal: principal("u1"), ChatID: "c1", Input: MessageInput{Content: "hello"},
		})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if msg.ID == "" {
			t.Fatal("expected persisted message")
		}
		if got := h.notifications.recipients(); !reflect.DeepEqual(got, []string{"u2"}) {
			t.Fatalf("expected notification for u2 only, got %v", got)
		}
		received := h.broadcaster.byEvent(EventMessageReceived)
		if !reflect.DeepEqual(received[0].channels, []string{"chat:c1", "user:u2"}) {
			t.Fatalf("expected broadcast to chat and u2 only, got %v", received[0].channels)
		}
		if h.recorder.failed != 1 {
			t.Fatalf("expected one recorded failure, got %d", h.recorder.failed)
		}
	})

	t.Run("ignores caller cancellation", func(t *testing.T) {
		h := newChatHarness(c1())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := h.service.SendMessage(ctx, SendMessageParams{
			Principal: principal("u1"), ChatID: "c1", Input: MessageInput{Content: "hello"},
		}); err != nil {
			t.Fatalf("expected send to complete, got %v", err)
		}
	})

	t.Run("truncates long previews", func(t *testing.T) {
		h := newChatHarness(c1())
		h.service.SetPreviewLength(5)

		if _, err := h.service.SendMessage(context.Background(), SendMessageParams{
			Principal: principal("u1"), ChatID: "c1", Input: MessageInput{Content: "こんにちは世界"},
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := h.notifications.rows[0].Body; got != "こんにちは…" {
			t.Fatalf("expected truncated preview, got %q", got)
		}
	})
}

func TestChatService_SendMessage_ContentRule(t *testing.T) {
	attachment := Attachment{URL: "https://files.example.com/a.png", Name: "a.png"}
	tests := []struct {
		name    string
		input   MessageInput
		wantErr bool
	}{
		{name: "empty content and no attachments", input: MessageInput{}, wantErr: true},
		{name: "whitespace content", input: MessageInput{Content: "   "}, wantErr: true},
		{name: "content only", input: MessageInput{Content: "hi"}},
		{name: "attachment only", input: MessageInput{Type: MessageTypeImage, Attachments: []Attachment{attachment}}},
		{name: "both", input: MessageInput{Content: "see file", Type: MessageTypeFile, Attachments: []Attachment{attachment}}},
		{name: "lower case type", input: MessageInput{Content: "hi", Type: "text"}},
		{name: "unknown type", input: MessageInput{Content: "hi", Type: "VIDEO"}, wantErr: true},
		{name: "attachment without url", input: MessageInput{Attachments: []Attachment{{Name: "x"}}}, wantErr: true},
		{name: "too long", input: MessageInput{Content: strings.Repeat("a", maxMessageLength+1)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newChatHarness(c1())
			_, err := h.service.SendMessage(context.Background(), SendMessageParams{
				Principal: principal("u2"), ChatID: "c1", Input: tt.input,
			})
			if tt.wantErr {
				var vErr *ValidationError
				if !errors.As(err, &vErr) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
				if len(h.messages.messages) != 0 {
					t.Fatal("expected no message to be stored")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestChatService_SendMessage_RandomParticipantSets(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	users := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7", "u8"}

	for round := 0; round < 200; round++ {
		var members []string
		for _, u := range users {
			if rng.IntN(2) == 0 {
				members = append(members, u)
			}
		}
		sender := users[rng.IntN(len(users))]
		h := newChatHarness(ChatParticipants{ChatID: "c", CompanyID: "co1", ParticipantIDs: members})

		msg, err := h.service.SendMessage(context.Background(), SendMessageParams{
			Principal: principal(sender), ChatID: "c", Input: MessageInput{Content: fmt.Sprintf("round %d", round)},
		})

		isMember := slices.Contains(members, sender)
		if isMember != (err == nil) {
			t.Fatalf("round %d: sender %s member=%v members=%v err=%v", round, sender, isMember, members, err)
		}
		if !isMember {
			if !errors.Is(err, ErrForbidden) {
				t.Fatalf("round %d: expected ErrForbidden, got %v", round, err)
			}
			continue
		}
		if !msg.ReadBy(sender) {
			t.Fatalf("round %d: sender missing from readers %v", round, msg.ReaderIDs)
		}
		if got := len(h.notifications.rows); got != len(members)-1 {
			t.Fatalf("round %d: expected %d notifications, got %d", round, len(members)-1, got)
		}
		for _, n := range h.notifications.rows {
			if n.RecipientID == sender {
				t.Fatalf("round %d: sender notified", round)
			}
		}
	}
}

func TestChatService_MarkRead(t *testing.T) {
	t.Run("is idempotent", func(t *testing.T) {
		h := newChatHarness(c1())
		msg, err := h.service.SendMessage(context.Background(), SendMessageParams{
			Principal: principal("u1"), ChatID: "c1", Input: MessageInput{Content: "hello"},
		})
		if err != nil {
			t.Fatalf("send: %v", err)
		}

		first, err := h.service.MarkRead(context.Background(), MarkReadParams{Principal: principal("u2"), MessageID: msg.ID})
		if err != nil {
			t.Fatalf("first mark: %v", err)
		}
		second, err := h.service.MarkRead(context.Background(), MarkReadParams{Principal: principal("u2"), MessageID: msg.ID})
		if err != nil {
			t.Fatalf("second mark: %v", err)
		}
		if !reflect.DeepEqual(first.ReaderIDs, second.ReaderIDs) {
			t.Fatalf("reader sets differ: %v vs %v", first.ReaderIDs, second.ReaderIDs)
		}
		stored, _ := h.messages.GetMessage(context.Background(), msg.ID)
		if !reflect.DeepEqual(stored.ReaderIDs, []string{"u1", "u2"}) {
			t.Fatalf("expected readers [u1 u2], got %v", stored.ReaderIDs)
		}
		if h.messages.appends != 1 {
			t.Fatalf("expected a single append, got %d", h.messages.appends)
		}
		if len(h.broadcaster.byEvent(EventMessageReceived)) != 1 {
			t.Fatal("expected no broadcast for read receipts")
		}
	})

	t.Run("unknown message is not found", func(t *testing.T) {
		h := newChatHarness(c1())
		_, err := h.service.MarkRead(context.Background(), MarkReadParams{Principal: principal("u2"), MessageID: "nope"})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("non participants are forbidden", func(t *testing.T) {
		h := newChatHarness(c1())
		msg, _ := h.service.SendMessage(context.Background(), SendMessageParams{
			Principal: principal("u1"), ChatID: "c1", Input: MessageInput{Content: "hello"},
		})
		_, err := h.service.MarkRead(context.Background(), MarkReadParams{Principal: principal("u9"), MessageID: msg.ID})
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})
}

func TestChatService_ListMessages(t *testing.T) {
	h := newChatHarness(c1())
	for i := 0; i < 3; i++ {
		if _, err := h.service.SendMessage(context.Background(), SendMessageParams{
			Principal: principal("u1"), ChatID: "c1", Input: MessageInput{Content: fmt.Sprintf("m%d", i)},
		}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		h.clock.Advance(time.Second)
	}

	t.Run("returns oldest first", func(t *testing.T) {
		messages, err := h.service.ListMessages(context.Background(), ListMessagesParams{Principal: principal("u2"), ChatID: "c1", Limit: 2})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(messages) != 2 || messages[0].Content != "m1" || messages[1].Content != "m2" {
			t.Fatalf("unexpected page: %+v", messages)
		}
	})

	t.Run("requires participation", func(t *testing.T) {
		_, err := h.service.ListMessages(context.Background(), ListMessagesParams{Principal: principal("u7"), ChatID: "c1"})
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})
}

func TestChatService_ListMessages_SameInstant(t *testing.T) {
	h := newChatHarness(c1())
	var sent []Message
	for i := 0; i < 3; i++ {
		m, err := h.service.SendMessage(context.Background(), SendMessageParams{
			Principal: principal("u1"), ChatID: "c1", Input: MessageInput{Content: fmt.Sprintf("m%d", i)},
		})
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		sent = append(sent, m)
	}

	page, err := h.service.ListMessages(context.Background(), ListMessagesParams{Principal: principal("u2"), ChatID: "c1", Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page) != 2 || page[0].ID != sent[1].ID || page[1].ID != sent[2].ID {
		t.Fatalf("unexpected first page: %+v", page)
	}

	oldest := page[0]
	rest, err := h.service.ListMessages(context.Background(), ListMessagesParams{
		Principal: principal("u2"),
		ChatID:    "c1",
		Before:    &oldest.CreatedAt,
		BeforeID:  oldest.ID,
		Limit:     2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != sent[0].ID {
		t.Fatalf("expected the earlier message at the same instant, got %+v", rest)
	}
}

func TestChatService_NilReceiver(t *testing.T) {
	var svc *ChatService
	if _, err := svc.SendMessage(context.Background(), SendMessageParams{}); err == nil {
		t.Fatal("expected error from nil service")
	}
}
