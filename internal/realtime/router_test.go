package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"reflect"
	"slices"
	"sync"
	"testing"

	"github.com/example/shiftline/internal/application"
)

type senderStub struct {
	mu     sync.Mutex
	frames []Frame
	full   bool
	closed int
}

func (s *senderStub) Send(raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return errors.New("send buffer full")
	}
	frame, err := DecodeFrame(raw)
	if err != nil {
		return err
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *senderStub) Close() {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
}

func (s *senderStub) events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.frames))
	for _, f := range s.frames {
		out = append(out, f.Event)
	}
	return out
}

type observerStub struct {
	mu        sync.Mutex
	opened    int
	closed    int
	delivered int
	dropped   int
}

func (o *observerStub) ConnectionOpened() { o.mu.Lock(); o.opened++; o.mu.Unlock() }
func (o *observerStub) ConnectionClosed() { o.mu.Lock(); o.closed++; o.mu.Unlock() }
func (o *observerStub) EventDelivered(_ string, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ok {
		o.delivered++
	} else {
		o.dropped++
	}
}

func newTestRouter() (*Router, *observerStub) {
	router := NewRouter(NewRegistry(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	observer := &observerStub{}
	router.SetObserver(observer)
	return router, observer
}

func newConn(id, userID, companyID string) (*Connection, *senderStub) {
	sender := &senderStub{}
	p := application.Principal{UserID: userID, Name: "Name " + userID, Role: application.RoleEmployee, CompanyID: companyID}
	return NewConnection(id, p, sender), sender
}

func ids(seq func(func(*Connection) bool)) []string {
	var out []string
	for conn := range seq {
		out = append(out, conn.ID())
	}
	slices.Sort(out)
	return out
}

func TestRouter_ImplicitChannels(t *testing.T) {
	router, _ := newTestRouter()
	conn, _ := newConn("k1", "u1", "co1")
	if err := router.Connect(context.Background(), conn); err != nil {
		t.Fatalf("connect: %v", err)
	}

	want := []string{"company:co1", "user:u1"}
	if got := router.Registry().Channels(conn); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected channels %v, got %v", want, got)
	}
	if got := ids(router.Resolve("user:u1")); !reflect.DeepEqual(got, []string{"k1"}) {
		t.Fatalf("expected k1 on user channel, got %v", got)
	}
}

func TestRouter_JoinLeave(t *testing.T) {
	router, _ := newTestRouter()
	conn, _ := newConn("k1", "u1", "co1")
	_ = router.Connect(context.Background(), conn)

	if !router.Join(conn, "c1") || !router.Join(conn, "c1") {
		t.Fatal("expected join to succeed and be idempotent")
	}
	if got := ids(router.Resolve("chat:c1")); !reflect.DeepEqual(got, []string{"k1"}) {
		t.Fatalf("expected k1 in chat:c1, got %v", got)
	}

	router.Leave(conn, "c1")
	router.Leave(conn, "c1")
	if got := ids(router.Resolve("chat:c1")); len(got) != 0 {
		t.Fatalf("expected empty chat channel, got %v", got)
	}

	if router.Join(conn, " ") {
		t.Fatal("expected blank chat id to be rejected")
	}

	stranger, _ := newConn("k2", "u2", "co1")
	if router.Join(stranger, "c1") {
		t.Fatal("expected join of unregistered connection to be ignored")
	}
	if got := ids(router.Resolve("chat:c1")); len(got) != 0 {
		t.Fatalf("expected unregistered connection to stay out, got %v", got)
	}
}

func TestRouter_ResolveIsLazyAndRestartable(t *testing.T) {
	router, _ := newTestRouter()
	seq := router.Resolve("chat:c1")
	if got := ids(seq); len(got) != 0 {
		t.Fatalf("expected empty sequence, got %v", got)
	}

	conn, _ := newConn("k1", "u1", "co1")
	_ = router.Connect(context.Background(), conn)
	router.Join(conn, "c1")

	if got := ids(seq); !reflect.DeepEqual(got, []string{"k1"}) {
		t.Fatalf("expected re-iteration to observe new subscriber, got %v", got)
	}

	other, _ := newConn("k2", "u2", "co1")
	_ = router.Connect(context.Background(), other)
	router.Join(other, "c1")
	count := 0
	for range seq {
		count++
		break
	}
	if count != 1 {
		t.Fatalf("expected early break to stop iteration, got %d", count)
	}
}

func TestRouter_UnregisterCleansEveryMembership(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	router, _ := newTestRouter()

	var conns []*Connection
	for i := 0; i < 20; i++ {
		conn, _ := newConn(fmt.Sprintf("k%d", i), fmt.Sprintf("u%d", i%5), fmt.Sprintf("co%d", i%2))
		if err := router.Connect(context.Background(), conn); err != nil {
			t.Fatalf("connect: %v", err)
		}
		for j := 0; j < 4; j++ {
			router.Join(conn, fmt.Sprintf("c%d", rng.IntN(6)))
		}
		conns = append(conns, conn)
	}

	for _, conn := range conns[:10] {
		joined := router.Registry().Channels(conn)
		router.Disconnect(context.Background(), conn)
		router.Disconnect(context.Background(), conn)

		for _, channel := range joined {
			for other := range router.Resolve(channel) {
				if other.ID() == conn.ID() {
					t.Fatalf("%s still resolved on %s after disconnect", conn.ID(), channel)
				}
			}
		}
		if router.Join(conn, "c0") {
			t.Fatalf("expected join after disconnect to be ignored for %s", conn.ID())
		}
	}
	if router.Registry().Len() != 10 {
		t.Fatalf("expected 10 live connections, got %d", router.Registry().Len())
	}
}

func TestRouter_FanoutDeliversOncePerConnection(t *testing.T) {
	router, observer := newTestRouter()
	ctx := context.Background()

	c1u2, s1 := newConn("k1", "u2", "co1")
	c2u3, s2 := newConn("k2", "u3", "co1")
	c3u1, s3 := newConn("k3", "u1", "co1")
	for _, c := range []*Connection{c1u2, c2u3, c3u1} {
		_ = router.Connect(ctx, c)
	}
	router.Join(c1u2, "c1")
	router.Join(c3u1, "c1")

	before := observer.delivered
	delivered := router.Fanout(ctx, []string{"chat:c1", "user:u2", "user:u3"}, application.EventMessageReceived, map[string]string{"chatId": "c1"})
	if delivered != 3 {
		t.Fatalf("expected 3 deliveries, got %d", delivered)
	}
	if observer.delivered-before != 3 {
		t.Fatalf("expected observer to count 3 deliveries, got %d", observer.delivered-before)
	}
	for name, s := range map[string]*senderStub{"k1": s1, "k2": s2, "k3": s3} {
		count := 0
		for _, e := range s.events() {
			if e == application.EventMessageReceived {
				count++
			}
		}
		if count != 1 {
			t.Fatalf("%s received %d message-received frames", name, count)
		}
	}
}

func TestRouter_FullSenderDropsWithoutBlocking(t *testing.T) {
	router, observer := newTestRouter()
	slow, slowSender := newConn("k1", "u1", "co1")
	fast, _ := newConn("k2", "u2", "co1")
	_ = router.Connect(context.Background(), slow)
	_ = router.Connect(context.Background(), fast)
	slowSender.full = true

	if got := router.Broadcast(context.Background(), "company:co1", "ping", nil); got != 1 {
		t.Fatalf("expected one delivery, got %d", got)
	}
	if observer.dropped != 1 {
		t.Fatalf("expected one dropped delivery, got %d", observer.dropped)
	}
}

func TestRouter_Presence(t *testing.T) {
	router, _ := newTestRouter()
	ctx := context.Background()

	watcher, watcherSender := newConn("k1", "u1", "co1")
	outsider, outsiderSender := newConn("k9", "u9", "co2")
	_ = router.Connect(ctx, watcher)
	_ = router.Connect(ctx, outsider)

	phone, phoneSender := newConn("k2", "u2", "co1")
	laptop, _ := newConn("k3", "u2", "co1")
	_ = router.Connect(ctx, phone)
	_ = router.Connect(ctx, laptop)

	if got := watcherSender.events(); !reflect.DeepEqual(got, []string{application.EventUserOnline}) {
		t.Fatalf("expected a single user-online, got %v", got)
	}
	var presence application.PresenceEvent
	if err := json.Unmarshal(watcherSender.frames[0].Data, &presence); err != nil {
		t.Fatalf("decode presence: %v", err)
	}
	if presence != (application.PresenceEvent{UserID: "u2", Name: "Name u2"}) {
		t.Fatalf("unexpected presence payload %+v", presence)
	}
	if got := phoneSender.events(); slices.Contains(got, application.EventUserOnline) {
		t.Fatalf("connecting connection must not see its own user-online, got %v", got)
	}
	if len(outsiderSender.events()) != 0 {
		t.Fatalf("other companies must not see presence, got %v", outsiderSender.events())
	}

	online := router.Online("co1")
	if len(online) != 2 || online[0].UserID != "u1" || online[1].UserID != "u2" {
		t.Fatalf("unexpected online list %+v", online)
	}

	router.Disconnect(ctx, phone)
	if slices.Contains(watcherSender.events(), application.EventUserOffline) {
		t.Fatal("user-offline must wait for the last connection")
	}
	router.Disconnect(ctx, laptop)
	if got := watcherSender.events(); got[len(got)-1] != application.EventUserOffline {
		t.Fatalf("expected user-offline after last disconnect, got %v", got)
	}
}

func TestRouter_DisconnectedUserMissesLiveDelivery(t *testing.T) {
	router, _ := newTestRouter()
	ctx := context.Background()

	u2, s2 := newConn("k2", "u2", "co1")
	u3, s3 := newConn("k3", "u3", "co1")
	_ = router.Connect(ctx, u2)
	_ = router.Connect(ctx, u3)
	router.Join(u2, "c1")
	router.Join(u3, "c1")

	router.Disconnect(ctx, u3)
	before := len(s3.events())
	router.Fanout(ctx, []string{"chat:c1", "user:u2", "user:u3"}, application.EventMessageReceived, nil)

	if len(s3.events()) != before {
		t.Fatal("disconnected connection received a frame")
	}
	if !slices.Contains(s2.events(), application.EventMessageReceived) {
		t.Fatal("expected connected participant to receive the message")
	}
	if s3.closed != 1 {
		t.Fatalf("expected transport to be closed once, got %d", s3.closed)
	}
}

func TestRegistry_Concurrency(t *testing.T) {
	router, observer := newTestRouter()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, _ := newConn(fmt.Sprintf("k%d", i), fmt.Sprintf("u%d", i%7), "co1")
			if err := router.Connect(ctx, conn); err != nil {
				t.Errorf("connect: %v", err)
				return
			}
			router.Join(conn, "c1")
			router.Broadcast(ctx, "chat:c1", "ping", nil)
			router.Disconnect(ctx, conn)
		}(i)
	}
	wg.Wait()

	if router.Registry().Len() != 0 {
		t.Fatalf("expected empty registry, got %d", router.Registry().Len())
	}
	if observer.opened != 50 || observer.closed != 50 {
		t.Fatalf("unexpected observer counts %+v", observer)
	}
}

func TestRegistry_Close(t *testing.T) {
	router, _ := newTestRouter()
	conn, sender := newConn("k1", "u1", "co1")
	_ = router.Connect(context.Background(), conn)

	if n := router.Registry().Close(); n != 1 {
		t.Fatalf("expected one drained connection, got %d", n)
	}
	if sender.closed != 1 || !conn.Closed() {
		t.Fatal("expected connection to be closed")
	}
	if err := conn.Send("ping", nil); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
	other, _ := newConn("k2", "u2", "co1")
	if err := router.Connect(context.Background(), other); !errors.Is(err, ErrRegistryClosed) {
		t.Fatalf("expected ErrRegistryClosed, got %v", err)
	}
}

func TestRouter_CloseBalancesObserver(t *testing.T) {
	router, observer := newTestRouter()
	first, _ := newConn("k1", "u1", "co1")
	second, secondSender := newConn("k2", "u2", "co1")
	_ = router.Connect(context.Background(), first)
	_ = router.Connect(context.Background(), second)

	router.Close()
	if observer.opened != 2 || observer.closed != 2 {
		t.Fatalf("expected balanced observer counts, got %+v", observer)
	}
	if router.Registry().Len() != 0 || !first.Closed() || !second.Closed() {
		t.Fatal("expected every connection to be closed")
	}

	// A session noticing the close later must not count it twice.
	router.Disconnect(context.Background(), second)
	if observer.closed != 2 {
		t.Fatalf("expected no extra close, got %d", observer.closed)
	}
	for _, ev := range secondSender.events() {
		if ev == application.EventUserOffline {
			t.Fatal("shutdown must not announce presence")
		}
	}
}

func TestRegistry_DuplicateConnection(t *testing.T) {
	registry := NewRegistry()
	conn, _ := newConn("k1", "u1", "co1")
	if _, err := registry.Register(conn); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := registry.Register(conn); !errors.Is(err, ErrDuplicateConnection) {
		t.Fatalf("expected ErrDuplicateConnection, got %v", err)
	}
}
