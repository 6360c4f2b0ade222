package realtime

import (
	"context"
	"iter"
	"log/slog"
	"strings"

	"github.com/example/shiftline/internal/application"
)

// Observer receives connection and delivery counts.
type Observer interface {
	ConnectionOpened()
	ConnectionClosed()
	EventDelivered(event string, delivered bool)
}

type nopObserver struct{}

func (nopObserver) ConnectionOpened()           {}
func (nopObserver) ConnectionClosed()           {}
func (nopObserver) EventDelivered(string, bool) {}

// Router resolves channels to live connections and delivers events to them.
// It also announces presence changes on company channels.
type Router struct {
	registry *Registry
	observer Observer
	logger   *slog.Logger
}

// NewRouter returns a router over registry.
func NewRouter(registry *Registry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{registry: registry, observer: nopObserver{}, logger: logger.With("component", "realtime")}
}

// SetObserver installs a metrics observer.
func (r *Router) SetObserver(observer Observer) {
	if observer == nil {
		observer = nopObserver{}
	}
	r.observer = observer
}

// Registry returns the underlying registry.
func (r *Router) Registry() *Registry { return r.registry }

// Connect registers an authenticated connection and, when it is the user's
// first live connection, announces user-online to the rest of the company.
func (r *Router) Connect(ctx context.Context, conn *Connection) error {
	first, err := r.registry.Register(conn)
	if err != nil {
		return err
	}
	r.observer.ConnectionOpened()

	if first {
		p := conn.Principal()
		r.BroadcastExcept(ctx, application.CompanyChannel(p.CompanyID), conn.ID(),
			application.EventUserOnline, application.PresenceEvent{UserID: p.UserID, Name: p.Name})
	}
	return nil
}

// Disconnect unregisters the connection. When the user has no connection
// left, user-offline is announced to the company. Repeated calls are no-ops.
func (r *Router) Disconnect(ctx context.Context, conn *Connection) {
	removed, last := r.registry.Unregister(conn)
	if !removed {
		return
	}
	r.observer.ConnectionClosed()

	if last {
		p := conn.Principal()
		r.Broadcast(ctx, application.CompanyChannel(p.CompanyID),
			application.EventUserOffline, application.PresenceEvent{UserID: p.UserID, Name: p.Name})
	}
}

// Close shuts the registry down. No presence is announced since every
// subscriber is being dropped at once.
func (r *Router) Close() {
	for range r.registry.Close() {
		r.observer.ConnectionClosed()
	}
}

// Join subscribes the connection to a chat channel. Membership of the chat
// is not checked here; sends are authorized separately.
func (r *Router) Join(conn *Connection, chatID string) bool {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return false
	}
	return r.registry.Subscribe(conn, application.ChatChannel(chatID))
}

// Leave unsubscribes the connection from a chat channel.
func (r *Router) Leave(conn *Connection, chatID string) {
	r.registry.Unsubscribe(conn, application.ChatChannel(strings.TrimSpace(chatID)))
}

// Resolve returns the connections subscribed to channel. Each iteration
// observes the subscribers at the moment it starts.
func (r *Router) Resolve(channel string) iter.Seq[*Connection] {
	return func(yield func(*Connection) bool) {
		for _, conn := range r.registry.Subscribers(channel) {
			if !yield(conn) {
				return
			}
		}
	}
}

// Online returns the principals of companyID that have a live connection.
func (r *Router) Online(companyID string) []application.Principal {
	var out []application.Principal
	for _, p := range r.registry.ListOnline() {
		if p.CompanyID == companyID {
			out = append(out, p)
		}
	}
	return out
}

// Broadcast delivers the event to every subscriber of channel and returns
// the number of connections that accepted it.
func (r *Router) Broadcast(ctx context.Context, channel, event string, payload any) int {
	return r.deliver(ctx, []string{channel}, "", event, payload)
}

// BroadcastExcept is Broadcast skipping the connection with id exceptID.
func (r *Router) BroadcastExcept(ctx context.Context, channel, exceptID, event string, payload any) int {
	return r.deliver(ctx, []string{channel}, exceptID, event, payload)
}

// Fanout delivers the event at most once to every connection subscribed to
// any of channels.
func (r *Router) Fanout(ctx context.Context, channels []string, event string, payload any) int {
	return r.deliver(ctx, channels, "", event, payload)
}

func (r *Router) deliver(ctx context.Context, channels []string, exceptID, event string, payload any) int {
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to encode event", "event", event, "error", err)
		return 0
	}

	seen := make(map[string]struct{})
	delivered := 0
	for _, channel := range channels {
		for conn := range r.Resolve(channel) {
			if conn.ID() == exceptID {
				continue
			}
			if _, dup := seen[conn.ID()]; dup {
				continue
			}
			seen[conn.ID()] = struct{}{}

			if err := conn.SendFrame(frame); err != nil {
				r.observer.EventDelivered(event, false)
				r.logger.DebugContext(ctx, "dropped event",
					"event", event,
					"channel", channel,
					"connection_id", conn.ID(),
					"error", err,
				)
				continue
			}
			r.observer.EventDelivered(event, true)
			delivered++
		}
	}
	return delivered
}
