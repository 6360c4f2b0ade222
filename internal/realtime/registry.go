package realtime

import (
	"errors"
	"sort"
	"sync"

	"github.com/example/shiftline/internal/application"
)

var (
	// ErrRegistryClosed is returned by Register after Close.
	ErrRegistryClosed = errors.New("realtime: registry closed")
	// ErrDuplicateConnection is returned when a connection id is registered twice.
	ErrDuplicateConnection = errors.New("realtime: duplicate connection id")
)

// Registry maps live connections to their owners and channel memberships.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]*Connection
	channels map[string]map[string]*Connection
	// memberships is the reverse index used to drop every channel on Unregister.
	memberships map[string]map[string]struct{}
	byUser      map[string]int
	closed      bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:       make(map[string]*Connection),
		channels:    make(map[string]map[string]*Connection),
		memberships: make(map[string]map[string]struct{}),
		byUser:      make(map[string]int),
	}
}

// Register stores the connection and subscribes it to its company and user
// channels. first reports whether it is the user's only live connection.
func (r *Registry) Register(conn *Connection) (first bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, ErrRegistryClosed
	}
	if _, exists := r.conns[conn.ID()]; exists {
		return false, ErrDuplicateConnection
	}

	p := conn.Principal()
	r.conns[conn.ID()] = conn
	r.memberships[conn.ID()] = make(map[string]struct{})
	r.subscribeLocked(conn, application.CompanyChannel(p.CompanyID))
	r.subscribeLocked(conn, application.UserChannel(p.UserID))
	r.byUser[p.UserID]++
	return r.byUser[p.UserID] == 1, nil
}

// Unregister removes the connection and all of its memberships. It reports
// whether the connection was registered and whether it was the user's last.
// Unregistering an unknown connection is a no-op.
func (r *Registry) Unregister(conn *Connection) (removed, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn.ID()]; !ok {
		return false, false
	}
	for channel := range r.memberships[conn.ID()] {
		r.unsubscribeLocked(conn.ID(), channel)
	}
	delete(r.memberships, conn.ID())
	delete(r.conns, conn.ID())

	userID := conn.Principal().UserID
	r.byUser[userID]--
	if r.byUser[userID] <= 0 {
		delete(r.byUser, userID)
		last = true
	}
	conn.close()
	return true, last
}

// Subscribe adds the connection to channel. Connections that are not
// registered are ignored and false is returned.
func (r *Registry) Subscribe(conn *Connection, channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn.ID()]; !ok {
		return false
	}
	r.subscribeLocked(conn, channel)
	return true
}

// Unsubscribe removes the connection from channel.
func (r *Registry) Unsubscribe(conn *Connection, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribeLocked(conn.ID(), channel)
}

// Subscribers returns a snapshot of the connections subscribed to channel.
func (r *Registry) Subscribers(channel string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.channels[channel]
	out := make([]*Connection, 0, len(members))
	for _, conn := range members {
		out = append(out, conn)
	}
	return out
}

// Channels returns the channels the connection is subscribed to, sorted.
func (r *Registry) Channels(conn *Connection) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.memberships[conn.ID()]))
	for channel := range r.memberships[conn.ID()] {
		out = append(out, channel)
	}
	sort.Strings(out)
	return out
}

// ListOnline returns the distinct principals with at least one live
// connection, ordered by user id.
func (r *Registry) ListOnline() []application.Principal {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]application.Principal, len(r.byUser))
	for _, conn := range r.conns {
		p := conn.Principal()
		seen[p.UserID] = p
	}
	out := make([]application.Principal, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Close disconnects every connection, rejects further registrations and
// reports how many connections were dropped.
func (r *Registry) Close() int {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.closed = true
	r.conns = make(map[string]*Connection)
	r.channels = make(map[string]map[string]*Connection)
	r.memberships = make(map[string]map[string]struct{})
	r.byUser = make(map[string]int)
	r.mu.Unlock()

	for _, conn := range conns {
		conn.close()
	}
	return len(conns)
}

func (r *Registry) subscribeLocked(conn *Connection, channel string) {
	members, ok := r.channels[channel]
	if !ok {
		members = make(map[string]*Connection)
		r.channels[channel] = members
	}
	members[conn.ID()] = conn
	r.memberships[conn.ID()][channel] = struct{}{}
}

func (r *Registry) unsubscribeLocked(connID, channel string) {
	if members, ok := r.channels[channel]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.channels, channel)
		}
	}
	if joined, ok := r.memberships[connID]; ok {
		delete(joined, channel)
	}
}
