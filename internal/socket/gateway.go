package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/example/shiftline/internal/application"
	"github.com/example/shiftline/internal/logging"
	"github.com/example/shiftline/internal/realtime"
)

const (
	maxFrameBytes  = 64 << 10
	sendBufferSize = 64
	pongWait       = 45 * time.Second
	pingInterval   = 20 * time.Second
	writeWait      = 10 * time.Second

	DefaultHandshakeTimeout = 5 * time.Second
	DefaultFrameRate        = rate.Limit(5)
	DefaultFrameBurst       = 10
)

// Authenticator resolves a bearer token to a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (application.Principal, error)
}

// MessageSender persists and fans out a chat message.
type MessageSender interface {
	SendMessage(ctx context.Context, params application.SendMessageParams) (application.Message, error)
}

// Options tune the gateway. Zero values fall back to the defaults.
type Options struct {
	HandshakeTimeout time.Duration
	FrameRate        rate.Limit
	FrameBurst       int
	AllowedOrigins   []string
	IDGenerator      func() string
}

// Gateway upgrades authenticated HTTP requests to websocket sessions.
type Gateway struct {
	auth     Authenticator
	chats    MessageSender
	router   *realtime.Router
	logger   *slog.Logger
	opts     Options
	upgrader websocket.Upgrader
}

// NewGateway wires the gateway to the auth service, the chat service and the router.
func NewGateway(auth Authenticator, chats MessageSender, router *realtime.Router, opts Options, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = DefaultFrameRate
	}
	if opts.FrameBurst <= 0 {
		opts.FrameBurst = DefaultFrameBurst
	}
	if opts.IDGenerator == nil {
		opts.IDGenerator = uuid.NewString
	}

	g := &Gateway{
		auth:   auth,
		chats:  chats,
		router: router,
		logger: logger.With("component", "socket"),
		opts:   opts,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

// ServeHTTP authenticates the handshake and runs the session until the peer goes away.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal, err := g.authenticate(r)
	if err != nil {
		status := http.StatusUnauthorized
		message := "認証が必要です。"
		if !errors.Is(err, application.ErrUnauthenticated) {
			status = http.StatusServiceUnavailable
			message = "認証処理を完了できませんでした。"
		}
		g.logger.WarnContext(r.Context(), "handshake rejected", "status", status, "error", err)
		writeHandshakeError(w, status, message)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	id := g.opts.IDGenerator()
	logger := g.logger.With(
		"connection_id", id,
		"user_id", principal.UserID,
		"company_id", principal.CompanyID,
	)
	ctx := logging.ContextWithLogger(context.WithoutCancel(r.Context()), logger)

	s := newSession(g, ws, logger)
	s.conn = realtime.NewConnection(id, principal, s)
	s.run(ctx)
}

func (g *Gateway) authenticate(r *http.Request) (application.Principal, error) {
	token := bearerToken(r)
	if token == "" {
		return application.Principal{}, application.ErrUnauthenticated
	}
	ctx, cancel := context.WithTimeout(r.Context(), g.opts.HandshakeTimeout)
	defer cancel()

	type result struct {
		principal application.Principal
		err       error
	}
	done := make(chan result, 1)
	go func() {
		principal, err := g.auth.Authenticate(ctx, token)
		done <- result{principal, err}
	}()

	select {
	case res := <-done:
		return res.principal, res.err
	case <-ctx.Done():
		return application.Principal{}, fmt.Errorf("handshake authentication: %w", ctx.Err())
	}
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(g.opts.AllowedOrigins, origin)
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func writeHandshakeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
