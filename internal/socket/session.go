package socket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/example/shiftline/internal/application"
	"github.com/example/shiftline/internal/realtime"
)

var errSendBufferFull = errors.New("send buffer full")

const (
	eventJoinChat    = "join-chat"
	eventLeaveChat   = "leave-chat"
	eventSendMessage = "send-message"
)

type chatRef struct {
	ChatID string `json:"chatId"`
}

type sendMessageData struct {
	ChatID      string                   `json:"chatId"`
	Content     string                   `json:"content"`
	Type        application.MessageType  `json:"type"`
	Attachments []application.Attachment `json:"attachments"`
}

// session owns one websocket. Inbound frames are handled sequentially by
// readLoop; outbound frames are queued on send and written by writeLoop.
type session struct {
	gateway *Gateway
	ws      *websocket.Conn
	conn    *realtime.Connection
	logger  *slog.Logger
	limiter *rate.Limiter

	mu     sync.Mutex
	send   chan []byte
	done   chan struct{}
	closed bool
}

func newSession(g *Gateway, ws *websocket.Conn, logger *slog.Logger) *session {
	return &session{
		gateway: g,
		ws:      ws,
		logger:  logger,
		limiter: rate.NewLimiter(g.opts.FrameRate, g.opts.FrameBurst),
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
	}
}

// Send queues a frame without blocking. A full buffer drops the frame.
func (s *session) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return realtime.ErrConnectionClosed
	}
	select {
	case s.send <- frame:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close stops the writer, which then closes the socket.
func (s *session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

func (s *session) run(ctx context.Context) {
	router := s.gateway.router
	if err := router.Connect(ctx, s.conn); err != nil {
		s.logger.WarnContext(ctx, "connection rejected", "error", err)
		_ = s.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "shutting down"),
			time.Now().Add(writeWait))
		_ = s.ws.Close()
		return
	}
	s.logger.InfoContext(ctx, "connection opened")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop()
	}()

	s.readLoop(ctx)
	router.Disconnect(ctx, s.conn)
	<-writerDone
	s.logger.InfoContext(ctx, "connection closed")
}

func (s *session) readLoop(ctx context.Context) {
	s.ws.SetReadLimit(maxFrameBytes)
	_ = s.ws.SetReadDeadline(time.Now().Add(pongWait))
	s.ws.SetPongHandler(func(string) error {
		return s.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, raw, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.DebugContext(ctx, "read failed", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if !s.limiter.Allow() {
			s.sendError(ctx, errRateLimited)
			continue
		}

		frame, err := realtime.DecodeFrame(raw)
		if err != nil {
			s.sendError(ctx, errInvalidFrame)
			continue
		}
		if err := s.dispatch(ctx, frame); err != nil {
			s.sendError(ctx, err)
		}
	}
}

func (s *session) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = s.ws.Close()
	}()

	for {
		select {
		case <-s.done:
			_ = s.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case frame := <-s.send:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *session) dispatch(ctx context.Context, frame realtime.Frame) error {
	switch frame.Event {
	case eventJoinChat:
		var ref chatRef
		if err := decodeData(frame.Data, &ref); err != nil {
			return err
		}
		if !s.gateway.router.Join(s.conn, ref.ChatID) {
			return errMissingChatID
		}
		return nil
	case eventLeaveChat:
		var ref chatRef
		if err := decodeData(frame.Data, &ref); err != nil {
			return err
		}
		s.gateway.router.Leave(s.conn, ref.ChatID)
		return nil
	case eventSendMessage:
		var data sendMessageData
		if err := decodeData(frame.Data, &data); err != nil {
			return err
		}
		_, err := s.gateway.chats.SendMessage(ctx, application.SendMessageParams{
			Principal: s.conn.Principal(),
			ChatID:    data.ChatID,
			Input: application.MessageInput{
				Content:     data.Content,
				Type:        data.Type,
				Attachments: data.Attachments,
			},
		})
		return err
	default:
		return errUnknownEvent
	}
}

func (s *session) sendError(ctx context.Context, err error) {
	event := errorEvent(err)
	if event.Code == codeInternal {
		s.logger.ErrorContext(ctx, "event handling failed", "error", err)
	}
	if sendErr := s.conn.Send(application.EventError, event); sendErr != nil {
		s.logger.DebugContext(ctx, "failed to queue error event", "error", sendErr)
	}
}

func decodeData(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return errInvalidFrame
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return errInvalidFrame
	}
	return nil
}
