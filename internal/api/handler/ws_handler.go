package handler

import (
	"Huddle/internal/api/dto"
	"Huddle/internal/api/middleware"
	"Huddle/internal/pkg/response"
	"Huddle/internal/service"
	"context"
	"errors"
	log "log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxCommandSize = 64 << 10
	sinkBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WsHandler runs one chat session per socket: commands come in as JSON
// frames, session events and command acks go out.
type WsHandler struct {
	sessions *service.SessionManager
}

func NewWsHandler(sessions *service.SessionManager) *WsHandler {
	return &WsHandler{sessions: sessions}
}

func (s *WsHandler) Connect(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)
	if userID == "" {
		response.Error(c, service.UnauthorizedError)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.ErrorContext(c.Request.Context(), "WS upgrade failed", "err", err)
		return
	}

	// the request context ends with the handler, the socket may outlive it
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	sink := newSocketSink(ctx, sinkBuffer)
	sess, err := s.sessions.Open(ctx, userID, sink)
	if err != nil {
		code, msg := response.Describe(err)
		_ = conn.WriteJSON(dto.Ack{Type: "error", Code: code, Message: msg})
		_ = conn.Close()
		return
	}
	log.InfoContext(ctx, "WS session opened", "user", userID)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer func() { _ = conn.Close() }()
		return s.writeLoop(gctx, conn, sink)
	})
	g.Go(func() error {
		return s.readLoop(gctx, conn, sess, sink)
	})
	err = g.Wait()

	s.sessions.Release(context.WithoutCancel(ctx), sess)
	if err != nil && !isNormalClose(err) {
		log.WarnContext(ctx, "WS session ended", "user", userID, "err", err)
		return
	}
	log.InfoContext(ctx, "WS session closed", "user", userID)
}

func (s *WsHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *service.Session, sink *socketSink) error {
	conn.SetReadLimit(maxCommandSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var cmd dto.Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			sink.send(ackFor(ctx, cmd, nil, service.ErrParamInvalid))
			continue
		}
		data, err := dispatch(sess, cmd)
		sink.send(ackFor(ctx, cmd, data, err))
	}
}

func (s *WsHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sink *socketSink) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(frame any) error {
		payload, err := json.Marshal(frame)
		if err != nil {
			log.ErrorContext(ctx, "WS frame encode failed", "err", err)
			return nil
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, payload)
	}

	for {
		if frame, ok := sink.urgentFrame(); ok {
			if err := write(frame); err != nil {
				return err
			}
			continue
		}
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return nil
		case frame := <-sink.urgent:
			if err := write(frame); err != nil {
				return err
			}
		case frame := <-sink.state:
			if err := write(frame); err != nil {
				return err
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

func ackFor(ctx context.Context, cmd dto.Command, data any, err error) dto.Ack {
	if err == nil {
		return dto.Ack{Type: "ack", ID: cmd.ID, Code: response.Ok, Message: "success", Data: data}
	}
	code, msg := response.Describe(err)
	if code == response.InternalServerError {
		log.ErrorContext(ctx, "WS command failed", "cmd", cmd.Type, "err", err)
	}
	return dto.Ack{Type: "ack", ID: cmd.ID, Code: code, Message: msg}
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, context.Canceled)
}

// socketSink queues frames for the write loop. Emit runs on store callback
// goroutines and never blocks. State events carry a full snapshot, so a
// dropped one is repaired by the next. One-shot events and acks have their
// own queue, which the write loop drains first.
type socketSink struct {
	ctx    context.Context
	state  chan any
	urgent chan any
}

func newSocketSink(ctx context.Context, size int) *socketSink {
	return &socketSink{
		ctx:    ctx,
		state:  make(chan any, size),
		urgent: make(chan any, size/4+1),
	}
}

func oneShot(t service.EventType) bool {
	switch t {
	case service.EventNudge, service.EventShake, service.EventVibrate, service.EventSound,
		service.EventNotification, service.EventAlert:
		return true
	}
	return false
}

func (s *socketSink) Emit(e service.Event) {
	if oneShot(e.Type) {
		s.push(s.urgent, e)
		return
	}
	s.push(s.state, e)
}

// send queues a command ack.
func (s *socketSink) send(frame any) {
	s.push(s.urgent, frame)
}

func (s *socketSink) push(q chan any, frame any) {
	if s.ctx.Err() != nil {
		return
	}
	select {
	case q <- frame:
	default:
		log.WarnContext(s.ctx, "WS send queue full, frame dropped", "urgent", q == s.urgent)
	}
}

func (s *socketSink) urgentFrame() (any, bool) {
	select {
	case frame := <-s.urgent:
		return frame, true
	default:
		return nil, false
	}
}

var _ service.EventSink = (*socketSink)(nil)
