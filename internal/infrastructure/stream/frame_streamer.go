package stream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"ndilive/internal/core/domain"
	"ndilive/internal/core/services"
	apperrors "ndilive/pkg/errors"
	"ndilive/pkg/tracing"
	"ndilive/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ClientObserver is told about stream clients coming and going.
type ClientObserver interface {
	StreamClientConnected()
	StreamClientDisconnected()
}

type Options struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration
	// MaxVideoFPS caps video events per connection. Zero means unlimited.
	MaxVideoFPS    float64
	AllowedOrigins []string
	BufferPolicy   domain.BufferPolicy
	Clients        ClientObserver
	Logger         *zap.SugaredLogger
}

func DefaultOptions() Options {
	return Options{
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		MaxVideoFPS:  5,
		BufferPolicy: domain.DefaultBufferPolicy(),
	}
}

// FrameStreamer serves frame events of a player over websockets.
type FrameStreamer struct {
	players  *services.PlayerRegistry
	upgrader websocket.Upgrader
	opts     Options
	logger   *zap.SugaredLogger

	mu          sync.RWMutex
	connections map[uuid.UUID]*websocket.Conn
}

func NewFrameStreamer(players *services.PlayerRegistry, opts Options) *FrameStreamer {
	def := DefaultOptions()
	if opts.PingInterval <= 0 {
		opts.PingInterval = def.PingInterval
	}
	if opts.PongTimeout <= opts.PingInterval {
		opts.PongTimeout = 2 * opts.PingInterval
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if opts.BufferPolicy == (domain.BufferPolicy{}) {
		opts.BufferPolicy = def.BufferPolicy
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}

	s := &FrameStreamer{
		players:     players,
		opts:        opts,
		logger:      opts.Logger,
		connections: make(map[uuid.UUID]*websocket.Conn),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin:     s.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}
	return s
}

func (s *FrameStreamer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// HandleFrames upgrades the request and streams events for the player
// named by the :name parameter until either side goes away.
func (s *FrameStreamer) HandleFrames(c *gin.Context) {
	name := c.Param("name")
	if err := validation.ValidateSourceName(name); err != nil {
		_ = c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	kinds, ok := domain.ParseCaptureKinds(c.Query("kinds"))
	if !ok || kinds.Empty() {
		_ = c.Error(apperrors.NewInvalidInputError("kinds must be a comma separated list of video, audio, metadata"))
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade failed", "source", name, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx, span := tracing.TraceFrameStream(ctx, c.Request.Context(), name, kinds.String())
	var sent, throttled, dropped uint64
	defer func() { tracing.EndFrameStream(span, sent, throttled, dropped) }()

	sub, err := s.players.ForName(name).Subscribe(ctx, kinds, s.opts.BufferPolicy)
	if err != nil {
		tracing.RecordError(ctx, err)
		s.logger.Warnw("frame stream subscribe failed", "source", name, "error", err)
		s.sendError(conn, err.Error())
		return
	}
	defer sub.Close()

	id := sub.ID()
	s.register(id, conn)
	defer s.unregister(id)

	s.logger.Infow("frame stream opened", "source", name, "subscription_id", id, "kinds", kinds.String(), "remote", c.ClientIP())
	sent, throttled = s.serve(conn, name, sub)
	dropped = sub.Dropped()
	s.logger.Infow("frame stream closed", "source", name, "subscription_id", id, "sent", sent, "throttled", throttled, "dropped", dropped)
}

func (s *FrameStreamer) serve(conn *websocket.Conn, name string, sub *services.Subscription) (sent, throttled uint64) {
	conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
		return nil
	})

	// the reader only services control frames and notices the close
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	var videoLimiter *rate.Limiter
	if s.opts.MaxVideoFPS > 0 {
		videoLimiter = rate.NewLimiter(rate.Limit(s.opts.MaxVideoFPS), 1)
	}

	pingTicker := time.NewTicker(s.opts.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case f, ok := <-sub.Frames():
			if !ok {
				return sent, throttled
			}
			if f.Type() == domain.FrameTypeVideo && videoLimiter != nil && !videoLimiter.Allow() {
				f.Release()
				throttled++
				continue
			}
			ev, ok := EventFromFrame(name, f)
			f.Release()
			if !ok {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debugw("frame event write failed", "source", name, "error", err)
				return sent, throttled
			}
			sent++

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Debugw("error sending ping", "source", name, "error", err)
				return sent, throttled
			}

		case err := <-readErr:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Infow("frame stream read error", "source", name, "error", err)
			}
			return sent, throttled
		}
	}
}

func (s *FrameStreamer) sendError(conn *websocket.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	if err := conn.WriteJSON(errorEvent{Type: "error", Message: message}); err != nil {
		s.logger.Debugw("error event write failed", "error", err)
	}
}

func (s *FrameStreamer) register(id uuid.UUID, conn *websocket.Conn) {
	s.mu.Lock()
	s.connections[id] = conn
	s.mu.Unlock()
	if s.opts.Clients != nil {
		s.opts.Clients.StreamClientConnected()
	}
}

func (s *FrameStreamer) unregister(id uuid.UUID) {
	s.mu.Lock()
	delete(s.connections, id)
	s.mu.Unlock()
	if s.opts.Clients != nil {
		s.opts.Clients.StreamClientDisconnected()
	}
}

// Connections returns the number of open frame streams.
func (s *FrameStreamer) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// Close sends a close message to every open stream. Handlers then return
// as their reads fail.
func (s *FrameStreamer) Close() {
	s.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(s.connections))
	for _, conn := range s.connections {
		conns = append(conns, conn)
	}
	s.mu.RUnlock()

	deadline := time.Now().Add(s.opts.WriteTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	}
}
