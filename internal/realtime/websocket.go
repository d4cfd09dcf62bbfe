package realtime

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultSendBuffer        = 256
	defaultMaxMessageBytes   = 1024 * 1024
	defaultMessagesPerSecond = 100
	defaultMessageBurst      = 200
	defaultWriteWait         = 10 * time.Second
	defaultPongWait          = 60 * time.Second
	maxRateViolations        = 1000
)

var (
	errConnectionClosed = errors.New("realtime: connection closed")
	errSendBufferFull   = errors.New("realtime: send buffer full")
	errMissingRouter    = errors.New("router is required")
)

// TransportConfig tunes the websocket transport.
type TransportConfig struct {
	Router *Router
	Logger *zap.Logger
	// AllowedOrigins lists accepted Origin headers; "*" or an empty list accepts any origin.
	AllowedOrigins    []string
	SendBuffer        int
	MaxMessageBytes   int64
	MessagesPerSecond float64
	MessageBurst      int
	WriteWait         time.Duration
	PongWait          time.Duration
	// PingInterval must be shorter than PongWait; zero derives it from PongWait.
	PingInterval time.Duration
}

// Transport upgrades HTTP requests to websocket sessions and pumps frames to and from the Router.
type Transport struct {
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader

	sendBuffer        int
	maxMessageBytes   int64
	messagesPerSecond rate.Limit
	messageBurst      int
	writeWait         time.Duration
	pongWait          time.Duration
	pingInterval      time.Duration
}

// NewTransport applies defaults and returns a Transport.
func NewTransport(cfg TransportConfig) (*Transport, error) {
	if cfg.Router == nil {
		return nil, errMissingRouter
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &Transport{
		router:            cfg.Router,
		logger:            logger,
		sendBuffer:        positiveOr(cfg.SendBuffer, defaultSendBuffer),
		maxMessageBytes:   cfg.MaxMessageBytes,
		messagesPerSecond: rate.Limit(cfg.MessagesPerSecond),
		messageBurst:      positiveOr(cfg.MessageBurst, defaultMessageBurst),
		writeWait:         cfg.WriteWait,
		pongWait:          cfg.PongWait,
		pingInterval:      cfg.PingInterval,
	}
	if transport.maxMessageBytes <= 0 {
		transport.maxMessageBytes = defaultMaxMessageBytes
	}
	if cfg.MessagesPerSecond <= 0 {
		transport.messagesPerSecond = defaultMessagesPerSecond
	}
	if transport.writeWait <= 0 {
		transport.writeWait = defaultWriteWait
	}
	if transport.pongWait <= 0 {
		transport.pongWait = defaultPongWait
	}
	if transport.pingInterval <= 0 || transport.pingInterval >= transport.pongWait {
		transport.pingInterval = (transport.pongWait * 9) / 10
	}

	transport.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return transport, nil
}

// ServeHTTP upgrades the request and runs the session until the socket closes.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	session := &wsSession{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan []byte, t.sendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(t.messagesPerSecond, t.messageBurst),
	}
	t.router.Connect(session)
	t.logger.Info("websocket session opened",
		zap.String("session_id", session.id),
		zap.String("remote_addr", conn.RemoteAddr().String()))

	go t.writePump(session)
	t.readPump(session)
}

func (t *Transport) readPump(session *wsSession) {
	defer func() {
		t.router.Disconnect(session.id)
		session.shutdown()
		_ = session.conn.Close()
		t.logger.Info("websocket session closed", zap.String("session_id", session.id))
	}()

	session.conn.SetReadLimit(t.maxMessageBytes)
	_ = session.conn.SetReadDeadline(time.Now().Add(t.pongWait))
	session.conn.SetPongHandler(func(string) error {
		return session.conn.SetReadDeadline(time.Now().Add(t.pongWait))
	})

	violations := 0
	for {
		messageType, frame, err := session.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				t.logger.Warn("websocket read failed", zap.String("session_id", session.id), zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if !session.limiter.Allow() {
			violations++
			if violations%100 == 1 {
				t.logger.Warn("websocket rate limit exceeded",
					zap.String("session_id", session.id),
					zap.Int("violations", violations))
			}
			if violations > maxRateViolations {
				t.logger.Warn("websocket session dropped for rate limit violations", zap.String("session_id", session.id))
				return
			}
			continue
		}
		t.router.DispatchFrame(session.id, frame)
	}
}

func (t *Transport) writePump(session *wsSession) {
	ticker := time.NewTicker(t.pingInterval)
	defer func() {
		ticker.Stop()
		_ = session.conn.Close()
	}()

	for {
		select {
		case frame := <-session.send:
			_ = session.conn.SetWriteDeadline(time.Now().Add(t.writeWait))
			if err := session.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				session.shutdown()
				return
			}
		case <-ticker.C:
			_ = session.conn.SetWriteDeadline(time.Now().Add(t.writeWait))
			if err := session.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				session.shutdown()
				return
			}
		case <-session.done:
			_ = session.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(t.writeWait))
			return
		}
	}
}

// wsSession adapts a websocket to Connection. Frames queue in a bounded buffer drained by
// the write pump; a full buffer closes the session.
type wsSession struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
}

func (s *wsSession) ID() string {
	return s.id
}

func (s *wsSession) Send(frame []byte) error {
	select {
	case <-s.done:
		return errConnectionClosed
	default:
	}
	select {
	case s.send <- frame:
		return nil
	default:
		s.shutdown()
		return errSendBufferFull
	}
}

func (s *wsSession) shutdown() {
	s.once.Do(func() {
		close(s.done)
	})
}

func originChecker(allowed []string) func(*http.Request) bool {
	origins := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		trimmed := strings.TrimRight(strings.TrimSpace(origin), "/")
		if trimmed == "*" {
			return func(*http.Request) bool { return true }
		}
		if trimmed != "" {
			origins[trimmed] = struct{}{}
		}
	}
	if len(origins) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := origins[strings.TrimRight(origin, "/")]
		return ok
	}
}

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}
