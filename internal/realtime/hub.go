package realtime

import (
	"sync"

	"github.com/MarcoPoloResearchLab/whiteboard/backend/internal/rooms"
	"go.uber.org/zap"
)

// Connection is one live client transport. Send must not block; a transport that cannot
// accept a frame reports an error and is expected to close itself.
type Connection interface {
	ID() string
	Send(frame []byte) error
}

// Hub is the table of live connections and the rooms.Publisher that delivers notices to them.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]Connection
	logger      *zap.Logger
}

// NewHub constructs an empty Hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		connections: make(map[string]Connection),
		logger:      logger,
	}
}

// Register adds a connection. A connection registered under an existing id replaces it.
func (h *Hub) Register(connection Connection) {
	h.mu.Lock()
	h.connections[connection.ID()] = connection
	h.mu.Unlock()
}

// Unregister removes the connection with the given id.
func (h *Hub) Unregister(sessionID string) {
	h.mu.Lock()
	delete(h.connections, sessionID)
	h.mu.Unlock()
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Publish encodes the notice once and sends it to each recipient. A failed send is logged and
// does not stop delivery to the remaining recipients.
func (h *Hub) Publish(notice rooms.Notice) {
	recipients := notice.Recipients()
	if len(recipients) == 0 {
		return
	}
	frame, err := encodeFrame(string(notice.Kind), notice.Body)
	if err != nil {
		h.logger.Error("notice encoding failed",
			zap.String("room_id", notice.RoomID),
			zap.String("event", string(notice.Kind)),
			zap.Error(err))
		return
	}
	for _, sessionID := range recipients {
		h.deliver(sessionID, frame, notice.RoomID, string(notice.Kind))
	}
}

// SendTo encodes and unicasts a single event outside of any room notice.
func (h *Hub) SendTo(sessionID string, kind EventKind, payload any) {
	frame, err := encodeFrame(string(kind), payload)
	if err != nil {
		h.logger.Error("event encoding failed",
			zap.String("session_id", sessionID),
			zap.String("event", string(kind)),
			zap.Error(err))
		return
	}
	h.deliver(sessionID, frame, "", string(kind))
}

func (h *Hub) deliver(sessionID string, frame []byte, roomID, event string) {
	h.mu.RLock()
	connection, ok := h.connections[sessionID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if err := connection.Send(frame); err != nil {
		h.logger.Warn("event delivery failed",
			zap.String("session_id", sessionID),
			zap.String("room_id", roomID),
			zap.String("event", event),
			zap.Error(err))
	}
}
