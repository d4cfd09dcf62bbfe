package realtime

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/whiteboard/backend/internal/canvas"
	"github.com/MarcoPoloResearchLab/whiteboard/backend/internal/rooms"
	"go.uber.org/zap"
)

var (
	errMissingRegistry = errors.New("room registry is required")
	errMissingHub      = errors.New("hub is required")
)

// RouterConfig describes the dependencies of a Router.
type RouterConfig struct {
	Registry *rooms.Registry
	Hub      *Hub
	Logger   *zap.Logger
}

// eventHandler applies one inbound event. bound is nil for handlers that do not need a room.
type eventHandler struct {
	requiresRoom bool
	handle       func(sessionID string, bound *rooms.Room, payload json.RawMessage) error
}

// Router binds sessions to rooms and turns inbound events into room operations.
// Events of one session must be dispatched sequentially by its transport.
type Router struct {
	registry *rooms.Registry
	hub      *Hub
	logger   *zap.Logger
	handlers map[EventKind]eventHandler

	mu       sync.Mutex
	bindings map[string]*rooms.Room
}

// NewRouter validates the configuration and builds the event table.
func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.Registry == nil {
		return nil, errMissingRegistry
	}
	if cfg.Hub == nil {
		return nil, errMissingHub
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	router := &Router{
		registry: cfg.Registry,
		hub:      cfg.Hub,
		logger:   logger,
		bindings: make(map[string]*rooms.Room),
	}
	router.handlers = map[EventKind]eventHandler{
		EventJoinRoom:     {handle: router.handleJoinRoom},
		EventStrokeBegin:  {requiresRoom: true, handle: router.handleStrokeSegment(EventStrokeBegin)},
		EventStrokePoint:  {requiresRoom: true, handle: router.handleStrokeSegment(EventStrokePoint)},
		EventStrokeCommit: {requiresRoom: true, handle: router.handleStrokeCommit},
		EventShapeCommit:  {requiresRoom: true, handle: router.handleShapeCommit},
		EventTextCommit:   {requiresRoom: true, handle: router.handleTextCommit},
		EventEraseRelay:   {requiresRoom: true, handle: router.handleEraseRelay},
		EventCursorMove:   {requiresRoom: true, handle: router.handleCursorMove},
		EventUndo:         {requiresRoom: true, handle: router.handleUndo},
		EventClearCanvas:  {requiresRoom: true, handle: router.handleClearCanvas},
		EventChatSend:     {requiresRoom: true, handle: router.handleChatSend},
	}
	return router, nil
}

// Connect registers a live connection with no room bound.
func (r *Router) Connect(connection Connection) {
	r.hub.Register(connection)
	r.logger.Debug("session connected", zap.String("session_id", connection.ID()))
}

// Disconnect leaves the bound room, if any, and forgets the session.
func (r *Router) Disconnect(sessionID string) {
	if bound := r.unbind(sessionID); bound != nil {
		r.leave(sessionID, bound)
	}
	r.hub.Unregister(sessionID)
	r.logger.Debug("session disconnected", zap.String("session_id", sessionID))
}

// DispatchFrame decodes a raw client frame and dispatches it.
func (r *Router) DispatchFrame(sessionID string, frame []byte) {
	inbound, err := DecodeInbound(frame)
	if err != nil {
		r.logger.Debug("inbound frame dropped", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	r.Dispatch(sessionID, inbound)
}

// Dispatch applies one inbound event for sessionID. Unknown kinds, malformed payloads and
// room-scoped events without a bound room are dropped.
func (r *Router) Dispatch(sessionID string, inbound Inbound) {
	handler, ok := r.handlers[inbound.Type]
	if !ok {
		r.logger.Debug("unknown event dropped",
			zap.String("session_id", sessionID),
			zap.String("event", string(inbound.Type)))
		return
	}

	bound := r.boundRoom(sessionID)
	if handler.requiresRoom && bound == nil {
		return
	}

	err := handler.handle(sessionID, bound, inbound.Payload)
	switch {
	case err == nil:
	case errors.Is(err, rooms.ErrRoomNotFound):
		// The bound room was destroyed underneath the session.
		if bound != nil {
			r.unbindIf(sessionID, bound)
		}
	case errors.Is(err, rooms.ErrNotMember):
	default:
		r.logger.Debug("inbound event rejected",
			zap.String("session_id", sessionID),
			zap.String("event", string(inbound.Type)),
			zap.Error(err))
	}
}

// SessionCount returns the number of connected sessions.
func (r *Router) SessionCount() int {
	return r.hub.Count()
}

// BoundRoomID returns the identifier of the room sessionID is currently in.
func (r *Router) BoundRoomID(sessionID string) (string, bool) {
	bound := r.boundRoom(sessionID)
	if bound == nil {
		return "", false
	}
	return bound.ID(), true
}

func (r *Router) handleJoinRoom(sessionID string, bound *rooms.Room, raw json.RawMessage) error {
	var payload joinRoomPayload
	if err := decodePayload(raw, &payload); err != nil {
		return err
	}
	roomID := strings.TrimSpace(payload.RoomID)

	target, err := r.registry.Get(roomID)
	if err != nil {
		r.hub.SendTo(sessionID, EventRoomNotFound, roomNotFoundBody{RoomID: roomID})
		return nil
	}

	// The previous room is left before the target is joined, so a target destroyed in between
	// leaves the session unbound and it receives room-not-found.
	if bound != nil && bound != target {
		r.unbindIf(sessionID, bound)
		r.leave(sessionID, bound)
	}

	data := rooms.NewMemberData(payload.MemberData.DisplayName, payload.MemberData.DisplayColor)
	if _, _, err := target.Join(sessionID, data); err != nil {
		if errors.Is(err, rooms.ErrRoomNotFound) {
			r.unbindIf(sessionID, target)
			r.hub.SendTo(sessionID, EventRoomNotFound, roomNotFoundBody{RoomID: roomID})
			return nil
		}
		return err
	}
	r.bind(sessionID, target)
	return nil
}

func (r *Router) handleStrokeSegment(kind EventKind) func(string, *rooms.Room, json.RawMessage) error {
	return func(sessionID string, bound *rooms.Room, raw json.RawMessage) error {
		var payload strokeSegmentPayload
		if err := decodePayload(raw, &payload); err != nil {
			return err
		}
		return bound.Relay(sessionID, rooms.NoticeKind(kind), strokeRelayBody{
			AuthorID:             sessionID,
			strokeSegmentPayload: payload,
		})
	}
}

func (r *Router) handleEraseRelay(sessionID string, bound *rooms.Room, raw json.RawMessage) error {
	var payload eraseRelayPayload
	if err := decodePayload(raw, &payload); err != nil {
		return err
	}
	return bound.Relay(sessionID, rooms.NoticeKind(EventEraseRelay), eraseRelayBody{
		AuthorID:          sessionID,
		eraseRelayPayload: payload,
	})
}

func (r *Router) handleStrokeCommit(sessionID string, bound *rooms.Room, raw json.RawMessage) error {
	var payload strokeCommitPayload
	if err := decodePayload(raw, &payload); err != nil {
		return err
	}
	return r.commit(sessionID, bound, payload.build)
}

func (r *Router) handleShapeCommit(sessionID string, bound *rooms.Room, raw json.RawMessage) error {
	var payload shapeCommitPayload
	if err := decodePayload(raw, &payload); err != nil {
		return err
	}
	return r.commit(sessionID, bound, payload.build)
}

func (r *Router) handleTextCommit(sessionID string, bound *rooms.Room, raw json.RawMessage) error {
	var payload textCommitPayload
	if err := decodePayload(raw, &payload); err != nil {
		return err
	}
	return r.commit(sessionID, bound, payload.build)
}

func (r *Router) commit(sessionID string, bound *rooms.Room, build func() (canvas.Payload, error)) error {
	payload, err := build()
	if err != nil {
		return err
	}
	_, err = bound.AddElement(sessionID, payload)
	return err
}

func (r *Router) handleCursorMove(sessionID string, bound *rooms.Room, raw json.RawMessage) error {
	var payload cursorPayload
	if err := decodePayload(raw, &payload); err != nil {
		return err
	}
	return bound.SetCursor(sessionID, payload.cursor())
}

func (r *Router) handleUndo(sessionID string, bound *rooms.Room, _ json.RawMessage) error {
	_, _, err := bound.Undo(sessionID)
	return err
}

func (r *Router) handleClearCanvas(sessionID string, bound *rooms.Room, _ json.RawMessage) error {
	return bound.ClearCanvas(sessionID)
}

func (r *Router) handleChatSend(sessionID string, bound *rooms.Room, raw json.RawMessage) error {
	var payload chatSendPayload
	if err := decodePayload(raw, &payload); err != nil {
		return err
	}
	_, err := bound.RecordMessage(sessionID, payload.Text)
	return err
}

func (r *Router) leave(sessionID string, room *rooms.Room) {
	_, destroyed, err := room.Leave(sessionID)
	if err != nil {
		if !errors.Is(err, rooms.ErrRoomNotFound) && !errors.Is(err, rooms.ErrNotMember) {
			r.logger.Warn("leave failed",
				zap.String("session_id", sessionID),
				zap.String("room_id", room.ID()),
				zap.Error(err))
		}
		return
	}
	if destroyed {
		r.logger.Debug("last member left", zap.String("room_id", room.ID()))
	}
}

func (r *Router) boundRoom(sessionID string) *rooms.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bindings[sessionID]
}

func (r *Router) bind(sessionID string, room *rooms.Room) {
	r.mu.Lock()
	r.bindings[sessionID] = room
	r.mu.Unlock()
}

func (r *Router) unbind(sessionID string) *rooms.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	bound := r.bindings[sessionID]
	delete(r.bindings, sessionID)
	return bound
}

func (r *Router) unbindIf(sessionID string, room *rooms.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bindings[sessionID] == room {
		delete(r.bindings, sessionID)
	}
}
