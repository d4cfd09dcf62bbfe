package rooms

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/whiteboard/backend/internal/canvas"
	"go.uber.org/zap"
)

const (
	maxCreateAttempts      = 8
	defaultRetireQueueSize = 256
	retireTimeout          = 5 * time.Second
)

var noOpLogger = zap.NewNop()

// RegistryConfig describes the dependencies of a Registry.
type RegistryConfig struct {
	Ledger     IDLedger
	Publisher  Publisher
	Clock      func() time.Time
	RoomIDs    canvas.IDProvider
	ElementIDs canvas.IDProvider
	// MaxElements bounds every room's element log; 0 leaves logs unbounded.
	MaxElements     int
	RetireQueueSize int
	Logger          *zap.Logger
}

// CreateRequest carries the validated-on-entry inputs for a new room.
type CreateRequest struct {
	Name       string
	Visibility string
	CreatorID  string
}

// Registry is the process-wide table of live rooms.
//
// The registry lock is never held while a room lock is taken; rooms call back into the
// registry only after releasing their own lock.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	sequence uint64

	ledger      IDLedger
	publisher   Publisher
	clock       func() time.Time
	roomIDs     canvas.IDProvider
	elementIDs  canvas.IDProvider
	maxElements int
	logger      *zap.Logger

	retireMu     sync.Mutex
	retireClosed bool
	retireQueue  chan RoomRecord
	retireDone   chan struct{}
}

// NewRegistry validates the configuration and starts the retirement worker.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Publisher == nil {
		return nil, newServiceError(opRegistryNew, "missing_publisher", errMissingPublisher)
	}
	if cfg.Ledger == nil {
		return nil, newServiceError(opRegistryNew, "missing_ledger", errMissingLedger)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	roomIDs := cfg.RoomIDs
	if roomIDs == nil {
		roomIDs = NewRoomIDProvider()
	}
	elementIDs := cfg.ElementIDs
	if elementIDs == nil {
		elementIDs = canvas.NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	queueSize := cfg.RetireQueueSize
	if queueSize <= 0 {
		queueSize = defaultRetireQueueSize
	}
	maxElements := cfg.MaxElements
	if maxElements < 0 {
		maxElements = 0
	}

	registry := &Registry{
		rooms:       make(map[string]*Room),
		ledger:      cfg.Ledger,
		publisher:   cfg.Publisher,
		clock:       clock,
		roomIDs:     roomIDs,
		elementIDs:  elementIDs,
		maxElements: maxElements,
		logger:      logger,
		retireQueue: make(chan RoomRecord, queueSize),
		retireDone:  make(chan struct{}),
	}
	go registry.runRetirements()
	return registry, nil
}

// Create mints a fresh identifier, reserves it in the ledger and registers an empty room.
// The room becomes resolvable only after the reservation succeeded.
func (r *Registry) Create(ctx context.Context, request CreateRequest) (Summary, error) {
	name, err := NewRoomName(request.Name)
	if err != nil {
		return Summary{}, err
	}
	visibility, err := ParseVisibility(request.Visibility)
	if err != nil {
		return Summary{}, err
	}
	creatorID, err := normalizeCreatorID(request.CreatorID)
	if err != nil {
		return Summary{}, err
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Summary{}, newServiceError(opCreateRoom, "context_done", err)
		}

		roomID, err := r.roomIDs.NewID()
		if err != nil {
			r.logError(opCreateRoom, "id_generation_failed", err)
			return Summary{}, newServiceError(opCreateRoom, "id_generation_failed", err)
		}
		if r.isLive(roomID) {
			continue
		}

		createdAt := r.clock().UTC()
		reserved, err := r.ledger.Reserve(ctx, RoomRecord{
			RoomID:           roomID,
			Name:             name.String(),
			Visibility:       string(visibility),
			CreatorID:        creatorID,
			CreatedAtSeconds: createdAt.Unix(),
		})
		if err != nil {
			r.logError(opCreateRoom, "reserve_failed", err, zap.String("room_id", roomID))
			return Summary{}, newServiceError(opCreateRoom, "reserve_failed", err)
		}
		if !reserved {
			r.logger.Warn("room id already issued", zap.String("room_id", roomID), zap.Int("attempt", attempt+1))
			continue
		}

		room := r.register(roomID, name, visibility, creatorID, createdAt)
		if room == nil {
			continue
		}
		r.logger.Info("room created",
			zap.String("room_id", roomID),
			zap.String("visibility", string(visibility)))
		return room.Summary(), nil
	}

	r.logError(opCreateRoom, "id_space_exhausted", errIDSpaceExhausted, zap.Int("attempts", maxCreateAttempts))
	return Summary{}, newServiceError(opCreateRoom, "id_space_exhausted", errIDSpaceExhausted)
}

// Get resolves a live room.
func (r *Registry) Get(roomID string) (*Room, error) {
	r.mu.RLock()
	room, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok || room.State() == StateDestroyed {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// ListPublic returns summaries of live public rooms ordered by creation.
func (r *Registry) ListPublic() []Summary {
	candidates := r.liveRooms()
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].createdAt.Equal(candidates[j].createdAt) {
			return candidates[i].sequence < candidates[j].sequence
		}
		return candidates[i].createdAt.Before(candidates[j].createdAt)
	})

	summaries := make([]Summary, 0, len(candidates))
	for _, room := range candidates {
		if room.visibility != VisibilityPublic {
			continue
		}
		summary := room.Summary()
		if summary.State == StateDestroyed {
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

// Destroy removes a room regardless of its members. Later operations on the room
// report ErrRoomNotFound. It reports false when no live room had that identifier.
func (r *Registry) Destroy(roomID string) bool {
	r.mu.RLock()
	room, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	record, destroyed := room.destroy()
	r.forget(room)
	if destroyed {
		r.enqueueRetire(record)
	}
	return destroyed
}

// SweepUnclaimed destroys rooms that were created more than maxAge ago and never joined.
// It returns how many rooms were removed.
func (r *Registry) SweepUnclaimed(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	cutoff := r.clock().UTC().Add(-maxAge)
	swept := 0
	for _, room := range r.liveRooms() {
		record, destroyed := room.destroyIfUnclaimed(cutoff)
		if !destroyed {
			continue
		}
		r.forget(room)
		r.enqueueRetire(record)
		swept++
	}
	if swept > 0 {
		r.logger.Info("unclaimed rooms swept", zap.Int("count", swept))
	}
	return swept
}

// Count returns the number of registered rooms.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Close stops the retirement worker after draining queued records.
func (r *Registry) Close() {
	r.retireMu.Lock()
	if r.retireClosed {
		r.retireMu.Unlock()
		<-r.retireDone
		return
	}
	r.retireClosed = true
	close(r.retireQueue)
	r.retireMu.Unlock()
	<-r.retireDone
}

func (r *Registry) isLive(roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.rooms[roomID]
	return exists
}

func (r *Registry) register(roomID string, name RoomName, visibility Visibility, creatorID string, createdAt time.Time) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rooms[roomID]; exists {
		return nil
	}
	r.sequence++

	var room *Room
	room = newRoom(roomConfig{
		ID:          roomID,
		Name:        name,
		Visibility:  visibility,
		CreatorID:   creatorID,
		CreatedAt:   createdAt,
		Sequence:    r.sequence,
		Publisher:   r.publisher,
		Clock:       r.clock,
		IDProvider:  r.elementIDs,
		MaxElements: r.maxElements,
		Logger:      r.logger,
		OnDestroyed: func(record RoomRecord) {
			r.forget(room)
			r.enqueueRetire(record)
			r.logger.Info("room destroyed", zap.String("room_id", record.RoomID))
		},
	})
	r.rooms[roomID] = room
	return room
}

func (r *Registry) liveRooms() []*Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// forget drops the table entry only if it still points at room.
func (r *Registry) forget(room *Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.rooms[room.id]; ok && current == room {
		delete(r.rooms, room.id)
	}
}

func (r *Registry) enqueueRetire(record RoomRecord) {
	r.retireMu.Lock()
	defer r.retireMu.Unlock()
	if r.retireClosed {
		r.logger.Warn("room retirement dropped after close", zap.String("room_id", record.RoomID))
		return
	}
	select {
	case r.retireQueue <- record:
	default:
		r.logger.Warn("room retirement queue full", zap.String("room_id", record.RoomID))
	}
}

func (r *Registry) runRetirements() {
	defer close(r.retireDone)
	for record := range r.retireQueue {
		ctx, cancel := context.WithTimeout(context.Background(), retireTimeout)
		if err := r.ledger.Retire(ctx, record); err != nil {
			r.logError(opRetireRoom, "ledger_retire_failed", err, zap.String("room_id", record.RoomID))
		}
		cancel()
	}
}

func (r *Registry) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	r.logger.Error("room registry error", attrs...)
}
