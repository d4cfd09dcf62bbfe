package rooms

import (
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/whiteboard/backend/internal/canvas"
	"go.uber.org/zap"
)

// Room is one collaborative canvas: identity, member table and element log.
// Every operation runs under the room mutex and publishes its notices before releasing it,
// so all members observe changes in the order they were applied.
type Room struct {
	id         string
	name       string
	visibility Visibility
	creatorID  string
	createdAt  time.Time
	sequence   uint64

	mu        sync.Mutex
	state     State
	members   map[string]*Member
	log       *canvas.Log
	publisher Publisher
	clock     func() time.Time
	ids       canvas.IDProvider
	logger    *zap.Logger

	// onDestroyed runs after the lock is released when the last member leaves.
	onDestroyed func(record RoomRecord)
}

type roomConfig struct {
	ID          string
	Name        RoomName
	Visibility  Visibility
	CreatorID   string
	CreatedAt   time.Time
	Sequence    uint64
	Publisher   Publisher
	Clock       func() time.Time
	IDProvider  canvas.IDProvider
	MaxElements int
	Logger      *zap.Logger
	OnDestroyed func(record RoomRecord)
}

func newRoom(cfg roomConfig) *Room {
	return &Room{
		id:         cfg.ID,
		name:       cfg.Name.String(),
		visibility: cfg.Visibility,
		creatorID:  cfg.CreatorID,
		createdAt:  cfg.CreatedAt,
		sequence:   cfg.Sequence,
		state:      StateEmpty,
		members:    make(map[string]*Member),
		log: canvas.NewLog(canvas.LogConfig{
			IDProvider:  cfg.IDProvider,
			Clock:       cfg.Clock,
			MaxElements: cfg.MaxElements,
		}),
		publisher:   cfg.Publisher,
		clock:       cfg.Clock,
		ids:         cfg.IDProvider,
		logger:      cfg.Logger,
		onDestroyed: cfg.OnDestroyed,
	}
}

// ID returns the room identifier.
func (r *Room) ID() string {
	return r.id
}

// Name returns the room display name.
func (r *Room) Name() string {
	return r.name
}

// Visibility returns whether the room is listed publicly.
func (r *Room) Visibility() Visibility {
	return r.visibility
}

// CreatedAt returns the creation time.
func (r *Room) CreatedAt() time.Time {
	return r.createdAt
}

// Join registers sessionID as a member and returns the snapshot it should render.
// A current member re-joining only has its member data replaced; rejoined reports that case,
// in which no second snapshot is published.
func (r *Room) Join(sessionID string, data MemberData) (Snapshot, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateDestroyed {
		return Snapshot{}, false, ErrRoomNotFound
	}

	member, rejoined := r.members[sessionID]
	if rejoined {
		member.MemberData = data
	} else {
		r.members[sessionID] = &Member{
			ID:         sessionID,
			MemberData: data,
			JoinedAt:   r.clock().UTC(),
		}
	}
	r.state = StateActive

	snapshot := r.snapshotLocked()
	if !rejoined {
		r.publishLocked(NoticeSnapshot, sessionID, AudienceOrigin, snapshot)
	}
	r.publishLocked(NoticeMemberJoined, sessionID, AudienceOthers, MemberJoinedBody{
		MemberID:   sessionID,
		MemberData: data,
		Members:    snapshot.Members,
	})

	r.logger.Debug("member joined",
		zap.String("room_id", r.id),
		zap.String("session_id", sessionID),
		zap.Bool("rejoined", rejoined),
		zap.Int("members", len(r.members)))
	return snapshot, rejoined, nil
}

// Leave removes sessionID and returns the remaining member list. When the last member leaves
// the room is destroyed before Leave returns.
func (r *Room) Leave(sessionID string) ([]MemberView, bool, error) {
	r.mu.Lock()
	if r.state == StateDestroyed {
		r.mu.Unlock()
		return nil, false, ErrRoomNotFound
	}
	if _, ok := r.members[sessionID]; !ok {
		r.mu.Unlock()
		return nil, false, ErrNotMember
	}

	delete(r.members, sessionID)
	remaining := r.memberViewsLocked()
	destroyed := len(r.members) == 0
	var record RoomRecord
	if destroyed {
		r.state = StateDestroyed
		record = r.recordLocked()
	} else {
		r.publishLocked(NoticeMemberLeft, sessionID, AudienceOthers, MemberLeftBody{
			MemberID: sessionID,
			Members:  remaining,
		})
	}
	r.mu.Unlock()

	r.logger.Debug("member left",
		zap.String("room_id", r.id),
		zap.String("session_id", sessionID),
		zap.Int("members", len(remaining)),
		zap.Bool("destroyed", destroyed))

	if destroyed && r.onDestroyed != nil {
		r.onDestroyed(record)
	}
	return remaining, destroyed, nil
}

// AddElement commits payload to the log on behalf of authorID.
func (r *Room) AddElement(authorID string, payload canvas.Payload) (canvas.Element, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	member, err := r.memberLocked(authorID)
	if err != nil {
		return canvas.Element{}, err
	}

	element, evicted, err := r.log.Append(authorID, payload)
	if err != nil {
		return canvas.Element{}, newServiceError(opAddElement, "id_generation_failed", err)
	}
	for _, old := range evicted {
		r.publishLocked(NoticeElementRemoved, authorID, AudienceAll, ElementRemovedBody{ElementID: old.ID})
	}
	r.publishLocked(NoticeElementCommitted, authorID, AudienceOthers, ElementCommittedBody{
		Element: canvas.SnapshotElement{Element: element, AuthorName: member.DisplayName},
	})
	return element, nil
}

// Undo removes the most recent element authored by authorID. removed is false when the author
// has nothing left in the log; nothing is published in that case.
func (r *Room) Undo(authorID string) (canvas.Element, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.memberLocked(authorID); err != nil {
		return canvas.Element{}, false, err
	}

	element, removed := r.log.RemoveLastBy(authorID)
	if !removed {
		return canvas.Element{}, false, nil
	}
	r.publishLocked(NoticeElementRemoved, authorID, AudienceAll, ElementRemovedBody{ElementID: element.ID})
	return element, true, nil
}

// ClearCanvas empties the element log for everyone.
func (r *Room) ClearCanvas(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.memberLocked(sessionID); err != nil {
		return err
	}

	removed := r.log.Clear()
	r.publishLocked(NoticeCanvasCleared, sessionID, AudienceAll, CanvasClearedBody{})
	r.logger.Debug("canvas cleared",
		zap.String("room_id", r.id),
		zap.String("session_id", sessionID),
		zap.Int("removed", removed))
	return nil
}

// SetCursor records the member's pointer position and relays it. Cursors never enter the log.
func (r *Room) SetCursor(sessionID string, cursor Cursor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	member, err := r.memberLocked(sessionID)
	if err != nil {
		return err
	}

	position := cursor
	member.Cursor = &position
	r.publishLocked(NoticeCursorMoved, sessionID, AudienceOthers, CursorMovedBody{
		AuthorID: sessionID,
		X:        cursor.X,
		Y:        cursor.Y,
	})
	return nil
}

// RecordMessage builds a chat message for authorID and broadcasts it to every member.
func (r *Room) RecordMessage(authorID, text string) (ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	member, err := r.memberLocked(authorID)
	if err != nil {
		return ChatMessage{}, err
	}
	normalized, err := normalizeChatText(text)
	if err != nil {
		return ChatMessage{}, err
	}

	messageID, err := r.ids.NewID()
	if err != nil {
		return ChatMessage{}, newServiceError(opRecordChat, "id_generation_failed", err)
	}

	message := ChatMessage{
		ID:          messageID,
		AuthorID:    authorID,
		DisplayName: member.DisplayName,
		Text:        normalized,
		CommittedAt: r.clock().UTC(),
	}
	r.publishLocked(NoticeChatMessage, authorID, AudienceAll, message)
	return message, nil
}

// Relay forwards an uncommitted event (in-progress stroke, erase) to the other members.
func (r *Room) Relay(sessionID string, kind NoticeKind, body any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.memberLocked(sessionID); err != nil {
		return err
	}
	r.publishLocked(kind, sessionID, AudienceOthers, body)
	return nil
}

// Snapshot returns the current element log and member list.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Members returns the current member list ordered by join time.
func (r *Room) Members() []MemberView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.memberViewsLocked()
}

// Member returns a copy of one member record, including its last known cursor.
func (r *Room) Member(sessionID string) (Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	member, ok := r.members[sessionID]
	if !ok {
		return Member{}, false
	}
	copied := *member
	if member.Cursor != nil {
		cursor := *member.Cursor
		copied.Cursor = &cursor
	}
	return copied, true
}

// MemberCount returns the number of members.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// State returns the lifecycle state.
func (r *Room) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Summary describes the room without its elements.
func (r *Room) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summaryLocked()
}

// Detail returns the summary and the snapshot taken at the same instant.
func (r *Room) Detail() (Summary, Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summaryLocked(), r.snapshotLocked()
}

func (r *Room) summaryLocked() Summary {
	return Summary{
		ID:           r.id,
		Name:         r.name,
		Visibility:   r.visibility,
		CreatorID:    r.creatorID,
		CreatedAt:    r.createdAt,
		MemberCount:  len(r.members),
		ElementCount: r.log.Len(),
		State:        r.state,
	}
}

// destroy marks the room Destroyed regardless of membership. It reports false if it already was.
func (r *Room) destroy() (RoomRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateDestroyed {
		return RoomRecord{}, false
	}
	r.state = StateDestroyed
	return r.recordLocked(), true
}

// destroyIfUnclaimed destroys a room that nobody has joined since creation.
func (r *Room) destroyIfUnclaimed(olderThan time.Time) (RoomRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateEmpty || !r.createdAt.Before(olderThan) {
		return RoomRecord{}, false
	}
	r.state = StateDestroyed
	return r.recordLocked(), true
}

func (r *Room) memberLocked(sessionID string) (*Member, error) {
	if r.state == StateDestroyed {
		return nil, ErrRoomNotFound
	}
	member, ok := r.members[sessionID]
	if !ok {
		return nil, ErrNotMember
	}
	return member, nil
}

func (r *Room) snapshotLocked() Snapshot {
	return Snapshot{
		RoomID: r.id,
		Elements: r.log.Snapshot(func(authorID string) string {
			if member, ok := r.members[authorID]; ok {
				return member.DisplayName
			}
			return ""
		}),
		Members: r.memberViewsLocked(),
	}
}

func (r *Room) memberViewsLocked() []MemberView {
	views := make([]MemberView, 0, len(r.members))
	for _, member := range r.members {
		views = append(views, MemberView{
			ID:           member.ID,
			DisplayName:  member.DisplayName,
			DisplayColor: member.DisplayColor,
			JoinedAt:     member.JoinedAt,
		})
	}
	sortMemberViews(views)
	return views
}

func (r *Room) memberIDsLocked() []string {
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	return ids
}

func (r *Room) publishLocked(kind NoticeKind, origin string, audience Audience, body any) {
	r.publisher.Publish(Notice{
		RoomID:   r.id,
		Kind:     kind,
		Origin:   origin,
		Audience: audience,
		Members:  r.memberIDsLocked(),
		Body:     body,
	})
}

func (r *Room) recordLocked() RoomRecord {
	return RoomRecord{
		RoomID:            r.id,
		Name:              r.name,
		Visibility:        string(r.visibility),
		CreatorID:         r.creatorID,
		CreatedAtSeconds:  r.createdAt.Unix(),
		RetiredAtSeconds:  r.clock().UTC().Unix(),
		FinalElementCount: r.log.Len(),
	}
}
