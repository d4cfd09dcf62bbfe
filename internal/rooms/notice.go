package rooms

import "github.com/MarcoPoloResearchLab/whiteboard/backend/internal/canvas"

// Audience selects which members of a room receive a notice.
type Audience int

const (
	// AudienceOrigin delivers to the originating session only.
	AudienceOrigin Audience = iota
	// AudienceOthers delivers to every member except the originating session.
	AudienceOthers
	// AudienceAll delivers to every member, including the originating session.
	AudienceAll
)

// NoticeKind names an outbound state change. Values double as wire event types.
type NoticeKind string

const (
	NoticeSnapshot         NoticeKind = "snapshot"
	NoticeMemberJoined     NoticeKind = "member-joined"
	NoticeMemberLeft       NoticeKind = "member-left"
	NoticeElementCommitted NoticeKind = "element-committed"
	NoticeElementRemoved   NoticeKind = "element-removed"
	NoticeCanvasCleared    NoticeKind = "canvas-cleared"
	NoticeCursorMoved      NoticeKind = "cursor-move"
	NoticeChatMessage      NoticeKind = "chat-message"
)

// Notice is a room state change to fan out. Members holds the member session ids captured
// under the room lock at the moment the change was applied.
type Notice struct {
	RoomID   string
	Kind     NoticeKind
	Origin   string
	Audience Audience
	Members  []string
	Body     any
}

// Recipients resolves the audience against the captured member ids.
func (n Notice) Recipients() []string {
	switch n.Audience {
	case AudienceOrigin:
		if n.Origin == "" {
			return nil
		}
		return []string{n.Origin}
	case AudienceOthers:
		recipients := make([]string, 0, len(n.Members))
		for _, member := range n.Members {
			if member != n.Origin {
				recipients = append(recipients, member)
			}
		}
		return recipients
	default:
		recipients := make([]string, len(n.Members))
		copy(recipients, n.Members)
		return recipients
	}
}

// Publisher delivers notices. Rooms call Publish while holding their lock, so implementations
// must not block and must not call back into the room.
type Publisher interface {
	Publish(notice Notice)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Notice)

// Publish calls f(notice).
func (f PublisherFunc) Publish(notice Notice) {
	f(notice)
}

// Snapshot is what a joining member receives: the element log and the member list.
type Snapshot struct {
	RoomID   string                   `json:"roomId"`
	Elements []canvas.SnapshotElement `json:"elements"`
	Members  []MemberView             `json:"members"`
}

// MemberJoinedBody announces a join (or a member data update on re-join).
type MemberJoinedBody struct {
	MemberID   string       `json:"memberId"`
	MemberData MemberData   `json:"memberData"`
	Members    []MemberView `json:"members"`
}

// MemberLeftBody announces a departure.
type MemberLeftBody struct {
	MemberID string       `json:"memberId"`
	Members  []MemberView `json:"members"`
}

// ElementCommittedBody carries a freshly committed element.
type ElementCommittedBody struct {
	Element canvas.SnapshotElement `json:"element"`
}

// ElementRemovedBody identifies an element removed by undo or eviction.
type ElementRemovedBody struct {
	ElementID string `json:"elementId"`
}

// CanvasClearedBody is the empty body of a clear.
type CanvasClearedBody struct{}

// CursorMovedBody carries a member's pointer position.
type CursorMovedBody struct {
	AuthorID string  `json:"authorId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}
