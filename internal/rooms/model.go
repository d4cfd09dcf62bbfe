package rooms

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxRoomNameLength     = 120
	maxIdentifierLength   = 190
	maxDisplayNameLength  = 64
	maxDisplayColorLength = 64
	maxChatMessageLength  = 4000

	defaultDisplayName  = "Anonymous"
	defaultDisplayColor = "#000000"
)

// Visibility controls whether a room is listed by the directory.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// ParseVisibility validates raw input; empty input means public.
func ParseVisibility(rawInput string) (Visibility, error) {
	switch Visibility(strings.ToLower(strings.TrimSpace(rawInput))) {
	case "", VisibilityPublic:
		return VisibilityPublic, nil
	case VisibilityPrivate:
		return VisibilityPrivate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidVisibility, rawInput)
	}
}

// RoomName represents a validated room display name.
type RoomName string

// NewRoomName validates raw input and returns a RoomName.
func NewRoomName(rawInput string) (RoomName, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidRoomName)
	}
	if utf8.RuneCountInString(trimmed) > maxRoomNameLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidRoomName, maxRoomNameLength)
	}
	return RoomName(trimmed), nil
}

// String returns the underlying name.
func (name RoomName) String() string {
	return string(name)
}

// State is the lifecycle position of a room.
type State int

const (
	// StateEmpty is a freshly created room nobody has joined yet.
	StateEmpty State = iota
	// StateActive is a room with at least one member.
	StateActive
	// StateDestroyed is terminal; the room is no longer resolvable.
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateActive:
		return "active"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// MemberData is what a client supplies about itself on join.
type MemberData struct {
	DisplayName  string `json:"displayName"`
	DisplayColor string `json:"displayColor"`
}

// NewMemberData trims and bounds client supplied member data, filling defaults for blanks.
func NewMemberData(displayName, displayColor string) MemberData {
	name := truncateRunes(strings.TrimSpace(displayName), maxDisplayNameLength)
	if name == "" {
		name = defaultDisplayName
	}
	color := strings.TrimSpace(displayColor)
	if color == "" || len(color) > maxDisplayColorLength {
		color = defaultDisplayColor
	}
	return MemberData{DisplayName: name, DisplayColor: color}
}

// Cursor is the last known pointer position of a member.
type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Member is one entry of a room's member table.
type Member struct {
	ID string
	MemberData
	JoinedAt time.Time
	Cursor   *Cursor
}

// MemberView is the wire form of a member in member lists.
type MemberView struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"displayName"`
	DisplayColor string    `json:"displayColor"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// Summary describes a room without its element log.
type Summary struct {
	ID           string
	Name         string
	Visibility   Visibility
	CreatorID    string
	CreatedAt    time.Time
	MemberCount  int
	ElementCount int
	State        State
}

// ChatMessage is a relayed chat line. Chat is never stored in the room.
type ChatMessage struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"authorId"`
	DisplayName string    `json:"displayName"`
	Text        string    `json:"text"`
	CommittedAt time.Time `json:"committedAt"`
}

func normalizeChatText(rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidChatMessage)
	}
	if utf8.RuneCountInString(trimmed) > maxChatMessageLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidChatMessage, maxChatMessageLength)
	}
	return trimmed, nil
}

func normalizeCreatorID(rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidCreatorID, maxIdentifierLength)
	}
	return trimmed, nil
}

func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit])
}

func sortMemberViews(views []MemberView) {
	sort.Slice(views, func(i, j int) bool {
		if views[i].JoinedAt.Equal(views[j].JoinedAt) {
			return views[i].ID < views[j].ID
		}
		return views[i].JoinedAt.Before(views[j].JoinedAt)
	})
}
