package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/whiteboard/backend/internal/canvas"
	"github.com/MarcoPoloResearchLab/whiteboard/backend/internal/rooms"
)

// EventKind names an inbound client event. Relayed events keep the same name outbound.
type EventKind string

const (
	EventJoinRoom     EventKind = "join-room"
	EventStrokeBegin  EventKind = "stroke-begin"
	EventStrokePoint  EventKind = "stroke-point"
	EventStrokeCommit EventKind = "stroke-commit"
	EventShapeCommit  EventKind = "shape-commit"
	EventTextCommit   EventKind = "text-commit"
	EventEraseRelay   EventKind = "erase-relay"
	EventCursorMove   EventKind = "cursor-move"
	EventUndo         EventKind = "undo"
	EventClearCanvas  EventKind = "clear-canvas"
	EventChatSend     EventKind = "chat-send"

	// EventRoomNotFound is only ever sent, never received.
	EventRoomNotFound EventKind = "room-not-found"
)

var (
	errEmptyFrame     = errors.New("realtime: empty frame")
	errMissingType    = errors.New("realtime: missing event type")
	errInvalidPayload = errors.New("realtime: invalid payload")
)

// Inbound is one decoded client event.
type Inbound struct {
	Type    EventKind       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outboundFrame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// DecodeInbound parses a client text frame.
func DecodeInbound(frame []byte) (Inbound, error) {
	if len(frame) == 0 {
		return Inbound{}, errEmptyFrame
	}
	var inbound Inbound
	if err := json.Unmarshal(frame, &inbound); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", errInvalidPayload, err)
	}
	inbound.Type = EventKind(strings.TrimSpace(string(inbound.Type)))
	if inbound.Type == "" {
		return Inbound{}, errMissingType
	}
	return inbound, nil
}

func encodeFrame(eventType string, payload any) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	return json.Marshal(outboundFrame{Type: eventType, Payload: payload})
}

// decodePayload unmarshals raw into target; an absent payload decodes as an empty object.
func decodePayload(raw json.RawMessage, target any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: %v", errInvalidPayload, err)
	}
	return nil
}

type joinRoomPayload struct {
	RoomID     string `json:"roomId"`
	MemberData struct {
		DisplayName  string `json:"displayName"`
		DisplayColor string `json:"displayColor"`
	} `json:"memberData"`
}

type roomNotFoundBody struct {
	RoomID string `json:"roomId"`
}

// strokeSegmentPayload covers stroke-begin (no previous point) and stroke-point.
type strokeSegmentPayload struct {
	X     float64  `json:"x"`
	Y     float64  `json:"y"`
	PrevX *float64 `json:"prevX,omitempty"`
	PrevY *float64 `json:"prevY,omitempty"`
	Color string   `json:"color"`
	Width float64  `json:"width"`
	Mode  string   `json:"mode,omitempty"`
}

type strokeRelayBody struct {
	AuthorID string `json:"authorId"`
	strokeSegmentPayload
}

type eraseRelayPayload struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	PrevX float64 `json:"prevX"`
	PrevY float64 `json:"prevY"`
	Width float64 `json:"width"`
}

type eraseRelayBody struct {
	AuthorID string `json:"authorId"`
	eraseRelayPayload
}

type strokeCommitPayload struct {
	Points []canvas.Point `json:"points"`
	Color  string         `json:"color"`
	Width  float64        `json:"width"`
	Mode   string         `json:"mode"`
}

func (p strokeCommitPayload) build() (canvas.Payload, error) {
	return canvas.NewStrokePayload(canvas.StrokePayloadConfig{
		Points: p.Points,
		Color:  p.Color,
		Width:  p.Width,
		Mode:   p.Mode,
	})
}

type shapeCommitPayload struct {
	ShapeType string  `json:"shapeType"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Color     string  `json:"color"`
	LineWidth float64 `json:"lineWidth"`
	Fill      bool    `json:"fill"`
}

func (p shapeCommitPayload) build() (canvas.Payload, error) {
	return canvas.NewShapePayload(canvas.ShapePayloadConfig{
		ShapeType: p.ShapeType,
		X:         p.X,
		Y:         p.Y,
		Width:     p.Width,
		Height:    p.Height,
		Color:     p.Color,
		LineWidth: p.LineWidth,
		Fill:      p.Fill,
	})
}

type textCommitPayload struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Text       string  `json:"text"`
	Color      string  `json:"color"`
	FontSize   float64 `json:"fontSize"`
	FontFamily string  `json:"fontFamily"`
}

func (p textCommitPayload) build() (canvas.Payload, error) {
	return canvas.NewTextPayload(canvas.TextPayloadConfig{
		X:          p.X,
		Y:          p.Y,
		Text:       p.Text,
		Color:      p.Color,
		FontSize:   p.FontSize,
		FontFamily: p.FontFamily,
	})
}

type cursorPayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p cursorPayload) cursor() rooms.Cursor {
	return rooms.Cursor{X: p.X, Y: p.Y}
}

type chatSendPayload struct {
	Text string `json:"text"`
}
