package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/MarcoPoloResearchLab/whiteboard/backend/internal/rooms"
)

type receivedFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type fakeConnection struct {
	id      string
	mu      sync.Mutex
	frames  []receivedFrame
	failing bool
	onFrame func(receivedFrame)
}

func newFakeConnection(id string) *fakeConnection {
	return &fakeConnection{id: id}
}

func (c *fakeConnection) ID() string {
	return c.id
}

func (c *fakeConnection) Send(frame []byte) error {
	c.mu.Lock()
	if c.failing {
		c.mu.Unlock()
		return errors.New("peer gone")
	}
	var decoded receivedFrame
	if err := json.Unmarshal(frame, &decoded); err != nil {
		c.mu.Unlock()
		return err
	}
	c.frames = append(c.frames, decoded)
	onFrame := c.onFrame
	c.mu.Unlock()

	if onFrame != nil {
		onFrame(decoded)
	}
	return nil
}

func (c *fakeConnection) received() []receivedFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := make([]receivedFrame, len(c.frames))
	copy(copied, c.frames)
	return copied
}

func (c *fakeConnection) ofType(eventType string) []receivedFrame {
	var matched []receivedFrame
	for _, frame := range c.received() {
		if frame.Type == eventType {
			matched = append(matched, frame)
		}
	}
	return matched
}

func (c *fakeConnection) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

type routerFixture struct {
	router   *Router
	registry *rooms.Registry
}

func newRouterFixture(t *testing.T) routerFixture {
	t.Helper()
	hub := NewHub(nil)
	registry, err := rooms.NewRegistry(rooms.RegistryConfig{
		Ledger:    rooms.NewMemoryLedger(),
		Publisher: hub,
	})
	if err != nil {
		t.Fatalf("failed to construct registry: %v", err)
	}
	t.Cleanup(registry.Close)
	router, err := NewRouter(RouterConfig{Registry: registry, Hub: hub})
	if err != nil {
		t.Fatalf("failed to construct router: %v", err)
	}
	return routerFixture{router: router, registry: registry}
}

func (f routerFixture) createRoom(t *testing.T, name string) string {
	t.Helper()
	summary, err := f.registry.Create(context.Background(), rooms.CreateRequest{Name: name})
	if err != nil {
		t.Fatalf("failed to create room: %v", err)
	}
	return summary.ID
}

func (f routerFixture) connect(id string) *fakeConnection {
	connection := newFakeConnection(id)
	f.router.Connect(connection)
	return connection
}

func (f routerFixture) send(t *testing.T, sessionID string, eventType EventKind, payload any) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"type": eventType, "payload": payload})
	if err != nil {
		t.Fatalf("failed to encode frame: %v", err)
	}
	f.router.DispatchFrame(sessionID, raw)
}

func (f routerFixture) join(t *testing.T, sessionID, roomID, displayName string) {
	t.Helper()
	f.send(t, sessionID, EventJoinRoom, map[string]any{
		"roomId":     roomID,
		"memberData": map[string]string{"displayName": displayName, "displayColor": "#336699"},
	})
}

func decodeFrame[T any](t *testing.T, frame receivedFrame) T {
	t.Helper()
	var decoded T
	if err := json.Unmarshal(frame.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode %s payload: %v", frame.Type, err)
	}
	return decoded
}

type wireElement struct {
	ID         string          `json:"id"`
	AuthorID   string          `json:"authorId"`
	AuthorName string          `json:"authorName"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
}

type wireMember struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type wireSnapshot struct {
	RoomID   string        `json:"roomId"`
	Elements []wireElement `json:"elements"`
	Members  []wireMember  `json:"members"`
}

type wireElementCommitted struct {
	Element wireElement `json:"element"`
}

type wireElementRemoved struct {
	ElementID string `json:"elementId"`
}

var rectangle = map[string]any{
	"shapeType": "rectangle",
	"x":         10,
	"y":         10,
	"width":     50,
	"height":    50,
	"color":     "#000",
	"lineWidth": 2,
}
