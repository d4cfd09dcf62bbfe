package rooms

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/whiteboard/backend/internal/canvas"
)

type recordingPublisher struct {
	mu      sync.Mutex
	notices []Notice
}

func (p *recordingPublisher) Publish(notice Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, notice)
}

func (p *recordingPublisher) all() []Notice {
	p.mu.Lock()
	defer p.mu.Unlock()
	copied := make([]Notice, len(p.notices))
	copy(copied, p.notices)
	return copied
}

func (p *recordingPublisher) ofKind(kind NoticeKind) []Notice {
	var matched []Notice
	for _, notice := range p.all() {
		if notice.Kind == kind {
			matched = append(matched, notice)
		}
	}
	return matched
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = nil
}

type sequenceIDProvider struct {
	mu     sync.Mutex
	prefix string
	next   int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("%s-%d", p.prefix, p.next), nil
}

var errScriptExhausted = errors.New("scripted ids exhausted")

type scriptedIDProvider struct {
	mu  sync.Mutex
	ids []string
}

func (p *scriptedIDProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.ids) == 0 {
		return "", errScriptExhausted
	}
	if len(p.ids) == 1 {
		return p.ids[0], nil
	}
	next := p.ids[0]
	p.ids = p.ids[1:]
	return next, nil
}

type steppingClock struct {
	mu      sync.Mutex
	current time.Time
}

func newSteppingClock() *steppingClock {
	return &steppingClock{current: time.Unix(1700000000, 0).UTC()}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *steppingClock) Advance(delta time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(delta)
}

type registryFixture struct {
	registry  *Registry
	publisher *recordingPublisher
	ledger    *MemoryLedger
	clock     *steppingClock
}

func newRegistryFixture(t *testing.T, mutate func(*RegistryConfig)) registryFixture {
	t.Helper()
	fixture := registryFixture{
		publisher: &recordingPublisher{},
		ledger:    NewMemoryLedger(),
		clock:     newSteppingClock(),
	}
	cfg := RegistryConfig{
		Ledger:     fixture.ledger,
		Publisher:  fixture.publisher,
		Clock:      fixture.clock.Now,
		RoomIDs:    &sequenceIDProvider{prefix: "room"},
		ElementIDs: &sequenceIDProvider{prefix: "element"},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	registry, err := NewRegistry(cfg)
	if err != nil {
		t.Fatalf("failed to construct registry: %v", err)
	}
	t.Cleanup(registry.Close)
	fixture.registry = registry
	return fixture
}

func (f registryFixture) createRoom(t *testing.T, name, visibility string) *Room {
	t.Helper()
	summary, err := f.registry.Create(context.Background(), CreateRequest{Name: name, Visibility: visibility})
	if err != nil {
		t.Fatalf("failed to create room %q: %v", name, err)
	}
	room, err := f.registry.Get(summary.ID)
	if err != nil {
		t.Fatalf("created room %s not resolvable: %v", summary.ID, err)
	}
	return room
}

func mustJoin(t *testing.T, room *Room, sessionID, displayName string) Snapshot {
	t.Helper()
	snapshot, _, err := room.Join(sessionID, NewMemberData(displayName, "#123456"))
	if err != nil {
		t.Fatalf("join %s failed: %v", sessionID, err)
	}
	return snapshot
}

func mustRectangle(t *testing.T, x float64) canvas.ShapePayload {
	t.Helper()
	shape, err := canvas.NewShapePayload(canvas.ShapePayloadConfig{
		ShapeType: "rectangle",
		X:         x,
		Y:         10,
		Width:     50,
		Height:    50,
		Color:     "#000",
		LineWidth: 2,
	})
	if err != nil {
		t.Fatalf("unexpected shape error: %v", err)
	}
	return shape
}

func sortedRecipients(notice Notice) []string {
	recipients := notice.Recipients()
	sort.Strings(recipients)
	return recipients
}

func equalStrings(left, right []string) bool {
	if len(left) != len(right) {
		return false
	}
	for index := range left {
		if left[index] != right[index] {
			return false
		}
	}
	return true
}
