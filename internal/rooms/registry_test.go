package rooms

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewRegistryRequiresPublisherAndLedger(t *testing.T) {
	_, err := NewRegistry(RegistryConfig{Ledger: NewMemoryLedger()})
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "rooms.registry.new.missing_publisher" {
		t.Fatalf("expected missing_publisher service error, got %v", err)
	}

	_, err = NewRegistry(RegistryConfig{Publisher: &recordingPublisher{}})
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "rooms.registry.new.missing_ledger" {
		t.Fatalf("expected missing_ledger service error, got %v", err)
	}
}

func TestCreateValidatesInput(t *testing.T) {
	fixture := newRegistryFixture(t, nil)
	testCases := []struct {
		name    string
		request CreateRequest
		want    error
	}{
		{name: "blank name", request: CreateRequest{Name: "   "}, want: ErrInvalidRoomName},
		{name: "unknown visibility", request: CreateRequest{Name: "Room", Visibility: "secret"}, want: ErrInvalidVisibility},
		{name: "oversized creator", request: CreateRequest{Name: "Room", CreatorID: string(make([]byte, maxIdentifierLength+1))}, want: ErrInvalidCreatorID},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := fixture.registry.Create(context.Background(), testCase.request)
			if !errors.Is(err, testCase.want) {
				t.Fatalf("expected %v, got %v", testCase.want, err)
			}
		})
	}
	if fixture.registry.Count() != 0 {
		t.Fatalf("expected no rooms after rejected creates")
	}
}

func TestCreateReturnsEmptyRoomSummary(t *testing.T) {
	fixture := newRegistryFixture(t, nil)

	summary, err := fixture.registry.Create(context.Background(), CreateRequest{
		Name:       "  Weekly sync  ",
		Visibility: "PRIVATE",
		CreatorID:  "creator-1",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if summary.ID != "room-1" || summary.Name != "Weekly sync" || summary.Visibility != VisibilityPrivate {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.State != StateEmpty || summary.MemberCount != 0 || summary.ElementCount != 0 {
		t.Fatalf("expected empty room, got %+v", summary)
	}
	if !summary.CreatedAt.Equal(fixture.clock.Now()) {
		t.Fatalf("expected creation time from clock, got %v", summary.CreatedAt)
	}
	record, ok := fixture.ledger.Lookup("room-1")
	if !ok || record.CreatorID != "creator-1" || record.Visibility != "private" {
		t.Fatalf("expected ledger reservation, got %+v ok=%v", record, ok)
	}
}

func TestCreateRetriesOnIssuedIdentifier(t *testing.T) {
	ledger := NewMemoryLedger()
	if _, err := ledger.Reserve(context.Background(), RoomRecord{RoomID: "taken"}); err != nil {
		t.Fatalf("seed reserve failed: %v", err)
	}
	fixture := newRegistryFixture(t, func(cfg *RegistryConfig) {
		cfg.Ledger = ledger
		cfg.RoomIDs = &scriptedIDProvider{ids: []string{"taken", "taken", "fresh"}}
	})

	summary, err := fixture.registry.Create(context.Background(), CreateRequest{Name: "Room"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if summary.ID != "fresh" {
		t.Fatalf("expected retry to land on fresh id, got %s", summary.ID)
	}
}

func TestCreateNeverReusesRetiredIdentifier(t *testing.T) {
	fixture := newRegistryFixture(t, func(cfg *RegistryConfig) {
		cfg.RoomIDs = &scriptedIDProvider{ids: []string{"reused"}}
	})

	first, err := fixture.registry.Create(context.Background(), CreateRequest{Name: "First"})
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if !fixture.registry.Destroy(first.ID) {
		t.Fatalf("expected destroy to succeed")
	}

	_, err = fixture.registry.Create(context.Background(), CreateRequest{Name: "Second"})
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "rooms.create_room.id_space_exhausted" {
		t.Fatalf("expected id_space_exhausted, got %v", err)
	}
}

func TestCreateSurfacesIdentifierFailure(t *testing.T) {
	fixture := newRegistryFixture(t, func(cfg *RegistryConfig) {
		cfg.RoomIDs = &scriptedIDProvider{}
	})

	_, err := fixture.registry.Create(context.Background(), CreateRequest{Name: "Room"})
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "rooms.create_room.id_generation_failed" {
		t.Fatalf("expected id_generation_failed, got %v", err)
	}
	if !errors.Is(err, errScriptExhausted) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
	if fixture.registry.Count() != 0 {
		t.Fatalf("expected no room to be registered")
	}
}

func TestListPublicExcludesPrivateAndOrdersByCreation(t *testing.T) {
	fixture := newRegistryFixture(t, nil)
	ctx := context.Background()

	names := []struct {
		name       string
		visibility string
	}{
		{name: "Alpha", visibility: "public"},
		{name: "Hidden", visibility: "private"},
		{name: "Beta", visibility: ""},
		{name: "Gamma", visibility: "public"},
	}
	for index, entry := range names {
		if index == 2 {
			fixture.clock.Advance(time.Second)
		}
		if _, err := fixture.registry.Create(ctx, CreateRequest{Name: entry.name, Visibility: entry.visibility}); err != nil {
			t.Fatalf("create %s failed: %v", entry.name, err)
		}
	}

	listed := fixture.registry.ListPublic()
	if len(listed) != 3 {
		t.Fatalf("expected three public rooms, got %+v", listed)
	}
	expected := []string{"Alpha", "Beta", "Gamma"}
	for index, summary := range listed {
		if summary.Name != expected[index] {
			t.Fatalf("expected %s at %d, got %s", expected[index], index, summary.Name)
		}
	}
}

func TestGetUnknownRoom(t *testing.T) {
	fixture := newRegistryFixture(t, nil)
	if _, err := fixture.registry.Get("missing"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestDestroyWithMembersInvalidatesRoom(t *testing.T) {
	fixture := newRegistryFixture(t, nil)
	room := fixture.createRoom(t, "Room", "")
	mustJoin(t, room, "session-a", "Alice")

	if !fixture.registry.Destroy(room.ID()) {
		t.Fatalf("expected destroy to report success")
	}
	if fixture.registry.Destroy(room.ID()) {
		t.Fatalf("expected second destroy to report false")
	}
	if _, err := room.AddElement("session-a", mustRectangle(t, 1)); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected operations on destroyed room to fail, got %v", err)
	}
	if _, _, err := room.Leave("session-a"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected leave on destroyed room to fail, got %v", err)
	}
	if fixture.registry.Count() != 0 {
		t.Fatalf("expected room removed from registry")
	}
}

func TestSweepUnclaimedRemovesOnlyStaleEmptyRooms(t *testing.T) {
	fixture := newRegistryFixture(t, nil)
	stale := fixture.createRoom(t, "Stale", "")
	claimed := fixture.createRoom(t, "Claimed", "")
	mustJoin(t, claimed, "session-a", "Alice")

	fixture.clock.Advance(10 * time.Minute)
	fresh := fixture.createRoom(t, "Fresh", "")

	if swept := fixture.registry.SweepUnclaimed(0); swept != 0 {
		t.Fatalf("expected zero max age to disable sweeping, got %d", swept)
	}
	if swept := fixture.registry.SweepUnclaimed(5 * time.Minute); swept != 1 {
		t.Fatalf("expected one room swept, got %d", swept)
	}
	if _, err := fixture.registry.Get(stale.ID()); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected stale room removed, got %v", err)
	}
	for _, room := range []*Room{claimed, fresh} {
		if _, err := fixture.registry.Get(room.ID()); err != nil {
			t.Fatalf("expected %s to survive sweep: %v", room.Name(), err)
		}
	}
}

func TestRetirementIsRecordedInLedger(t *testing.T) {
	fixture := newRegistryFixture(t, nil)
	room := fixture.createRoom(t, "Room", "")
	mustJoin(t, room, "session-a", "Alice")
	room.AddElement("session-a", mustRectangle(t, 1))
	room.AddElement("session-a", mustRectangle(t, 2))
	fixture.clock.Advance(time.Minute)
	room.Leave("session-a")

	fixture.registry.Close()

	record, ok := fixture.ledger.Lookup(room.ID())
	if !ok {
		t.Fatalf("expected ledger record for %s", room.ID())
	}
	if record.FinalElementCount != 2 {
		t.Fatalf("expected final element count 2, got %d", record.FinalElementCount)
	}
	if record.RetiredAtSeconds != fixture.clock.Now().Unix() {
		t.Fatalf("expected retirement stamped at %d, got %d", fixture.clock.Now().Unix(), record.RetiredAtSeconds)
	}
}
