package rooms

import (
	"errors"
	"fmt"
)

var (
	// ErrRoomNotFound indicates that no live room has the requested identifier.
	ErrRoomNotFound = errors.New("rooms: room not found")
	// ErrNotMember indicates that the session is not a member of the room.
	ErrNotMember = errors.New("rooms: session is not a member")
	// ErrInvalidRoomName indicates that a room name is empty or too long.
	ErrInvalidRoomName = errors.New("rooms: invalid room name")
	// ErrInvalidVisibility indicates an unknown visibility value.
	ErrInvalidVisibility = errors.New("rooms: invalid visibility")
	// ErrInvalidCreatorID indicates that a creator identifier exceeds storage bounds.
	ErrInvalidCreatorID = errors.New("rooms: invalid creator id")
	// ErrInvalidChatMessage indicates that a chat message is empty or too long.
	ErrInvalidChatMessage = errors.New("rooms: invalid chat message")

	errMissingPublisher = errors.New("publisher is required")
	errMissingLedger    = errors.New("id ledger is required")
	errMissingDatabase  = errors.New("database handle is required")
	errIDSpaceExhausted = errors.New("could not reserve a fresh room id")
)

const (
	opRegistryNew  = "rooms.registry.new"
	opCreateRoom   = "rooms.create_room"
	opAddElement   = "rooms.add_element"
	opRecordChat   = "rooms.record_message"
	opRetireRoom   = "rooms.retire_room"
	opLedgerNew    = "rooms.ledger.new"
	opLedgerRetire = "rooms.ledger.retire"
)

// ServiceError carries a stable machine-readable code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the operation.reason code.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}
