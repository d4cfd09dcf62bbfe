package rooms

import (
	"github.com/MarcoPoloResearchLab/whiteboard/backend/internal/canvas"
	"github.com/google/uuid"
)

type roomIDProvider struct{}

// NewRoomIDProvider constructs an IDProvider that issues random UUIDv4 room identifiers.
// Room ids are shared in links, so they carry no creation timestamp.
func NewRoomIDProvider() canvas.IDProvider {
	return roomIDProvider{}
}

func (roomIDProvider) NewID() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}
