// Package directory is the request/response surface for discovering, creating and inspecting
// rooms. It reads and creates rooms through the registry and never takes part in real-time fan-out.
package directory

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/whiteboard/backend/internal/canvas"
	"github.com/MarcoPoloResearchLab/whiteboard/backend/internal/rooms"
	"go.uber.org/zap"
)

var (
	errMissingRegistry = errors.New("room registry is required")
	errInvalidBaseURL  = errors.New("public base url must be an absolute http(s) url")
)

const (
	opServiceNew = "directory.service.new"
	opCreateRoom = "directory.create_room"
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

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// ServiceConfig describes the dependencies of a Service.
type ServiceConfig struct {
	Registry *rooms.Registry
	// PublicBaseURL is the frontend origin used to build join links.
	PublicBaseURL string
	Logger        *zap.Logger
}

// Service answers directory queries over the room registry.
type Service struct {
	registry      *rooms.Registry
	publicBaseURL string
	logger        *zap.Logger
}

// RoomSummary is one entry of the public room list.
type RoomSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	MemberCount int       `json:"memberCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CreateRoomRequest carries client input for room creation.
type CreateRoomRequest struct {
	Name       string
	Visibility string
	CreatorID  string
}

// CreatedRoom describes a freshly created room and the link that joins it.
type CreatedRoom struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Visibility rooms.Visibility `json:"visibility"`
	JoinURL    string           `json:"joinUrl"`
}

// RoomDetail is a room with its current element log.
type RoomDetail struct {
	ID          string                   `json:"id"`
	Name        string                   `json:"name"`
	Visibility  rooms.Visibility         `json:"visibility"`
	MemberCount int                      `json:"memberCount"`
	Elements    []canvas.SnapshotElement `json:"elements"`
}

// NewService validates the configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Registry == nil {
		return nil, newServiceError(opServiceNew, "missing_registry", errMissingRegistry)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	parsed, err := url.Parse(baseURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, newServiceError(opServiceNew, "invalid_base_url", errInvalidBaseURL)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry:      cfg.Registry,
		publicBaseURL: baseURL,
		logger:        logger,
	}, nil
}

// ListPublic returns the public rooms ordered by creation.
func (s *Service) ListPublic() []RoomSummary {
	summaries := s.registry.ListPublic()
	listed := make([]RoomSummary, 0, len(summaries))
	for _, summary := range summaries {
		listed = append(listed, RoomSummary{
			ID:          summary.ID,
			Name:        summary.Name,
			MemberCount: summary.MemberCount,
			CreatedAt:   summary.CreatedAt,
		})
	}
	return listed
}

// Create registers a new empty room and returns its join link.
func (s *Service) Create(ctx context.Context, request CreateRoomRequest) (CreatedRoom, error) {
	summary, err := s.registry.Create(ctx, rooms.CreateRequest{
		Name:       request.Name,
		Visibility: request.Visibility,
		CreatorID:  request.CreatorID,
	})
	if err != nil {
		if isValidationError(err) {
			return CreatedRoom{}, err
		}
		s.logger.Error("room creation failed",
			zap.String("operation", opCreateRoom),
			zap.Error(err))
		return CreatedRoom{}, newServiceError(opCreateRoom, "registry_failed", err)
	}
	return CreatedRoom{
		ID:         summary.ID,
		Name:       summary.Name,
		Visibility: summary.Visibility,
		JoinURL:    s.JoinURL(summary.ID),
	}, nil
}

// Fetch returns a room with its elements, or rooms.ErrRoomNotFound.
func (s *Service) Fetch(roomID string) (RoomDetail, error) {
	room, err := s.registry.Get(strings.TrimSpace(roomID))
	if err != nil {
		return RoomDetail{}, err
	}
	summary, snapshot := room.Detail()
	if summary.State == rooms.StateDestroyed {
		return RoomDetail{}, rooms.ErrRoomNotFound
	}
	return RoomDetail{
		ID:          summary.ID,
		Name:        summary.Name,
		Visibility:  summary.Visibility,
		MemberCount: summary.MemberCount,
		Elements:    snapshot.Elements,
	}, nil
}

// JoinURL builds the frontend link for roomID.
func (s *Service) JoinURL(roomID string) string {
	return s.publicBaseURL + "/room/" + url.PathEscape(roomID)
}

func isValidationError(err error) bool {
	return errors.Is(err, rooms.ErrInvalidRoomName) ||
		errors.Is(err, rooms.ErrInvalidVisibility) ||
		errors.Is(err, rooms.ErrInvalidCreatorID)
}
