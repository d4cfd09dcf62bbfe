package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/whiteboard/backend/internal/directory"
	"github.com/MarcoPoloResearchLab/whiteboard/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/whiteboard/backend/internal/rooms"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errMissingDirectory = errors.New("directory service dependency required")
	errMissingRealtime  = errors.New("realtime router dependency required")
	errMissingTransport = errors.New("websocket transport dependency required")
	errMissingRegistry  = errors.New("room registry dependency required")
)

type codedError interface {
	Code() string
}

// Dependencies wires the HTTP surface to the room core.
type Dependencies struct {
	Directory      *directory.Service
	Registry       *rooms.Registry
	Realtime       *realtime.Router
	WebSocket      http.Handler
	AllowedOrigins []string
	Clock          func() time.Time
	Logger         *zap.Logger
}

// NewHTTPHandler builds the gin engine serving the directory API, health and the websocket endpoint.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Directory == nil {
		return nil, errMissingDirectory
	}
	if deps.Registry == nil {
		return nil, errMissingRegistry
	}
	if deps.Realtime == nil {
		return nil, errMissingRealtime
	}
	if deps.WebSocket == nil {
		return nil, errMissingTransport
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		directory: deps.Directory,
		registry:  deps.Registry,
		realtime:  deps.Realtime,
		clock:     clock,
		startedAt: clock(),
		logger:    logger,
	}

	router.GET("/health", handler.handleHealth)

	api := router.Group("/api")
	api.GET("/rooms", handler.handleListRooms)
	api.POST("/rooms", handler.handleCreateRoom)
	api.GET("/rooms/:id", handler.handleFetchRoom)

	router.GET("/ws", gin.WrapH(deps.WebSocket))

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	origins := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "*" {
			config.AllowAllOrigins = true
			origins = nil
			break
		}
		if trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if !config.AllowAllOrigins {
		if len(origins) == 0 {
			config.AllowAllOrigins = true
		} else {
			config.AllowOrigins = origins
		}
	}
	return cors.New(config)
}

type httpHandler struct {
	directory *directory.Service
	registry  *rooms.Registry
	realtime  *realtime.Router
	clock     func() time.Time
	startedAt time.Time
	logger    *zap.Logger
}

type healthResponsePayload struct {
	Status        string `json:"status"`
	Rooms         int    `json:"rooms"`
	Sessions      int    `json:"sessions"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponsePayload{
		Status:        "ok",
		Rooms:         h.registry.Count(),
		Sessions:      h.realtime.SessionCount(),
		UptimeSeconds: int64(h.clock().Sub(h.startedAt).Seconds()),
	})
}

type listRoomsResponsePayload struct {
	Rooms []directory.RoomSummary `json:"rooms"`
}

func (h *httpHandler) handleListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, listRoomsResponsePayload{Rooms: h.directory.ListPublic()})
}

type createRoomRequestPayload struct {
	Name       string `json:"name"`
	Visibility string `json:"visibility"`
	IsPrivate  *bool  `json:"isPrivate"`
	CreatorID  string `json:"creatorId"`
}

func (h *httpHandler) handleCreateRoom(c *gin.Context) {
	var request createRoomRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	visibility := request.Visibility
	if strings.TrimSpace(visibility) == "" && request.IsPrivate != nil && *request.IsPrivate {
		visibility = string(rooms.VisibilityPrivate)
	}

	created, err := h.directory.Create(c.Request.Context(), directory.CreateRoomRequest{
		Name:       request.Name,
		Visibility: visibility,
		CreatorID:  request.CreatorID,
	})
	if err != nil {
		switch {
		case errors.Is(err, rooms.ErrInvalidRoomName):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_room_name"})
		case errors.Is(err, rooms.ErrInvalidVisibility):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_visibility"})
		case errors.Is(err, rooms.ErrInvalidCreatorID):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_creator_id"})
		default:
			h.logger.Error("failed to create room", zap.Error(err))
			c.JSON(http.StatusInternalServerError, errorPayload("room_create_failed", err))
		}
		return
	}

	c.JSON(http.StatusCreated, created)
}

func (h *httpHandler) handleFetchRoom(c *gin.Context) {
	detail, err := h.directory.Fetch(c.Param("id"))
	if err != nil {
		if errors.Is(err, rooms.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room_not_found"})
			return
		}
		h.logger.Error("failed to fetch room", zap.String("room_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorPayload("room_fetch_failed", err))
		return
	}
	c.JSON(http.StatusOK, detail)
}

func errorPayload(reason string, err error) gin.H {
	payload := gin.H{"error": reason}
	var coded codedError
	if errors.As(err, &coded) {
		payload["code"] = coded.Code()
	}
	return payload
}
