package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/whiteboard/backend/internal/directory"
	"github.com/MarcoPoloResearchLab/whiteboard/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/whiteboard/backend/internal/rooms"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type testStack struct {
	server   *httptest.Server
	registry *rooms.Registry
	handler  http.Handler
}

func newTestStack(testContext *testing.T) testStack {
	testContext.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	hub := realtime.NewHub(logger)
	registry, err := rooms.NewRegistry(rooms.RegistryConfig{
		Ledger:    rooms.NewMemoryLedger(),
		Publisher: hub,
		Logger:    logger,
	})
	if err != nil {
		testContext.Fatalf("failed to construct registry: %v", err)
	}
	testContext.Cleanup(registry.Close)

	sessionRouter, err := realtime.NewRouter(realtime.RouterConfig{Registry: registry, Hub: hub, Logger: logger})
	if err != nil {
		testContext.Fatalf("failed to construct session router: %v", err)
	}
	transport, err := realtime.NewTransport(realtime.TransportConfig{Router: sessionRouter, Logger: logger})
	if err != nil {
		testContext.Fatalf("failed to construct transport: %v", err)
	}
	directoryService, err := directory.NewService(directory.ServiceConfig{
		Registry:      registry,
		PublicBaseURL: "http://localhost:3000",
		Logger:        logger,
	})
	if err != nil {
		testContext.Fatalf("failed to construct directory: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Directory:      directoryService,
		Registry:       registry,
		Realtime:       sessionRouter,
		WebSocket:      transport,
		AllowedOrigins: []string{"*"},
		Logger:         logger,
	})
	if err != nil {
		testContext.Fatalf("failed to construct handler: %v", err)
	}

	server := httptest.NewServer(handler)
	testContext.Cleanup(server.Close)
	return testStack{server: server, registry: registry, handler: handler}
}

func (s testStack) createRoom(testContext *testing.T, body string) map[string]any {
	testContext.Helper()
	response, err := http.Post(s.server.URL+"/api/rooms", "application/json", strings.NewReader(body))
	if err != nil {
		testContext.Fatalf("create request failed: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusCreated {
		testContext.Fatalf("expected 201, got %d", response.StatusCode)
	}
	var created map[string]any
	if err := json.NewDecoder(response.Body).Decode(&created); err != nil {
		testContext.Fatalf("failed to decode created room: %v", err)
	}
	return created
}

func (s testStack) dial(testContext *testing.T) *websocket.Conn {
	testContext.Helper()
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		testContext.Fatalf("websocket dial failed: %v", err)
	}
	testContext.Cleanup(func() { _ = conn.Close() })
	return conn
}

type wireFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func sendEvent(testContext *testing.T, conn *websocket.Conn, eventType string, payload any) {
	testContext.Helper()
	if err := conn.WriteJSON(map[string]any{"type": eventType, "payload": payload}); err != nil {
		testContext.Fatalf("failed to send %s: %v", eventType, err)
	}
}

func awaitEvent(testContext *testing.T, conn *websocket.Conn, eventType string) wireFrame {
	testContext.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		var frame wireFrame
		if err := conn.ReadJSON(&frame); err != nil {
			testContext.Fatalf("waiting for %s: %v", eventType, err)
		}
		if frame.Type == eventType {
			return frame
		}
	}
}

func eventually(testContext *testing.T, condition func() bool) {
	testContext.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	testContext.Fatalf("condition not met before deadline")
}
