package ws

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quantforge/QuantForge/backend/internal/degraded"
	"github.com/quantforge/QuantForge/backend/internal/infrastructure/monitoring"
	"github.com/quantforge/QuantForge/backend/internal/infrastructure/resilience"
	"github.com/quantforge/QuantForge/backend/internal/logging"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in dev
	},
}

// Snapshot is the full health picture pushed to dashboard clients.
type Snapshot struct {
	Type         string                              `json:"type"`
	Mode         degraded.Mode                       `json:"mode"`
	Reason       string                              `json:"reason,omitempty"`
	Integrations map[string]resilience.HealthStatus  `json:"integrations"`
	Breakers     map[string]resilience.BreakerStatus `json:"breakers"`
	Degraded     []resilience.DegradedIntegration    `json:"degraded"`
	Summary      resilience.Summary                  `json:"summary"`
	Timestamp    int64                               `json:"timestamp"`
}

type clientMessage struct {
	Type string `json:"type"`
}

// Handler streams health snapshots to connected clients
type Handler struct {
	registry *resilience.Registry
	store    *degraded.Store
	metrics  *monitoring.Metrics
	logger   *logging.Logger
	interval time.Duration
}

// NewHandler creates a new stream handler
func NewHandler(registry *resilience.Registry, store *degraded.Store, metrics *monitoring.Metrics, interval time.Duration, logger *logging.Logger) *Handler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Handler{
		registry: registry,
		store:    store,
		metrics:  metrics,
		logger:   logger.Component("ws"),
		interval: interval,
	}
}

// HandleConnection handles WebSocket upgrade and the push loop
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.WSConnections.Inc()
	defer h.metrics.WSConnections.Dec()

	// Immediate snapshot so the dashboard renders without waiting a tick
	if err := h.sendSnapshot(conn); err != nil {
		return
	}

	requests := make(chan string, 4)
	done := make(chan struct{})

	// Reads run on their own goroutine; all writes happen below so the
	// connection never sees concurrent writers.
	go h.readLoop(conn, requests, done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case kind := <-requests:
			switch kind {
			case "refresh":
				if err := h.sendSnapshot(conn); err != nil {
					return
				}
			case "ping":
				if err := h.sendPong(conn); err != nil {
					return
				}
			}
		case <-ticker.C:
			if err := h.sendSnapshot(conn); err != nil {
				return
			}
		}
	}
}

func (h *Handler) readLoop(conn *websocket.Conn, requests chan<- string, done chan<- struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "refresh", "ping":
			select {
			case requests <- msg.Type:
			default:
			}
		}
	}
}

func (h *Handler) sendPong(conn *websocket.Conn) error {
	data, _ := sonic.Marshal(map[string]any{
		"type":      "pong",
		"timestamp": time.Now().Unix(),
	})
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (h *Handler) sendSnapshot(conn *websocket.Conn) error {
	snap := Snapshot{
		Type:         "snapshot",
		Mode:         h.store.Mode(),
		Reason:       h.store.Reason(),
		Integrations: h.registry.GetAllHealth(),
		Breakers:     h.registry.GetAllBreakerStatuses(),
		Degraded:     h.registry.DegradedIntegrations(),
		Summary:      h.registry.HealthSummary(),
		Timestamp:    time.Now().Unix(),
	}
	data, err := sonic.Marshal(snap)
	if err != nil {
		h.logger.Error("snapshot encode failed", zap.Error(err))
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
