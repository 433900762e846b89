package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/voicelab/stt-bridge/internal/buffers"
	"github.com/voicelab/stt-bridge/internal/config"
	"github.com/voicelab/stt-bridge/internal/websocket"
	"github.com/voicelab/stt-bridge/pkg/logger"
)

const (
	defaultDebugLimit = 50
	maxDebugLimit     = 1000
)

// Handler contains the API handlers
type Handler struct {
	config   *config.Config
	logs     *buffers.Logs
	wsServer *websocket.Server
	logger   *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(cfg *config.Config, logs *buffers.Logs, wsServer *websocket.Server, log *logger.Logger) *Handler {
	return &Handler{
		config:   cfg,
		logs:     logs,
		wsServer: wsServer,
		logger:   log.Named("api-handler"),
	}
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already out; nothing left to do but drop it
		return
	}
}

// Healthz reports service liveness
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetConfig returns the effective runtime configuration, credentials
// excluded
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"model":           h.config.Upstream.Model,
		"language":        h.config.Upstream.Language,
		"sample_rate":     h.config.Audio.SampleRateHz,
		"allowed_origins": h.config.Server.CORSAllowedOrigins,
	}
	WriteJSON(w, http.StatusOK, response)
}

// HandleWebSocket handles client WebSocket connections
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("WebSocket connection request received")
	h.wsServer.HandleConnection(w, r)
}

// GetClientChunks returns the most recent chunk entries received from clients
func (h *Handler) GetClientChunks(w http.ResponseWriter, r *http.Request) {
	h.writeRingLog(w, r, h.logs.ClientChunks)
}

// GetUpstreamChunks returns the most recent chunk entries forwarded upstream
func (h *Handler) GetUpstreamChunks(w http.ResponseWriter, r *http.Request) {
	h.writeRingLog(w, r, h.logs.UpstreamChunks)
}

// GetUpstreamText returns the most recent transcript payloads received
// from upstream
func (h *Handler) GetUpstreamText(w http.ResponseWriter, r *http.Request) {
	h.writeRingLog(w, r, h.logs.UpstreamText)
}

// GetClientText returns the most recent transcript payloads sent to clients
func (h *Handler) GetClientText(w http.ResponseWriter, r *http.Request) {
	h.writeRingLog(w, r, h.logs.ClientText)
}

// writeRingLog responds with the most recent entries of one ring log,
// most-recent-last, in original insertion order
func (h *Handler) writeRingLog(w http.ResponseWriter, r *http.Request, log *buffers.RingLog) {
	limit := parseLimitParam(r)

	WriteJSON(w, http.StatusOK, map[string]any{"items": log.Latest(limit)})
}

// parseLimitParam parses the limit query parameter, defaulting to 50 and
// clamping to [1, 1000]
func parseLimitParam(r *http.Request) int {
	limit := defaultDebugLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxDebugLimit {
		limit = maxDebugLimit
	}
	return limit
}
