package websocket

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/voicelab/stt-bridge/internal/buffers"
	"github.com/voicelab/stt-bridge/internal/metrics"
	"github.com/voicelab/stt-bridge/internal/relay"
	"github.com/voicelab/stt-bridge/pkg/logger"
)

// Import logger functions
var (
	String = logger.String
	Int    = logger.Int
	Error  = logger.Error
)

// Server accepts client WebSocket connections and runs one relay session
// per connection. Each connection gets its own upstream session whose
// lifetime is strictly contained within the connection's lifetime.
type Server struct {
	sessionConfig relay.SessionConfig
	logs          *buffers.Logs
	metrics       *metrics.Metrics
	upgrader      websocket.Upgrader
	logger        *logger.Logger

	mu       sync.Mutex
	sessions int
}

// NewServer creates a new WebSocket server
func NewServer(sessionConfig relay.SessionConfig, logs *buffers.Logs, m *metrics.Metrics, log *logger.Logger) *Server {
	return &Server{
		sessionConfig: sessionConfig,
		logs:          logs,
		metrics:       m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Cross-origin policy is enforced by the API layer
			},
		},
		logger: log.Named("web-socket"),
	}
}

// HandleConnection upgrades an HTTP request and relays the connection
// until either side disconnects. It blocks for the connection's lifetime.
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("Handling new WebSocket connection request",
		String("remote_addr", r.RemoteAddr),
		String("user_agent", r.UserAgent()))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			Error(err),
			String("remote_addr", r.RemoteAddr))
		return
	}

	s.mu.Lock()
	s.sessions++
	count := s.sessions
	s.mu.Unlock()
	s.logger.Debug("Client connected", Int("session_count", count))

	upstream := relay.NewUpstreamSession(s.sessionConfig, s.logger)
	session := relay.NewSessionRelay(conn, upstream, s.logs, s.metrics, s.logger)

	if err := session.Run(r.Context()); err != nil {
		s.logger.Error("Relay session ended with error",
			Error(err),
			String("remote_addr", r.RemoteAddr))
	} else {
		s.logger.Info("Relay session ended", String("remote_addr", r.RemoteAddr))
	}

	s.mu.Lock()
	s.sessions--
	s.mu.Unlock()
}

// ActiveSessions returns the number of currently running relay sessions
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}
