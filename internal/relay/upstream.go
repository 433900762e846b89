package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/voicelab/stt-bridge/pkg/logger"
)

// sessionUpdate is the one-time configuration handshake sent immediately
// after connect. Output modality is restricted to text so the remote side
// never produces spoken responses.
type sessionUpdate struct {
	Type    string         `json:"type"`
	Session sessionPayload `json:"session"`
}

type sessionPayload struct {
	InputAudioFormat        inputAudioFormat        `json:"input_audio_format"`
	InputAudioTranscription inputAudioTranscription `json:"input_audio_transcription"`
	TurnDetection           turnDetection           `json:"turn_detection"`
	Modalities              []string                `json:"modalities"`
}

type inputAudioFormat struct {
	Format       string `json:"format"`
	SampleRateHz int    `json:"sample_rate_hz"`
}

type inputAudioTranscription struct {
	Model    string `json:"model"`
	Language string `json:"language"`
}

type turnDetection struct {
	Type              string `json:"type"`
	SilenceDurationMs int    `json:"silence_duration_ms"`
}

// Upstream is the session-facing surface of the upstream connection,
// implemented by UpstreamSession and by test doubles.
type Upstream interface {
	Connect(ctx context.Context) error
	SendAudioChunk(raw []byte) (startS, endS float64, err error)
	Clear() error
	Commit() error
	Events(ctx context.Context) <-chan TranscriptEvent
	Close() error
}

// UpstreamSession owns one WebSocket connection to the realtime
// transcription service. Exactly one exists per client connection; its
// lifetime is strictly contained within the client connection's lifetime.
type UpstreamSession struct {
	config SessionConfig
	logger *logger.Logger
	clock  AudioClock

	conn    *websocket.Conn
	writeMu sync.Mutex // gorilla requires a single concurrent writer
	closeMu sync.Mutex
	closed  bool
}

// NewUpstreamSession creates a session for the given configuration. The
// connection is not established until Connect is called.
func NewUpstreamSession(config SessionConfig, log *logger.Logger) *UpstreamSession {
	return &UpstreamSession{
		config: config,
		logger: log.Named("upstream"),
	}
}

// toWebSocketBase converts an http(s) base URL to the corresponding ws(s) URL.
// e.g. https://api.example -> wss://api.example
func toWebSocketBase(httpBase string) string {
	b := strings.TrimRight(httpBase, "/")
	if strings.HasPrefix(b, "https://") {
		return "wss://" + strings.TrimPrefix(b, "https://")
	} else if strings.HasPrefix(b, "http://") {
		return "ws://" + strings.TrimPrefix(b, "http://")
	}
	// If the provided base already looks like ws:// or wss://, return as-is.
	return b
}

// Connect establishes the WebSocket connection and sends the configuration
// handshake. A transport or handshake failure leaves the session closed.
func (s *UpstreamSession) Connect(ctx context.Context) error {
	wsBase := toWebSocketBase(s.config.BaseURL)
	wsURL := fmt.Sprintf("%s/v1/realtime?model=%s", wsBase, url.QueryEscape(s.config.Model))
	s.logger.Debug("Connecting to upstream WebSocket", logger.String("url", wsURL))

	dialer := websocket.Dialer{
		HandshakeTimeout: time.Duration(s.config.HandshakeTimeoutSecs) * time.Second,
	}

	headers := http.Header{}
	headers.Set("Authorization", fmt.Sprintf("Bearer %s", s.config.APIKey))
	headers.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return fmt.Errorf("failed to connect to upstream: %w", err)
	}
	conn.SetReadLimit(int64(s.config.MaxMessageBytes))
	s.conn = conn

	update := sessionUpdate{
		Type: "session.update",
		Session: sessionPayload{
			InputAudioFormat: inputAudioFormat{
				Format:       "pcm16",
				SampleRateHz: s.config.SampleRateHz,
			},
			InputAudioTranscription: inputAudioTranscription{
				Model:    s.config.Model,
				Language: s.config.Language,
			},
			TurnDetection: turnDetection{
				Type:              "server_vad",
				SilenceDurationMs: s.config.SilenceDurationMs,
			},
			Modalities: []string{"text"},
		},
	}

	if err := s.sendJSON(update); err != nil {
		s.Close()
		return fmt.Errorf("failed to send session handshake: %w", err)
	}

	s.logger.Info("Connected to upstream transcription service",
		logger.String("model", s.config.Model),
		logger.String("language", s.config.Language),
		logger.Int("sample_rate_hz", s.config.SampleRateHz))

	return nil
}

// sendJSON marshals and writes one text frame, serializing writers
func (s *UpstreamSession) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal upstream message: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.conn == nil || s.isClosed() {
		return ErrNotConnected
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *UpstreamSession) isClosed() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closed
}

// SendAudioChunk timestamps a raw PCM16 chunk via the audio clock, base64
// encodes it and forwards an append message upstream. The clock advances
// once per chunk regardless of payload size.
func (s *UpstreamSession) SendAudioChunk(raw []byte) (float64, float64, error) {
	if s.conn == nil {
		return 0, 0, ErrNotConnected
	}

	startS, endS := s.clock.Advance(len(raw), s.config.SampleRateHz)

	msg := map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(raw),
	}
	if err := s.sendJSON(msg); err != nil {
		return 0, 0, fmt.Errorf("failed to send audio chunk: %w", err)
	}

	return startS, endS, nil
}

// Clear resets the audio clock and asks the server to discard any buffered
// audio it has not yet finalized.
func (s *UpstreamSession) Clear() error {
	s.clock.Reset()
	if err := s.sendJSON(map[string]any{"type": "input_audio_buffer.clear"}); err != nil {
		return fmt.Errorf("failed to send clear message: %w", err)
	}
	return nil
}

// Commit flushes the server-side audio buffer manually. Not needed while
// server VAD segmentation is active.
func (s *UpstreamSession) Commit() error {
	if err := s.sendJSON(map[string]any{"type": "input_audio_buffer.commit"}); err != nil {
		return fmt.Errorf("failed to send commit message: %w", err)
	}
	return nil
}

// Events returns a channel of classified transcript events. The channel is
// closed when the upstream connection closes or the context is cancelled.
// Frames that fail to decode are logged and skipped.
func (s *UpstreamSession) Events(ctx context.Context) <-chan TranscriptEvent {
	events := make(chan TranscriptEvent)

	go func() {
		defer close(events)

		if s.conn == nil {
			return
		}

		for {
			_, message, err := s.conn.ReadMessage()
			if err != nil {
				if !s.isClosed() && ctx.Err() == nil {
					s.logger.Debug("Upstream connection closed", logger.Error(err))
				}
				return
			}

			evt, err := Classify(message)
			if err != nil {
				s.logger.Warn("Skipping non-JSON frame from upstream", logger.Error(err))
				continue
			}

			select {
			case events <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events
}

// Close closes the underlying connection if open. It is idempotent and
// never returns an error for an already-closed session.
func (s *UpstreamSession) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if s.closed || s.conn == nil {
		s.closed = true
		return nil
	}
	s.closed = true
	return s.conn.Close()
}
