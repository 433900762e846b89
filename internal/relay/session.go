package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/voicelab/stt-bridge/internal/buffers"
	"github.com/voicelab/stt-bridge/internal/metrics"
	"github.com/voicelab/stt-bridge/pkg/logger"
)

// State is the lifecycle state of a relay session
type State int

const (
	StateInit State = iota
	StateActive
	StateClosing
	StateClosed
)

// ClientConn is the subset of a client WebSocket connection the relay
// needs. *websocket.Conn satisfies it.
type ClientConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// controlMessage is a JSON control command received on a client text frame
type controlMessage struct {
	Type string `json:"type"`
}

// outMessage is the outward transcript frame sent to the client
type outMessage struct {
	Type  string        `json:"type"`
	Text  string        `json:"text"`
	TS    outTimestamps `json:"ts"`
	Event string        `json:"event"`
}

type outTimestamps struct {
	StartS *float64 `json:"start_s"`
	EndS   *float64 `json:"end_s"`
}

// SessionRelay orchestrates one client connection: two concurrent pumps
// against one upstream session, with the exit of either pump cancelling
// the other and triggering teardown of both connections.
type SessionRelay struct {
	client   ClientConn
	upstream Upstream
	logs     *buffers.Logs
	metrics  *metrics.Metrics
	logger   *logger.Logger

	// writeMu serializes all writes to the client connection; gorilla
	// permits only one concurrent writer per conn.
	writeMu sync.Mutex

	stateMu sync.Mutex
	state   State
}

// NewSessionRelay creates a relay over a client connection and an
// unconnected upstream session.
func NewSessionRelay(client ClientConn, upstream Upstream, logs *buffers.Logs, m *metrics.Metrics, log *logger.Logger) *SessionRelay {
	return &SessionRelay{
		client:   client,
		upstream: upstream,
		logs:     logs,
		metrics:  m,
		logger:   log.Named("relay"),
		state:    StateInit,
	}
}

// State returns the current lifecycle state
func (r *SessionRelay) State() State {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.state
}

func (r *SessionRelay) setState(s State) {
	r.stateMu.Lock()
	r.state = s
	r.stateMu.Unlock()
}

// Run connects the upstream session and relays traffic until either side
// disconnects or a pump fails. It always tears down both connections
// before returning; the returned error is nil for a normal shutdown.
func (r *SessionRelay) Run(ctx context.Context) error {
	defer r.setState(StateClosed)

	if err := r.upstream.Connect(ctx); err != nil {
		r.metrics.SessionsFailed.Inc()
		r.sendErrorFrame(err)
		r.teardown()
		return err
	}

	r.setState(StateActive)
	r.metrics.SessionsStarted.Inc()
	r.metrics.ActiveSessions.Inc()
	defer r.metrics.ActiveSessions.Dec()

	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer cancel()
		errCh <- r.pumpClientToUpstream(pumpCtx)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		errCh <- r.pumpUpstreamToClient(pumpCtx)
	}()

	// The first pump to exit decides the session's fate; the sibling is
	// unblocked by closing the connections during teardown.
	firstErr := <-errCh
	cancel()
	r.setState(StateClosing)

	if firstErr != nil {
		r.metrics.SessionsFailed.Inc()
		r.sendErrorFrame(firstErr)
	}

	r.teardown()
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return nil
}

// pumpClientToUpstream reads client frames in a loop. Binary frames are raw
// PCM16 chunks; text frames are control commands. Returns nil on normal
// client disconnect.
func (r *SessionRelay) pumpClientToUpstream(ctx context.Context) error {
	for {
		msgType, data, err := r.client.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || isNormalClosure(err) {
				return nil
			}
			return fmt.Errorf("client read failed: %w", err)
		}

		switch msgType {
		case websocket.BinaryMessage:
			t := buffers.NowS()
			startS, endS, err := r.upstream.SendAudioChunk(data)
			if err != nil {
				r.metrics.SendErrors.Inc()
				return fmt.Errorf("upstream send failed: %w", err)
			}

			r.logs.ClientChunks.Append(buffers.Entry{
				"t": t, "bytes": len(data), "start_s": startS, "end_s": endS,
			})
			r.logs.UpstreamChunks.Append(buffers.Entry{
				"t": t, "bytes": len(data), "start_s": startS, "end_s": endS,
			})
			r.metrics.ChunksForwarded.Inc()
			r.metrics.BytesForwarded.Add(float64(len(data)))

		case websocket.TextMessage:
			if err := r.handleControl(data); err != nil {
				r.metrics.SendErrors.Inc()
				return err
			}
		}
	}
}

// handleControl parses and applies a client control command. Malformed or
// unrecognized payloads are ignored; only a failed upstream write is fatal.
func (r *SessionRelay) handleControl(data []byte) error {
	var cmd controlMessage
	if err := json.Unmarshal(data, &cmd); err != nil {
		r.metrics.DecodeErrors.Inc()
		r.logger.Debug("Ignoring malformed control message", logger.Error(err))
		return nil
	}

	switch cmd.Type {
	case "reset":
		if err := r.upstream.Clear(); err != nil {
			return fmt.Errorf("upstream clear failed: %w", err)
		}
		r.logger.Debug("Cleared upstream audio buffer on client reset")
	case "flush":
		// No-op while server-side VAD segmentation is active
	default:
		// Unrecognized commands are not an error
	}
	return nil
}

// pumpUpstreamToClient consumes classified upstream events and forwards
// those with non-empty text to the client. An event with no partial or
// final marker but with text defaults to partial.
func (r *SessionRelay) pumpUpstreamToClient(ctx context.Context) error {
	for evt := range r.upstream.Events(ctx) {
		if evt.Text == "" {
			continue
		}

		msgType := "partial"
		if evt.IsFinal {
			msgType = "final"
		}

		payload := outMessage{
			Type:  msgType,
			Text:  evt.Text,
			TS:    outTimestamps{StartS: evt.StartS, EndS: evt.EndS},
			Event: evt.EventType,
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal transcript message: %w", err)
		}

		r.logs.UpstreamText.Append(textEntry(payload))

		if err := r.writeClient(websocket.TextMessage, data); err != nil {
			if ctx.Err() != nil || isNormalClosure(err) {
				return nil
			}
			r.metrics.SendErrors.Inc()
			return fmt.Errorf("client write failed: %w", err)
		}

		r.logs.ClientText.Append(textEntry(payload))
		r.metrics.TranscriptEvents.WithLabelValues(msgType).Inc()
	}

	// Upstream closure ends the session without an error frame
	return nil
}

func textEntry(payload outMessage) buffers.Entry {
	return buffers.Entry{
		"t":     buffers.NowS(),
		"type":  payload.Type,
		"text":  payload.Text,
		"ts":    map[string]any{"start_s": payload.TS.StartS, "end_s": payload.TS.EndS},
		"event": payload.Event,
	}
}

// writeClient writes one frame to the client connection, serializing
// writers across the transcript pump and the error path.
func (r *SessionRelay) writeClient(msgType int, data []byte) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.client.WriteMessage(msgType, data)
}

// sendErrorFrame sends a best-effort single error frame to the client;
// a failed send is swallowed.
func (r *SessionRelay) sendErrorFrame(cause error) {
	frame, err := json.Marshal(map[string]string{
		"type":  "error",
		"error": cause.Error(),
	})
	if err != nil {
		return
	}
	if err := r.writeClient(websocket.TextMessage, frame); err != nil {
		r.logger.Debug("Failed to send error frame to client", logger.Error(err))
	}
}

// teardown closes the upstream session, then the client connection. Both
// closes are idempotent and errors are suppressed.
func (r *SessionRelay) teardown() {
	if err := r.upstream.Close(); err != nil {
		r.logger.Debug("Error closing upstream session", logger.Error(err))
	}
	if err := r.client.Close(); err != nil {
		r.logger.Debug("Error closing client connection", logger.Error(err))
	}
}

// isNormalClosure reports whether err represents an orderly shutdown of
// either socket rather than a failure worth reporting to the client.
func isNormalClosure(err error) bool {
	if err == nil {
		return true
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.Canceled)
}
