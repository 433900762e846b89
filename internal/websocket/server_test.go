package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/voicelab/stt-bridge/internal/buffers"
	"github.com/voicelab/stt-bridge/internal/metrics"
	"github.com/voicelab/stt-bridge/internal/relay"
	"github.com/voicelab/stt-bridge/pkg/logger"
)

// fakeTranscriber is an in-process stand-in for the remote transcription
// service. It answers every audio append with one completed transcript.
func fakeTranscriber(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame map[string]any
			if err := json.Unmarshal(msg, &frame); err != nil {
				continue
			}
			if frame["type"] == "input_audio_buffer.append" {
				reply := `{"type":"conversation.item.input_audio_transcription.completed","transcript":"hej hej"}`
				if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, upstreamURL string) (*Server, *buffers.Logs) {
	t.Helper()
	cfg := relay.SessionConfig{
		APIKey:               "test-key",
		BaseURL:              upstreamURL,
		Model:                "gpt-4o-mini-transcribe",
		Language:             "sv",
		SampleRateHz:         16000,
		SilenceDurationMs:    550,
		HandshakeTimeoutSecs: 5,
		MaxMessageBytes:      1 << 20,
	}
	logs := buffers.NewLogs(50)
	m := metrics.NewWith(prometheus.NewRegistry())
	return NewServer(cfg, logs, m, logger.NewNop()), logs
}

func dialClient(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("client dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServerRelaysAudioToTranscript(t *testing.T) {
	transcriber := fakeTranscriber(t)
	server, logs := newTestServer(t, transcriber.URL)

	srv := httptest.NewServer(http.HandlerFunc(server.HandleConnection))
	defer srv.Close()

	client := dialClient(t, srv)

	if err := client.WriteMessage(websocket.BinaryMessage, make([]byte, 3200)); err != nil {
		t.Fatalf("client write failed: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("client read failed: %v", err)
	}

	var out map[string]any
	if err := json.Unmarshal(msg, &out); err != nil {
		t.Fatalf("client frame is not JSON: %v", err)
	}
	if out["type"] != "final" || out["text"] != "hej hej" {
		t.Errorf("client frame = %v, want final %q", out, "hej hej")
	}

	if logs.ClientChunks.Len() == 0 || logs.UpstreamChunks.Len() == 0 {
		t.Error("expected chunk entries in both ring logs")
	}
	if logs.UpstreamText.Len() == 0 || logs.ClientText.Len() == 0 {
		t.Error("expected transcript entries in both ring logs")
	}
}

func TestServerSessionCountReturnsToZero(t *testing.T) {
	transcriber := fakeTranscriber(t)
	server, _ := newTestServer(t, transcriber.URL)

	srv := httptest.NewServer(http.HandlerFunc(server.HandleConnection))
	defer srv.Close()

	client := dialClient(t, srv)

	deadline := time.Now().Add(2 * time.Second)
	for server.ActiveSessions() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for session to start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	client.Close()

	deadline = time.Now().Add(2 * time.Second)
	for server.ActiveSessions() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for session teardown")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServerRejectsNonWebSocketRequests(t *testing.T) {
	transcriber := fakeTranscriber(t)
	server, _ := newTestServer(t, transcriber.URL)

	srv := httptest.NewServer(http.HandlerFunc(server.HandleConnection))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("plain GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusSwitchingProtocols {
		t.Error("plain GET must not be upgraded")
	}
	if server.ActiveSessions() != 0 {
		t.Errorf("ActiveSessions = %d after failed upgrade", server.ActiveSessions())
	}
}
