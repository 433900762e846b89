package relay

// SessionConfig contains the immutable per-session settings for the
// upstream transcription service. It is supplied at session creation and
// never mutated afterward.
type SessionConfig struct {
	APIKey               string
	BaseURL              string // no trailing slash
	Model                string
	Language             string
	SampleRateHz         int
	SilenceDurationMs    int
	HandshakeTimeoutSecs int
	MaxMessageBytes      int
}

// TranscriptEvent is the canonical representation of one classified
// upstream message. IsPartial and IsFinal are mutually exclusive; when an
// event carries both marker kinds, finality wins.
type TranscriptEvent struct {
	EventType string
	IsPartial bool
	IsFinal   bool
	Text      string
	StartS    *float64
	EndS      *float64
	Raw       map[string]any
}
