package relay

import (
	"encoding/json"
	"strings"
)

// Upstream event names vary between API snapshots; classification works on
// substring markers rather than an exhaustive list of event types.
var (
	partialMarkers = []string{".delta", ".partial"}
	finalMarkers   = []string{".done", ".completed", ".final"}

	// Top-level text fields in strict priority order; the first present
	// non-empty string wins.
	textFields = []string{"text", "text_delta", "transcript", "transcript_delta"}
)

// Classify decodes a raw upstream frame and maps it to a canonical
// transcript event. A decode failure is the only error condition; the
// caller is expected to skip the frame and continue. An event with empty
// extracted text is still classified; suppressing it is the caller's job.
func Classify(raw []byte) (TranscriptEvent, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return TranscriptEvent{}, err
	}
	return ClassifyDecoded(data), nil
}

// ClassifyDecoded classifies an already-decoded upstream message
func ClassifyDecoded(data map[string]any) TranscriptEvent {
	eventType, _ := data["type"].(string)

	isPartial := containsAny(eventType, partialMarkers)
	isFinal := containsAny(eventType, finalMarkers)
	if isFinal {
		// Finality wins when an event carries both marker kinds
		isPartial = false
	}

	evt := TranscriptEvent{
		EventType: eventType,
		IsPartial: isPartial,
		IsFinal:   isFinal,
		Text:      extractText(data),
		StartS:    nestedFloat(data, "audio", "start_time_s"),
		EndS:      nestedFloat(data, "audio", "end_time_s"),
		Raw:       data,
	}
	return evt
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// extractText walks the prioritized list of text fields, then the nested
// fallbacks observed in practice: audio.transcript, transcription, and
// response.output_text.
func extractText(data map[string]any) string {
	for _, field := range textFields {
		if v, ok := data[field].(string); ok && v != "" {
			return v
		}
	}

	if audio, ok := data["audio"].(map[string]any); ok {
		if v, ok := audio["transcript"].(string); ok && v != "" {
			return v
		}
	}
	if v, ok := data["transcription"].(string); ok && v != "" {
		return v
	}
	if response, ok := data["response"].(map[string]any); ok {
		if v, ok := response["output_text"].(string); ok && v != "" {
			return v
		}
	}

	return ""
}

// nestedFloat reads a float from data[outer][key], returning nil when the
// path is absent or not numeric.
func nestedFloat(data map[string]any, outer, key string) *float64 {
	obj, ok := data[outer].(map[string]any)
	if !ok {
		return nil
	}
	v, ok := obj[key].(float64)
	if !ok {
		return nil
	}
	return &v
}
