package relay

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/voxbridge/realtime-relay/internal/audio"
)

// Event types of the realtime protocol the relay recognizes. Frames carrying
// any other type still cross the relay untouched; these names only drive
// session bookkeeping.
const (
	TypeResponseCreate = "response.create"
	TypeItemCreate     = "conversation.item.create"
	TypeItemCreated    = "conversation.item.created"
	TypeAudioDelta     = "response.audio.delta"
	TypeAudioDone      = "response.audio.done"
	TypeTranscriptDone = "response.audio_transcript.done"
	TypeError          = "error"
	TypeAudioAppend    = "input_audio_buffer.append"
	TypeSessionCreated = "session.created"
	TypeSessionUpdated = "session.updated"
)

// PeekType extracts the "type" field of an event frame without decoding the
// rest of the payload. Returns false for frames that are not JSON objects or
// carry no string type.
func PeekType(data []byte) (string, bool) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", false
	}
	if envelope.Type == "" {
		return "", false
	}
	return envelope.Type, true
}

// AppendEvent is the input_audio_buffer.append frame the relay synthesizes
// for clients using the binary ingest path.
type AppendEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Audio   string `json:"audio"`
}

// NewAudioAppend wraps raw 16-bit PCM into an input_audio_buffer.append
// frame with a relay-generated event id.
func NewAudioAppend(pcm []byte) ([]byte, error) {
	return json.Marshal(AppendEvent{
		EventID: uuid.NewString(),
		Type:    TypeAudioAppend,
		Audio:   audio.EncodePayload(pcm),
	})
}

// AudioDeltaEvent carries one base64 chunk of synthesized audio from the
// upstream. Only Delta is inspected, for duration accounting.
type AudioDeltaEvent struct {
	Type       string `json:"type"`
	ResponseID string `json:"response_id,omitempty"`
	ItemID     string `json:"item_id,omitempty"`
	Delta      string `json:"delta"`
}

// TranscriptDoneEvent carries the final transcript of one synthesized
// response item.
type TranscriptDoneEvent struct {
	Type       string `json:"type"`
	ResponseID string `json:"response_id,omitempty"`
	ItemID     string `json:"item_id,omitempty"`
	Transcript string `json:"transcript"`
}

// ErrorDetail is the error payload of an upstream or relay error event.
type ErrorDetail struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ErrorEvent is the single error shape surfaced to clients.
type ErrorEvent struct {
	EventID string      `json:"event_id,omitempty"`
	Type    string      `json:"type"`
	Error   ErrorDetail `json:"error"`
}

// NewRelayError builds the error frame sent to a client when the relay
// itself fails (e.g. the upstream dial does not complete).
func NewRelayError(message string) []byte {
	data, err := json.Marshal(ErrorEvent{
		EventID: uuid.NewString(),
		Type:    TypeError,
		Error: ErrorDetail{
			Type:    "relay_error",
			Message: message,
		},
	})
	if err != nil {
		// Marshaling a flat struct of strings cannot fail.
		return []byte(`{"type":"error","error":{"message":"relay error"}}`)
	}
	return data
}
