// Package live defines the provider abstraction for realtime speech-to-speech
// conversation backends. A Provider opens duplex streaming sessions: the
// client pushes media frames up, and the backend's responses arrive on a
// single ordered event channel.
package live

import (
	"context"
	"errors"
)

// ErrConnection indicates that a streaming session could not be established
// or was lost at the transport level.
var ErrConnection = errors.New("live: connection error")

// MIME types accepted by SendFrame.
const (
	MIMEAudioPCM16k = "audio/pcm;rate=16000"
	MIMEImageJPEG   = "image/jpeg"
)

// EventType discriminates the events a session emits.
type EventType int

const (
	// EventInputTranscript carries a partial transcript fragment of the
	// user's speech.
	EventInputTranscript EventType = iota
	// EventOutputTranscript carries a partial transcript fragment of the
	// model's synthesized speech.
	EventOutputTranscript
	// EventTurnComplete marks the end of a conversational turn.
	EventTurnComplete
	// EventAudioChunk carries raw PCM audio synthesized by the model.
	EventAudioChunk
	// EventInterrupted signals that the model's current response was cut
	// off, typically by the user speaking over it.
	EventInterrupted
	// EventError reports a fatal session error. The session is unusable
	// afterwards; EventClosed follows.
	EventError
	// EventClosed is the final event on every session. The event channel
	// is closed immediately after it is delivered.
	EventClosed
)

// String returns the event type name for logging.
func (t EventType) String() string {
	switch t {
	case EventInputTranscript:
		return "inputTranscript"
	case EventOutputTranscript:
		return "outputTranscript"
	case EventTurnComplete:
		return "turnComplete"
	case EventAudioChunk:
		return "audioChunk"
	case EventInterrupted:
		return "interrupted"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is a single session event. Text is set for transcript fragments and
// error messages; Audio is set for audio chunks.
type Event struct {
	Type  EventType
	Text  string
	Audio []byte
}

// Frame is a media chunk pushed to the backend. MIMEType must be one of the
// MIME* constants.
type Frame struct {
	MIMEType string
	Data     []byte
}

// Voice describes a synthesized voice offered by a provider.
type Voice struct {
	ID   string
	Name string
}

// SessionConfig carries the per-session parameters passed to Connect.
type SessionConfig struct {
	// Voice selects the synthesized voice by ID. Empty means provider default.
	Voice string
	// SystemPrompt is the session-level instruction text.
	SystemPrompt string
	// TranscribeInput enables partial transcripts of the user's speech.
	TranscribeInput bool
	// TranscribeOutput enables partial transcripts of the model's speech.
	TranscribeOutput bool
}

// Session is a live duplex streaming session.
//
// Events delivers every session event in the exact order the backend produced
// them; consuming from a single goroutine therefore observes transcripts,
// turn boundaries, audio and interruptions in a coherent sequence. The
// channel is closed after EventClosed.
type Session interface {
	// SendFrame pushes a media frame to the backend. It fails once the
	// session is closed.
	SendFrame(f Frame) error
	// Events returns the session's ordered event stream.
	Events() <-chan Event
	// Close terminates the session. Idempotent; safe to call concurrently
	// with event consumption.
	Close() error
}

// Provider opens live sessions against one backend.
type Provider interface {
	// Connect establishes a new session. Transport failures wrap
	// [ErrConnection].
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)
	// Voices lists the voices the backend offers.
	Voices() []Voice
}
