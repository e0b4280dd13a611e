// Package mock provides test doubles for the live package interfaces.
//
// Use Provider to verify Connect calls and feed controlled sessions.
// Use Session to script the event stream and inspect which frames the
// pipeline pushed.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	h, _ := p.Connect(ctx, cfg)
//	sess.Emit(live.Event{Type: live.EventTurnComplete})
//	sess.Finish() // EventClosed + channel close
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/callpilot/pkg/provider/live"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Cfg is the SessionConfig passed to Connect.
	Cfg live.SessionConfig
}

// Provider is a mock implementation of live.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by Connect. If nil, Connect returns a new default
	// Session.
	Session live.Session

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ProviderVoices is returned by Voices.
	ProviderVoices []live.Voice

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Session, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg live.SessionConfig) (live.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return NewSession(), nil
}

// Voices returns ProviderVoices.
func (p *Provider) Voices() []live.Voice {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ProviderVoices
}

// Calls returns a copy of the recorded Connect calls. Thread-safe.
func (p *Provider) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ConnectCall, len(p.ConnectCalls))
	copy(out, p.ConnectCalls)
	return out
}

// Ensure Provider implements live.Provider at compile time.
var _ live.Provider = (*Provider)(nil)

// Session is a scripted implementation of live.Session. Tests push events
// with Emit and end the stream with Finish; frames sent by the code under
// test are recorded for inspection.
type Session struct {
	mu sync.Mutex

	events chan live.Event

	// SendFrameErr, if non-nil, is returned by every SendFrame call.
	SendFrameErr error

	// CloseErr, if non-nil, is returned by the first Close.
	CloseErr error

	frames     []live.Frame
	closeCount int
	finished   bool
}

// NewSession creates a scripted Session with a buffered event channel.
func NewSession() *Session {
	return &Session{events: make(chan live.Event, 64)}
}

// SendFrame records the frame and returns SendFrameErr.
func (s *Session) SendFrame(f live.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(f.Data))
	copy(cp, f.Data)
	s.frames = append(s.frames, live.Frame{MIMEType: f.MIMEType, Data: cp})
	return s.SendFrameErr
}

// Events returns the scripted event channel.
func (s *Session) Events() <-chan live.Event { return s.events }

// Close records the call, then ends the stream the way the real session
// does: the terminal EventClosed is delivered and the event channel closed.
// Idempotent like the real implementations.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closeCount++
	if s.closeCount > 1 {
		s.mu.Unlock()
		return nil
	}
	err := s.CloseErr
	finished := s.finished
	s.finished = true
	s.mu.Unlock()

	if !finished {
		s.events <- live.Event{Type: live.EventClosed}
		close(s.events)
	}
	return err
}

// Emit pushes one event onto the stream.
func (s *Session) Emit(ev live.Event) {
	s.events <- ev
}

// Finish delivers the terminal EventClosed and closes the event channel.
// Safe to call once.
func (s *Session) Finish() {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.mu.Unlock()
	s.events <- live.Event{Type: live.EventClosed}
	close(s.events)
}

// SentFrames returns a copy of all frames pushed via SendFrame. Thread-safe.
func (s *Session) SentFrames() []live.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]live.Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

// CloseCount returns the number of times Close was called. Thread-safe.
func (s *Session) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

// Ensure Session implements live.Session at compile time.
var _ live.Session = (*Session)(nil)
