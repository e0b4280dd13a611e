// Package capture pumps microphone audio and optional camera stills into a
// live session. Audio runs at a fixed 16 kHz mono cadence; muting replaces
// frame contents with silence without pausing the cadence, so the upstream
// voice-activity detection keeps a continuous timeline.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/callpilot/pkg/audio"
	"github.com/MrWong99/callpilot/pkg/provider/live"
)

// ErrPermissionDenied indicates that a capture device could not be acquired,
// typically because the OS denied microphone or camera access.
var ErrPermissionDenied = errors.New("capture: permission denied")

// Default capture format.
const (
	DefaultSampleRate   = 16000
	DefaultFrameSamples = 4096
)

// Device acquires microphone streams.
type Device interface {
	// Open starts capturing. Acquisition failures wrap [ErrPermissionDenied].
	Open(sampleRate, frameSamples int) (Stream, error)
}

// Stream is an open microphone capture stream. Frames carries int16 PCM
// frames until Close; Close is idempotent and closes the frame channel.
type Stream interface {
	Frames() <-chan []int16
	Close() error
}

// Sender receives the captured media frames. Satisfied by live.Session.
type Sender interface {
	SendFrame(f live.Frame) error
}

// Pipeline pumps an open microphone stream into a Sender.
type Pipeline struct {
	stream Stream
	sink   Sender

	muted atomic.Bool

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Attach starts pumping frames from an already-open stream into sink. The
// pipeline owns the stream from this point on and closes it in Stop.
func Attach(stream Stream, sink Sender) *Pipeline {
	p := &Pipeline{stream: stream, sink: sink}
	p.wg.Add(1)
	go p.pump()
	return p
}

func (p *Pipeline) pump() {
	defer p.wg.Done()
	for frame := range p.stream.Frames() {
		if p.muted.Load() {
			frame = make([]int16, len(frame))
		}
		err := p.sink.SendFrame(live.Frame{
			MIMEType: live.MIMEAudioPCM16k,
			Data:     audio.Int16ToBytes(frame),
		})
		if err != nil {
			slog.Debug("capture: dropping mic frame", "error", err)
		}
	}
}

// SetMuted switches between real frames and silence. The frame cadence is
// unaffected.
func (p *Pipeline) SetMuted(muted bool) {
	p.muted.Store(muted)
}

// Muted reports whether the pipeline is currently sending silence.
func (p *Pipeline) Muted() bool {
	return p.muted.Load()
}

// Stop closes the underlying stream and waits for the pump goroutine to
// drain. Idempotent.
func (p *Pipeline) Stop() error {
	var err error
	p.stopOnce.Do(func() {
		if cerr := p.stream.Close(); cerr != nil {
			err = fmt.Errorf("capture: close stream: %w", cerr)
		}
		p.wg.Wait()
	})
	return err
}
