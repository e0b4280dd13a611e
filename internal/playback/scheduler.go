// Package playback schedules model audio for gapless output. Chunks arrive
// faster than real time, so each one is booked onto a timeline cursor: the
// next chunk starts exactly where the previous one ends, never in the past.
package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/callpilot/pkg/audio"
)

// Default model output format.
const (
	DefaultSampleRate = 24000
	DefaultChannels   = 1
)

// Source is one scheduled chunk that can still be cancelled.
type Source interface {
	Stop()
}

// Output is the audio sink the scheduler books chunks onto. The real
// implementation is the PortAudio sink; tests substitute a fake with a
// virtual clock.
type Output interface {
	// Now returns the sink's current time.
	Now() time.Time
	// Schedule books a buffer to start playing at the given time. onDone
	// runs after natural completion, never after Stop.
	Schedule(buf *audio.Buffer, at time.Time, onDone func()) (Source, error)
}

// Scheduler owns the playback timeline: a monotone cursor and the set of
// sources that have been booked but not yet finished.
type Scheduler struct {
	out        Output
	sampleRate int
	channels   int

	mu      sync.Mutex
	cursor  time.Time
	pending map[int]Source
	seq     int
}

// NewScheduler creates a Scheduler booking onto out. sampleRate and channels
// describe the PCM chunks passed to Enqueue.
func NewScheduler(out Output, sampleRate, channels int) *Scheduler {
	return &Scheduler{
		out:        out,
		sampleRate: sampleRate,
		channels:   channels,
		pending:    make(map[int]Source),
	}
}

// Enqueue decodes one raw PCM chunk and books it at max(cursor, now), then
// advances the cursor by the chunk's duration. A malformed chunk returns
// [audio.ErrMalformedPayload] and leaves the timeline untouched.
func (s *Scheduler) Enqueue(raw []byte) error {
	buf, err := audio.BuildBuffer(raw, s.sampleRate, s.channels)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.cursor
	if now := s.out.Now(); now.After(start) {
		start = now
	}

	s.seq++
	id := s.seq
	src, err := s.out.Schedule(buf, start, func() { s.remove(id) })
	if err != nil {
		return fmt.Errorf("playback: schedule chunk: %w", err)
	}
	s.pending[id] = src
	s.cursor = start.Add(buf.Duration())
	return nil
}

func (s *Scheduler) remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
}

// Interrupt stops every pending source, clears the set and resets the cursor
// so the next chunk plays immediately.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[int]Source)
	s.cursor = s.out.Now()
	s.mu.Unlock()

	for _, src := range pending {
		src.Stop()
	}
}

// Pending returns the number of booked-but-unfinished sources.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
