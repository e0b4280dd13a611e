package playback_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/callpilot/internal/playback"
	"github.com/MrWong99/callpilot/pkg/audio"
)

// fakeOutput records bookings against a virtual clock the test controls.
type fakeOutput struct {
	mu       sync.Mutex
	now      time.Time
	bookings []booking
}

type booking struct {
	at     time.Time
	dur    time.Duration
	src    *fakeSource
	onDone func()
}

type fakeSource struct {
	mu      sync.Mutex
	stopped bool
}

func (s *fakeSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *fakeSource) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{now: time.Unix(1000, 0)}
}

func (o *fakeOutput) Now() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *fakeOutput) advance(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now = o.now.Add(d)
}

func (o *fakeOutput) Schedule(buf *audio.Buffer, at time.Time, onDone func()) (playback.Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	src := &fakeSource{}
	o.bookings = append(o.bookings, booking{at: at, dur: buf.Duration(), src: src, onDone: onDone})
	return src, nil
}

func (o *fakeOutput) booked() []booking {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]booking, len(o.bookings))
	copy(out, o.bookings)
	return out
}

// chunk returns raw mono PCM lasting d at the given rate.
func chunk(rate int, d time.Duration) []byte {
	n := int(time.Duration(rate) * d / time.Second)
	return make([]byte, n*2)
}

func TestEnqueue_GaplessBackToBack(t *testing.T) {
	t.Parallel()

	out := newFakeOutput()
	s := playback.NewScheduler(out, 24000, 1)

	// Three 100ms chunks enqueued immediately after one another.
	for range 3 {
		if err := s.Enqueue(chunk(24000, 100*time.Millisecond)); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	b := out.booked()
	if len(b) != 3 {
		t.Fatalf("bookings = %d; want 3", len(b))
	}
	start := out.Now()
	for i, bk := range b {
		want := start.Add(time.Duration(i) * 100 * time.Millisecond)
		if !bk.at.Equal(want) {
			t.Errorf("booking %d at %v; want %v", i, bk.at, want)
		}
	}
	if s.Pending() != 3 {
		t.Errorf("Pending = %d; want 3", s.Pending())
	}
}

func TestEnqueue_CursorNeverInThePast(t *testing.T) {
	t.Parallel()

	out := newFakeOutput()
	s := playback.NewScheduler(out, 24000, 1)

	if err := s.Enqueue(chunk(24000, 50*time.Millisecond)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Simulate a long silence: the clock moves well past the cursor.
	out.advance(10 * time.Second)

	if err := s.Enqueue(chunk(24000, 50*time.Millisecond)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	b := out.booked()
	if !b[1].at.Equal(out.Now()) {
		t.Errorf("late chunk booked at %v; want now (%v)", b[1].at, out.Now())
	}
}

func TestEnqueue_MalformedChunkLeavesTimelineUntouched(t *testing.T) {
	t.Parallel()

	out := newFakeOutput()
	s := playback.NewScheduler(out, 24000, 1)

	if err := s.Enqueue(chunk(24000, 100*time.Millisecond)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := s.Enqueue([]byte{1, 2, 3}); !errors.Is(err, audio.ErrMalformedPayload) {
		t.Fatalf("Enqueue(malformed) error = %v; want ErrMalformedPayload", err)
	}
	if err := s.Enqueue(chunk(24000, 100*time.Millisecond)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	b := out.booked()
	if len(b) != 2 {
		t.Fatalf("bookings = %d; want 2 (bad chunk skipped)", len(b))
	}
	if want := b[0].at.Add(100 * time.Millisecond); !b[1].at.Equal(want) {
		t.Errorf("second chunk at %v; want %v (no gap from bad chunk)", b[1].at, want)
	}
}

func TestInterrupt_StopsAllAndResetsCursor(t *testing.T) {
	t.Parallel()

	out := newFakeOutput()
	s := playback.NewScheduler(out, 24000, 1)

	for range 3 {
		if err := s.Enqueue(chunk(24000, 200*time.Millisecond)); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	s.Interrupt()

	for i, bk := range out.booked() {
		if !bk.src.Stopped() {
			t.Errorf("source %d not stopped by Interrupt", i)
		}
	}
	if s.Pending() != 0 {
		t.Errorf("Pending = %d; want 0 after Interrupt", s.Pending())
	}

	// The next chunk starts immediately, not after the cancelled backlog.
	if err := s.Enqueue(chunk(24000, 100*time.Millisecond)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	b := out.booked()
	if !b[len(b)-1].at.Equal(out.Now()) {
		t.Errorf("post-interrupt chunk at %v; want now (%v)", b[len(b)-1].at, out.Now())
	}
}

func TestNaturalCompletion_RemovesFromPending(t *testing.T) {
	t.Parallel()

	out := newFakeOutput()
	s := playback.NewScheduler(out, 24000, 1)

	if err := s.Enqueue(chunk(24000, 100*time.Millisecond)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := s.Enqueue(chunk(24000, 100*time.Millisecond)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Simulate the first chunk finishing naturally.
	out.booked()[0].onDone()

	if s.Pending() != 1 {
		t.Errorf("Pending = %d; want 1 after one completion", s.Pending())
	}
}

func TestEnqueue_StereoFormat(t *testing.T) {
	t.Parallel()

	out := newFakeOutput()
	s := playback.NewScheduler(out, 48000, 2)

	// 100ms of 48kHz stereo: 4800 frames * 4 bytes.
	raw := make([]byte, 4800*4)
	if err := s.Enqueue(raw); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	b := out.booked()
	if b[0].dur != 100*time.Millisecond {
		t.Errorf("duration = %v; want 100ms", b[0].dur)
	}
}
