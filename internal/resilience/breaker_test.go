package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func failingN(n int) func() error {
	var mu sync.Mutex
	return func() error {
		mu.Lock()
		defer mu.Unlock()
		if n > 0 {
			n--
			return errBoom
		}
		return nil
	}
}

func TestBreaker_StaysClosedOnSuccess(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 2})

	for i := 0; i < 10; i++ {
		if err := b.Do(func() error { return nil }); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if got := b.State(); got != BreakerClosed {
		t.Errorf("state = %s; want closed", got)
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 3, Cooldown: time.Hour})

	for i := 0; i < 3; i++ {
		if err := b.Do(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: err = %v; want errBoom", i, err)
		}
	}
	if got := b.State(); got != BreakerOpen {
		t.Fatalf("state = %s; want open", got)
	}

	err := b.Do(func() error {
		t.Error("fn called while breaker open")
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Errorf("err = %v; want ErrOpen", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 3, Cooldown: time.Hour})

	for i := 0; i < 10; i++ {
		_ = b.Do(func() error { return errBoom })
		_ = b.Do(func() error { return errBoom })
		if err := b.Do(func() error { return nil }); err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
	}
	if got := b.State(); got != BreakerClosed {
		t.Errorf("state = %s; want closed", got)
	}
}

func TestBreaker_ProbeClosesAfterCooldown(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 1, Cooldown: 20 * time.Millisecond})

	_ = b.Do(func() error { return errBoom })
	if got := b.State(); got != BreakerOpen {
		t.Fatalf("state = %s; want open", got)
	}

	time.Sleep(30 * time.Millisecond)
	if got := b.State(); got != BreakerHalfOpen {
		t.Fatalf("state = %s; want half-open after cooldown", got)
	}

	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if got := b.State(); got != BreakerClosed {
		t.Errorf("state = %s; want closed after probe", got)
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 1, Cooldown: 20 * time.Millisecond})

	_ = b.Do(func() error { return errBoom })
	time.Sleep(30 * time.Millisecond)

	if err := b.Do(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("probe err = %v; want errBoom", err)
	}
	if got := b.State(); got != BreakerOpen {
		t.Errorf("state = %s; want open after failed probe", got)
	}
	if err := b.Do(func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Errorf("err = %v; want ErrOpen during new cooldown", err)
	}
}

func TestBreaker_SingleProbeAtATime(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 1, Cooldown: 10 * time.Millisecond})

	_ = b.Do(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Go(func() {
		_ = b.Do(func() error {
			close(started)
			<-release
			return nil
		})
	})

	<-started
	if err := b.Do(func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Errorf("second probe err = %v; want ErrOpen", err)
	}
	close(release)
	wg.Wait()

	if got := b.State(); got != BreakerClosed {
		t.Errorf("state = %s; want closed", got)
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 1, Cooldown: time.Hour})

	_ = b.Do(func() error { return errBoom })
	b.Reset()

	called := false
	if err := b.Do(func() error { called = true; return nil }); err != nil {
		t.Fatalf("Do after Reset: %v", err)
	}
	if !called {
		t.Error("fn not called after Reset")
	}
}

func TestBreaker_RecoversRealisticSequence(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{Name: "test", Threshold: 2, Cooldown: 10 * time.Millisecond})
	fn := failingN(2)

	_ = b.Do(fn)
	_ = b.Do(fn)
	if got := b.State(); got != BreakerOpen {
		t.Fatalf("state = %s; want open", got)
	}

	time.Sleep(20 * time.Millisecond)
	if err := b.Do(fn); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if got := b.State(); got != BreakerClosed {
		t.Errorf("state = %s; want closed", got)
	}
}
