package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/callpilot/internal/call"
	"github.com/MrWong99/callpilot/internal/capture"
	"github.com/MrWong99/callpilot/internal/config"
	"github.com/MrWong99/callpilot/pkg/provider/live/mock"
)

type fakeStream struct {
	frames chan []int16
	once   sync.Once
}

func (s *fakeStream) Frames() <-chan []int16 { return s.frames }
func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.frames) })
	return nil
}

// fakeMic hands out a fresh stream per call, like a real device would.
type fakeMic struct{}

func (fakeMic) Open(sampleRate, frameSamples int) (capture.Stream, error) {
	return &fakeStream{frames: make(chan []int16)}, nil
}

type fakePlayer struct{}

func (fakePlayer) Enqueue(raw []byte) error { return nil }
func (fakePlayer) Interrupt()               {}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Queue.Cooldown = 10 * time.Millisecond
	return cfg
}

func newTestApp(t *testing.T, provider *mock.Provider) *App {
	t.Helper()
	a, err := New(context.Background(), testConfig(),
		WithProvider(provider),
		WithMicrophone(fakeMic{}),
		WithPlayer(fakePlayer{}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestNew_RequiresAPIKeyWithoutInjectedProvider(t *testing.T) {
	cfg := testConfig()
	t.Setenv("GEMINI_API_KEY", "")

	_, err := New(context.Background(), cfg,
		WithMicrophone(fakeMic{}),
		WithPlayer(fakePlayer{}),
	)
	if err == nil {
		t.Fatal("New succeeded without an API key")
	}
}

func TestPlaceCall_UnknownContact(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, &mock.Provider{})

	if err := a.PlaceCall(context.Background(), "contact-999"); err == nil {
		t.Fatal("PlaceCall succeeded for unknown contact")
	}
}

func TestPlaceCall_StartsSession(t *testing.T) {
	t.Parallel()
	provider := &mock.Provider{}
	a := newTestApp(t, provider)

	c, err := a.Contacts.Add("Ada Lovelace", "+4915112345678")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := a.PlaceCall(context.Background(), c.ID); err != nil {
		t.Fatalf("PlaceCall: %v", err)
	}

	if got := a.Controller.State(); got != call.StateActive {
		t.Errorf("state = %s; want active", got)
	}
	calls := provider.Calls()
	if len(calls) != 1 {
		t.Fatalf("connect calls = %d; want 1", len(calls))
	}
	if got := calls[0].Cfg.Voice; got != "Kore" {
		t.Errorf("voice = %q; want config default Kore", got)
	}
}

func TestStartQueue_AdvancesAfterCallEnds(t *testing.T) {
	t.Parallel()
	provider := &mock.Provider{}
	a := newTestApp(t, provider)

	if _, err := a.Contacts.Add("Ada", "+491510000001"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := a.Contacts.Add("Grace", "+491510000002"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := a.StartQueue(context.Background()); err != nil {
		t.Fatalf("StartQueue: %v", err)
	}
	if got := len(provider.Calls()); got != 1 {
		t.Fatalf("connect calls = %d; want 1", got)
	}

	a.Controller.StopCall(false)

	waitFor(t, func() bool { return len(provider.Calls()) == 2 }, "queue never advanced to the second contact")
	if got := provider.Calls()[1].Cfg.SystemPrompt; got == "" {
		t.Error("second call has no system prompt")
	}
}

func TestStopCallDuringCooldown_AbandonsQueue(t *testing.T) {
	t.Parallel()
	provider := &mock.Provider{}
	cfg := testConfig()
	cfg.Queue.Cooldown = 300 * time.Millisecond

	a, err := New(context.Background(), cfg,
		WithProvider(provider),
		WithMicrophone(fakeMic{}),
		WithPlayer(fakePlayer{}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})

	if _, err := a.Contacts.Add("Ada", "+491510000001"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := a.Contacts.Add("Grace", "+491510000002"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := a.StartQueue(context.Background()); err != nil {
		t.Fatalf("StartQueue: %v", err)
	}

	// First call ends normally, starting the cooldown before Grace.
	a.Controller.StopCall(false)
	// A hard stop during the cooldown abandons the rest of the run.
	a.Controller.StopCall(true)

	time.Sleep(400 * time.Millisecond)
	if got := len(provider.Calls()); got != 1 {
		t.Fatalf("connect calls = %d; want 1", got)
	}
	if a.Queue.Running() {
		t.Error("queue still running after hard stop")
	}
	if got := a.Queue.Len(); got != 0 {
		t.Errorf("queue length = %d; want 0", got)
	}
}

func TestStartQueue_EmptyContacts(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, &mock.Provider{})

	if err := a.StartQueue(context.Background()); err == nil {
		t.Fatal("StartQueue succeeded with no contacts")
	}
}

func TestImportContacts(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, &mock.Provider{})

	path := filepath.Join(t.TempDir(), "contacts.csv")
	data := "Ada Lovelace,+4915112345678\nbroken line\nGrace Hopper,+4915187654321\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	n, err := a.ImportContacts(path)
	if err != nil {
		t.Fatalf("ImportContacts: %v", err)
	}
	if n != 2 {
		t.Errorf("imported = %d; want 2", n)
	}
	if got := a.Contacts.Len(); got != 2 {
		t.Errorf("contact count = %d; want 2", got)
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, &mock.Provider{})

	ctx := context.Background()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
