// Package call implements the call lifecycle controller: one state machine
// that owns the live session, the capture pipelines, the playback scheduler
// and the transcript for a single call at a time.
package call

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/callpilot/internal/capture"
	"github.com/MrWong99/callpilot/internal/contacts"
	"github.com/MrWong99/callpilot/internal/observe"
	"github.com/MrWong99/callpilot/pkg/provider/live"
)

// State is the call lifecycle state.
type State int

const (
	// StateIdle means no call is in progress.
	StateIdle State = iota
	// StateStarting means resources are being acquired and the session is
	// connecting.
	StateStarting
	// StateActive means the duplex conversation is running.
	StateActive
	// StateEnding means teardown is in progress.
	StateEnding
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	default:
		return "unknown"
	}
}

// Transition describes one state change. ClearQueue is set on transitions
// into StateIdle that must also abandon any queued follow-up calls, e.g.
// after a fatal session error or an explicit stop-everything request.
type Transition struct {
	From       State
	To         State
	ClearQueue bool
}

// Speaker identifies who produced a transcript turn.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerModel Speaker = "model"
)

// Rating is an optional per-turn quality mark.
type Rating string

const (
	RatingNone Rating = ""
	RatingGood Rating = "good"
	RatingBad  Rating = "bad"
)

// Turn is one committed transcript entry.
type Turn struct {
	ID        string
	Speaker   Speaker
	Text      string
	Timestamp time.Time
	Rating    Rating
}

// Snapshot is a consistent copy of the controller's observable state.
type Snapshot struct {
	State        State
	Contact      *contacts.Contact
	Muted        bool
	VideoEnabled bool
	// DurationSeconds counts whole seconds the call has been active.
	DurationSeconds int
	Transcript      []Turn
	// LastError is the most recent user-visible error message. Cleared
	// when a new call starts.
	LastError string
}

// Player schedules model audio for output. Satisfied by
// playback.Scheduler.
type Player interface {
	Enqueue(raw []byte) error
	Interrupt()
}

// Config holds the controller's collaborators.
type Config struct {
	// Provider opens live sessions.
	Provider live.Provider

	// Mic acquires microphone streams.
	Mic capture.Device

	// Player schedules model audio for playback.
	Player Player

	// Camera acquires a camera for video calls. Called on every video
	// toggle-on; nil disables video entirely.
	Camera func() (capture.FrameGrabber, error)

	// SampleRate and FrameSamples describe the microphone format.
	// Zero values use the capture defaults.
	SampleRate   int
	FrameSamples int

	// VideoInterval is the camera still cadence. Zero uses the default.
	VideoInterval time.Duration

	// Metrics is optional; nil disables instrumentation.
	Metrics *observe.Metrics
}

// Controller drives one call at a time through
// Idle → Starting → Active → Ending → Idle. All exported methods are safe
// for concurrent use, and teardown is idempotent: every exit path (explicit
// stop, session error, remote close) funnels through the same routine.
type Controller struct {
	provider      live.Provider
	mic           capture.Device
	player        Player
	camera        func() (capture.FrameGrabber, error)
	sampleRate    int
	frameSamples  int
	videoInterval time.Duration
	metrics       *observe.Metrics

	mu           sync.Mutex
	state        State
	contact      *contacts.Contact
	muted        bool
	videoEnabled bool
	duration     int
	transcript   []Turn
	lastErr      string
	userBuf      string
	modelBuf     string
	turnSeq      int

	session  live.Session
	pipeline *capture.Pipeline
	video    *capture.VideoPipeline
	done     chan struct{}

	// closers run in reverse order during teardown.
	closers []func() error

	onTransition func(Transition)

	wg sync.WaitGroup
}

// New creates a Controller from cfg.
func New(cfg Config) *Controller {
	c := &Controller{
		provider:      cfg.Provider,
		mic:           cfg.Mic,
		player:        cfg.Player,
		camera:        cfg.Camera,
		sampleRate:    cfg.SampleRate,
		frameSamples:  cfg.FrameSamples,
		videoInterval: cfg.VideoInterval,
		metrics:       cfg.Metrics,
	}
	if c.sampleRate <= 0 {
		c.sampleRate = capture.DefaultSampleRate
	}
	if c.frameSamples <= 0 {
		c.frameSamples = capture.DefaultFrameSamples
	}
	if c.videoInterval <= 0 {
		c.videoInterval = capture.DefaultVideoInterval
	}
	return c
}

// OnTransition registers the state change listener. Must be called before
// the first StartCall; the listener runs outside the controller lock.
func (c *Controller) OnTransition(fn func(Transition)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTransition = fn
}

// StartCall acquires the microphone, connects a live session and moves the
// controller to StateActive. It fails when a call is already in progress.
// Permission failures surface as capture.ErrPermissionDenied, transport
// failures as live.ErrConnection; both leave the controller back in
// StateIdle with every partially acquired resource released.
func (c *Controller) StartCall(ctx context.Context, contact contacts.Contact, voice string) error {
	ctx, span := observe.StartSpan(ctx, "call.start")
	defer span.End()

	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("call: a call is already in progress (state=%s)", state)
	}
	c.state = StateStarting
	c.contact = &contact
	c.transcript = nil
	c.duration = 0
	c.lastErr = ""
	c.userBuf = ""
	c.modelBuf = ""
	c.mu.Unlock()
	c.fireTransition(StateIdle, StateStarting, false)

	stream, err := c.mic.Open(c.sampleRate, c.frameSamples)
	if err != nil {
		return c.failStart(ctx, fmt.Errorf("call: open microphone: %w", err))
	}

	sess, err := c.provider.Connect(ctx, live.SessionConfig{
		Voice:            voice,
		SystemPrompt:     systemPrompt(contact),
		TranscribeInput:  true,
		TranscribeOutput: true,
	})
	if err != nil {
		_ = stream.Close()
		return c.failStart(ctx, fmt.Errorf("call: connect session: %w", err))
	}

	pipeline := capture.Attach(stream, c.outbound(sess))
	done := make(chan struct{})

	c.mu.Lock()
	if c.state != StateStarting {
		// StopCall won the race while the session was connecting.
		c.mu.Unlock()
		_ = pipeline.Stop()
		_ = sess.Close()
		return fmt.Errorf("call: call stopped while starting")
	}
	c.state = StateActive
	c.session = sess
	c.pipeline = pipeline
	c.done = done
	c.closers = []func() error{sess.Close, pipeline.Stop}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordCallStarted(ctx, "ok")
		c.metrics.ActiveCalls.Add(ctx, 1)
	}
	observe.Logger(ctx).Info("call started",
		"contact", contact.Name,
		"phone", contact.Phone,
		"voice", voice,
	)
	c.fireTransition(StateStarting, StateActive, false)

	c.wg.Add(2)
	go c.eventLoop(sess)
	go c.tick(done)
	return nil
}

// failStart records the error, returns the controller to StateIdle and
// reports the failed attempt.
func (c *Controller) failStart(ctx context.Context, err error) error {
	c.mu.Lock()
	c.lastErr = err.Error()
	c.contact = nil
	c.state = StateIdle
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordCallStarted(ctx, "error")
	}
	observe.Logger(ctx).Error("call start failed", "error", err)
	c.fireTransition(StateStarting, StateIdle, false)
	return err
}

// systemPrompt builds the session instruction naming the contact.
func systemPrompt(contact contacts.Contact) string {
	return fmt.Sprintf(
		"You are a friendly and helpful business assistant on a live voice call with %s, whose contact number is %s. Keep your responses short and conversational.",
		contact.Name, contact.Phone,
	)
}

// outbound wraps the session for the capture pipeline, counting microphone
// frames when metrics are enabled.
func (c *Controller) outbound(sess live.Session) capture.Sender {
	if c.metrics == nil {
		return sess
	}
	return countingSender{sink: sess, metrics: c.metrics}
}

type countingSender struct {
	sink    capture.Sender
	metrics *observe.Metrics
}

func (s countingSender) SendFrame(f live.Frame) error {
	err := s.sink.SendFrame(f)
	if err == nil && f.MIMEType == live.MIMEAudioPCM16k {
		s.metrics.AudioChunksIn.Add(context.Background(), 1)
	}
	return err
}

// eventLoop is the single ordered consumer of the session's event stream.
// Processing everything on one goroutine keeps transcripts, turn boundaries,
// audio and interruptions coherent.
func (c *Controller) eventLoop(sess live.Session) {
	defer c.wg.Done()

	for ev := range sess.Events() {
		switch ev.Type {
		case live.EventInputTranscript:
			c.mu.Lock()
			c.userBuf += ev.Text
			c.mu.Unlock()
		case live.EventOutputTranscript:
			c.mu.Lock()
			c.modelBuf += ev.Text
			c.mu.Unlock()
		case live.EventTurnComplete:
			c.commitTurns()
		case live.EventAudioChunk:
			if err := c.player.Enqueue(ev.Audio); err != nil {
				// A malformed chunk aborts only itself.
				slog.Warn("call: dropping audio chunk", "error", err)
			} else if c.metrics != nil {
				c.metrics.AudioChunksOut.Add(context.Background(), 1)
			}
		case live.EventInterrupted:
			c.player.Interrupt()
		case live.EventError:
			slog.Error("call: session error", "error", ev.Text)
			if c.metrics != nil {
				c.metrics.SessionErrors.Add(context.Background(), 1)
			}
			c.stop(ev.Text, true)
		case live.EventClosed:
			// Remote hangup: tear down silently and let the queue move on.
			c.stop("", false)
		}
	}
	// The channel closing is authoritative: tear down even if the terminal
	// event was lost to a full buffer.
	c.stop("", false)
}

// commitTurns flushes the accumulated transcript fragments into committed
// turns: the user's side first, then the model's. Whitespace-only turns are
// dropped.
func (c *Controller) commitTurns() {
	c.mu.Lock()
	defer c.mu.Unlock()

	user := strings.TrimSpace(c.userBuf)
	model := strings.TrimSpace(c.modelBuf)
	c.userBuf = ""
	c.modelBuf = ""

	now := time.Now()
	if user != "" {
		c.turnSeq++
		c.transcript = append(c.transcript, Turn{
			ID:        fmt.Sprintf("user-%d-%d", now.UnixMilli(), c.turnSeq),
			Speaker:   SpeakerUser,
			Text:      user,
			Timestamp: now,
		})
	}
	if model != "" {
		c.turnSeq++
		c.transcript = append(c.transcript, Turn{
			ID:        fmt.Sprintf("model-%d-%d", now.UnixMilli(), c.turnSeq),
			Speaker:   SpeakerModel,
			Text:      model,
			Timestamp: now,
		})
	}
}

// tick counts whole active seconds until the call ends.
func (c *Controller) tick(done chan struct{}) {
	defer c.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.state == StateActive {
				c.duration++
			}
			c.mu.Unlock()
		}
	}
}

// StopCall tears the current call down. Safe to call at any time, from any
// state, any number of times; clearQueue additionally abandons queued
// follow-up calls, even when no call is in flight.
func (c *Controller) StopCall(clearQueue bool) {
	c.stop("", clearQueue)
}

// stop is the single teardown routine. errMsg, when non-empty, becomes the
// user-visible error. Redundant calls are no-ops.
func (c *Controller) stop(errMsg string, clearQueue bool) {
	c.mu.Lock()
	if c.state == StateIdle || c.state == StateEnding {
		state := c.state
		c.mu.Unlock()
		// A queue-clearing stop must reach the listener even between
		// calls, so a dial scheduled during the cooldown is cancelled.
		if clearQueue && state == StateIdle {
			c.fireTransition(StateIdle, StateIdle, true)
		}
		return
	}
	from := c.state
	c.state = StateEnding

	video := c.video
	done := c.done
	closers := c.closers
	contact := c.contact
	dur := c.duration
	c.session = nil
	c.pipeline = nil
	c.video = nil
	c.done = nil
	c.closers = nil
	if errMsg != "" {
		c.lastErr = errMsg
	}
	c.mu.Unlock()
	c.fireTransition(from, StateEnding, false)

	if done != nil {
		close(done)
	}
	if video != nil {
		if err := video.Stop(); err != nil {
			slog.Warn("call: video stop error", "error", err)
		}
	}
	c.player.Interrupt()
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			slog.Warn("call: closer error", "index", i, "error", err)
		}
	}

	if c.metrics != nil && from == StateActive {
		ctx := context.Background()
		c.metrics.ActiveCalls.Add(ctx, -1)
		c.metrics.RecordCallFinished(ctx, float64(dur))
	}
	name := ""
	if contact != nil {
		name = contact.Name
	}
	slog.Info("call ended",
		"contact", name,
		"duration_s", dur,
		"clear_queue", clearQueue,
		"error", errMsg,
	)

	c.mu.Lock()
	c.state = StateIdle
	c.contact = nil
	c.muted = false
	c.videoEnabled = false
	c.mu.Unlock()
	c.fireTransition(StateEnding, StateIdle, clearQueue)
}

// Transfer hands the call off to a human operator: the automated call ends
// and the queue is abandoned so the operator keeps control.
func (c *Controller) Transfer() {
	c.stop("", true)
}

// ToggleMute flips the microphone between live audio and silence. Only
// meaningful while a call is active.
func (c *Controller) ToggleMute() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive || c.pipeline == nil {
		return c.muted
	}
	c.muted = !c.muted
	c.pipeline.SetMuted(c.muted)
	return c.muted
}

// ToggleVideo starts or stops the camera still cadence. A camera failure is
// surfaced as an error and recorded, but the audio call keeps running.
func (c *Controller) ToggleVideo() error {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return fmt.Errorf("call: no active call")
	}
	if c.videoEnabled {
		video := c.video
		c.video = nil
		c.videoEnabled = false
		c.mu.Unlock()
		if video != nil {
			return video.Stop()
		}
		return nil
	}
	if c.camera == nil {
		c.mu.Unlock()
		return fmt.Errorf("call: no camera configured")
	}
	sess := c.session
	c.mu.Unlock()

	grabber, err := c.camera()
	if err != nil {
		err = fmt.Errorf("call: acquire camera: %w", err)
		c.setLastErr(err)
		return err
	}
	video, err := capture.StartVideo(grabber, sess, c.videoInterval)
	if err != nil {
		_ = grabber.Close()
		err = fmt.Errorf("call: start video: %w", err)
		c.setLastErr(err)
		return err
	}

	c.mu.Lock()
	if c.state != StateActive {
		// The call ended while the camera was warming up.
		c.mu.Unlock()
		return video.Stop()
	}
	c.video = video
	c.videoEnabled = true
	c.mu.Unlock()
	return nil
}

func (c *Controller) setLastErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err.Error()
}

// RateTurn marks a transcript turn with a rating. Applying the same rating
// twice clears it. Unknown IDs are a no-op.
func (c *Controller) RateTurn(id string, rating Rating) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.transcript {
		if c.transcript[i].ID != id {
			continue
		}
		if c.transcript[i].Rating == rating {
			c.transcript[i].Rating = RatingNone
		} else {
			c.transcript[i].Rating = rating
		}
		return
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a consistent copy of the observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:           c.state,
		Muted:           c.muted,
		VideoEnabled:    c.videoEnabled,
		DurationSeconds: c.duration,
		LastError:       c.lastErr,
		Transcript:      make([]Turn, len(c.transcript)),
	}
	copy(snap.Transcript, c.transcript)
	if c.contact != nil {
		contact := *c.contact
		snap.Contact = &contact
	}
	return snap
}

// Close tears down any in-flight call and waits for the controller's
// goroutines to drain. For process shutdown.
func (c *Controller) Close() error {
	c.stop("", true)
	c.wg.Wait()
	return nil
}

func (c *Controller) fireTransition(from, to State, clearQueue bool) {
	c.mu.Lock()
	fn := c.onTransition
	c.mu.Unlock()
	if fn != nil {
		fn(Transition{From: from, To: to, ClearQueue: clearQueue})
	}
}

// FormatDuration renders whole seconds as MM:SS for display.
func FormatDuration(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
