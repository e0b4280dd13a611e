// Package queue sequences outbound calls over a list of contacts. The
// manager never polls: it reacts to explicit lifecycle transitions from the
// call controller, advancing to the next contact after a cooldown whenever a
// call ends without abandoning the queue.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/callpilot/internal/call"
	"github.com/MrWong99/callpilot/internal/contacts"
	"github.com/MrWong99/callpilot/internal/observe"
)

// ErrEmptyQueue is returned by Start when there is nothing to call.
var ErrEmptyQueue = errors.New("queue: no contacts queued")

// DefaultCooldown is the pause between a call ending and the next one
// being dialed.
const DefaultCooldown = 2 * time.Second

// Dialer starts a call to one contact. Satisfied by call.Controller.
type Dialer interface {
	StartCall(ctx context.Context, contact contacts.Contact, voice string) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithCooldown overrides the pause between consecutive calls.
func WithCooldown(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.cooldown = d
		}
	}
}

// WithMetrics attaches metric instruments to the manager.
func WithMetrics(metrics *observe.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// Manager holds the ordered list of contacts still to be called and drives
// the dialer through them. All methods are safe for concurrent use.
//
// Wire HandleTransition as the controller's transition listener; the manager
// only ever dials in response to a transition into the idle state.
type Manager struct {
	dialer   Dialer
	cooldown time.Duration
	metrics  *observe.Metrics

	mu      sync.Mutex
	items   []contacts.Contact
	running bool
	voice   string
	ctx     context.Context
	timer   *time.Timer
}

// New creates a Manager that dials through d.
func New(d Dialer, opts ...Option) *Manager {
	m := &Manager{
		dialer:   d,
		cooldown: DefaultCooldown,
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Enqueue appends contacts to the end of the queue.
func (m *Manager) Enqueue(cs ...contacts.Contact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, cs...)
}

// Items returns a copy of the queued contacts in call order.
func (m *Manager) Items() []contacts.Contact {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]contacts.Contact, len(m.items))
	copy(out, m.items)
	return out
}

// Len returns the number of queued contacts.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Remove drops the contact with the given ID from the queue. Unknown IDs
// are a no-op.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.items {
		if c.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return
		}
	}
}

// Reorder moves the contact with the given ID to position index, clamping
// the index to the queue bounds. Unknown IDs are a no-op.
func (m *Manager) Reorder(id string, index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	from := -1
	for i, c := range m.items {
		if c.ID == id {
			from = i
			break
		}
	}
	if from == -1 {
		return
	}
	c := m.items[from]
	m.items = append(m.items[:from], m.items[from+1:]...)
	if index < 0 {
		index = 0
	}
	if index > len(m.items) {
		index = len(m.items)
	}
	m.items = append(m.items[:index], append([]contacts.Contact{c}, m.items[index:]...)...)
}

// Clear empties the queue without touching a call in progress.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = nil
}

// Running reports whether the manager is working through the queue.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Start begins working through the queue: the first contact is dialed
// immediately with the given voice, and every later one follows via
// HandleTransition. ctx bounds all dials of this run. Returns ErrEmptyQueue
// when nothing is queued.
func (m *Manager) Start(ctx context.Context, voice string) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("queue: already running")
	}
	if len(m.items) == 0 {
		m.mu.Unlock()
		return ErrEmptyQueue
	}
	next := m.items[0]
	m.items = m.items[1:]
	m.running = true
	m.voice = voice
	m.ctx = ctx
	m.mu.Unlock()

	return m.dial(ctx, next, voice)
}

// Stop abandons the run: a pending cooldown is cancelled and no further
// contacts are dialed. Queued contacts stay queued.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// HandleTransition reacts to one controller state change. Only transitions
// into the idle state matter: with ClearQueue set the whole run is abandoned
// and the queue emptied, otherwise the next contact is scheduled after the
// cooldown.
func (m *Manager) HandleTransition(tr call.Transition) {
	if tr.To != call.StateIdle {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if tr.ClearQueue {
		if n := len(m.items); n > 0 {
			slog.Info("queue: run abandoned", "dropped", n)
		}
		m.items = nil
		m.running = false
		if m.timer != nil {
			m.timer.Stop()
			m.timer = nil
		}
		return
	}
	if !m.running {
		return
	}
	if len(m.items) == 0 {
		m.running = false
		return
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.cooldown, m.advance)
}

// advance dials the next queued contact. Runs on the cooldown timer's
// goroutine.
func (m *Manager) advance() {
	m.mu.Lock()
	if !m.running || len(m.items) == 0 {
		m.running = false
		m.timer = nil
		m.mu.Unlock()
		return
	}
	next := m.items[0]
	m.items = m.items[1:]
	voice := m.voice
	ctx := m.ctx
	m.timer = nil
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.QueueAdvances.Add(ctx, 1)
	}
	if err := m.dial(ctx, next, voice); err != nil {
		// The failed start emits its own idle transition, which brings
		// us back here for the next contact.
		slog.Warn("queue: dial failed", "contact", next.Name, "error", err)
	}
}

func (m *Manager) dial(ctx context.Context, c contacts.Contact, voice string) error {
	slog.Info("queue: dialing", "contact", c.Name, "phone", c.Phone)
	return m.dialer.StartCall(ctx, c, voice)
}
