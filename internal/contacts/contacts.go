// Package contacts maintains the in-memory contact book the call queue is
// built from. Nothing is persisted beyond the process lifetime.
package contacts

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrValidation is returned when a contact fails validation, e.g. an empty
// name or phone number.
var ErrValidation = errors.New("contacts: validation failed")

// Contact is one dialable entry.
type Contact struct {
	ID    string
	Name  string
	Phone string
}

// List is a thread-safe ordered contact collection.
type List struct {
	mu       sync.Mutex
	contacts []Contact
	seq      int
}

// NewList creates an empty contact list.
func NewList() *List {
	return &List{}
}

// Add validates and appends a contact. Name and phone are trimmed; either
// being empty is an [ErrValidation].
func (l *List) Add(name, phone string) (Contact, error) {
	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)
	if name == "" {
		return Contact{}, fmt.Errorf("%w: name is empty", ErrValidation)
	}
	if phone == "" {
		return Contact{}, fmt.Errorf("%w: phone is empty", ErrValidation)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	c := Contact{
		ID:    fmt.Sprintf("contact-%d", l.seq),
		Name:  name,
		Phone: phone,
	}
	l.contacts = append(l.contacts, c)
	return c, nil
}

// Remove deletes the contact with the given ID. Unknown IDs are a no-op.
func (l *List) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, c := range l.contacts {
		if c.ID == id {
			l.contacts = append(l.contacts[:i], l.contacts[i+1:]...)
			return
		}
	}
}

// Clear removes all contacts.
func (l *List) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.contacts = nil
}

// Get returns the contact with the given ID.
func (l *List) Get(id string) (Contact, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.contacts {
		if c.ID == id {
			return c, true
		}
	}
	return Contact{}, false
}

// All returns a copy of the contacts in insertion order.
func (l *List) All() []Contact {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Contact, len(l.contacts))
	copy(out, l.contacts)
	return out
}

// Len returns the number of contacts.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.contacts)
}
