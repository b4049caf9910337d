// Package identity tells the vault who the current user is and when that
// changes. A sign-out or a switch to another user must lock the vault.
package identity

import (
	"context"
	"sync"
)

type EventKind int

const (
	SignedIn EventKind = iota + 1
	SignedOut
)

func (k EventKind) String() string {
	switch k {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	default:
		return "unknown"
	}
}

// Event reports a session transition. UserID is empty for SignedOut.
type Event struct {
	Kind   EventKind
	UserID string
}

// Provider supplies the current user and a stream of session transitions.
// The returned cancel func unsubscribes and closes the channel.
type Provider interface {
	Current() (userID string, ok bool)
	Subscribe() (<-chan Event, func())
}

// hub fans events out to subscribers without blocking the publisher. A
// subscriber whose buffer is full loses its oldest event, so the latest
// transition, a sign-out included, is always delivered.
type hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func (h *hub) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 8)

	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[chan Event]struct{})
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *hub) publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
			continue
		default:
		}
		// only publishers send, and they hold mu, so one receive frees a slot
		select {
		case <-ch:
		default:
		}
		ch <- e
	}
}

// Static is a Provider with one fixed user that never signs out on its own.
// It backs the local, account-less mode.
type Static struct {
	mu     sync.RWMutex
	userID string
	hub    hub
}

func NewStatic(userID string) *Static {
	return &Static{userID: userID}
}

func (s *Static) Current() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.userID != ""
}

func (s *Static) Subscribe() (<-chan Event, func()) { return s.hub.subscribe() }

// SignOut ends the fixed session and emits SignedOut so watchers lock,
// e.g. on process shutdown.
func (s *Static) SignOut(context.Context) {
	s.mu.Lock()
	s.userID = ""
	s.mu.Unlock()
	s.hub.publish(Event{Kind: SignedOut})
}
