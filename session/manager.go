// Package session owns the process-local conversation state. Access is
// serialized per conversation key so two webhook deliveries for the same
// chat can never interleave their workflow steps, and idle sessions are
// evicted on a sweep instead of accumulating for the process lifetime.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-commercebot/core"
)

const DefaultTTL = 12 * time.Hour

type entry struct {
	mu      sync.Mutex
	evicted bool
	session core.Session
}

type Manager struct {
	ttl time.Duration
	Now func() time.Time

	mu      sync.Mutex
	entries map[int64]*entry
}

func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		ttl:     ttl,
		Now:     func() time.Time { return time.Now().UTC() },
		entries: map[int64]*entry{},
	}
}

// Do runs fn inside the conversation's critical section. The session is
// created lazily on first contact; fn owns it exclusively until it returns.
func (m *Manager) Do(ctx context.Context, conversationID int64, fn func(session *core.Session) error) error {
	if m == nil {
		return fmt.Errorf("session: manager is nil")
	}
	if fn == nil {
		return fmt.Errorf("session: callback is required")
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	// The sweep may evict an entry between the map fetch and taking its
	// lock; a write against that orphan would be lost. Entries carry an
	// evicted mark so the loser retries against the live map.
	var item *entry
	for {
		m.mu.Lock()
		if m.entries == nil {
			m.entries = map[int64]*entry{}
		}
		var ok bool
		item, ok = m.entries[conversationID]
		if !ok {
			item = &entry{session: core.Session{ConversationID: conversationID}}
			m.entries[conversationID] = item
		}
		m.mu.Unlock()

		item.mu.Lock()
		if !item.evicted {
			break
		}
		item.mu.Unlock()
	}

	defer item.mu.Unlock()
	item.session.LastSeenAt = m.now()
	return fn(&item.session)
}

// Peek returns a copy of the session without touching LastSeenAt; used by
// tests and the expiry sweep to inspect state without extending the lease.
func (m *Manager) Peek(conversationID int64) (core.Session, bool) {
	if m == nil {
		return core.Session{}, false
	}
	m.mu.Lock()
	item, ok := m.entries[conversationID]
	m.mu.Unlock()
	if !ok {
		return core.Session{}, false
	}
	item.mu.Lock()
	defer item.mu.Unlock()
	return item.session, true
}

// EvictIdle drops sessions idle longer than the TTL and reports how many
// were removed. Sessions currently inside Do are skipped: their critical
// section is about to refresh LastSeenAt anyway.
func (m *Manager) EvictIdle(now time.Time) int {
	if m == nil {
		return 0
	}
	cutoff := now.UTC().Add(-m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for conversationID, item := range m.entries {
		if !item.mu.TryLock() {
			continue
		}
		idle := item.session.LastSeenAt.Before(cutoff)
		if idle {
			item.evicted = true
			delete(m.entries, conversationID)
			evicted++
		}
		item.mu.Unlock()
	}
	return evicted
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manager) now() time.Time {
	if m != nil && m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.SessionStore = (*Manager)(nil)
