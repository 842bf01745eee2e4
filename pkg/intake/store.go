package intake

import (
	"errors"
	"sync"
	"time"
)

// ErrMissingFormData is returned when no draft exists for a session. The
// client must return to data entry.
var ErrMissingFormData = errors.New("intake: form data missing")

// Store keeps validated drafts keyed by session ID.
type Store interface {
	Put(sessionID string, form FormData) error
	Get(sessionID string) (FormData, error)
	Delete(sessionID string) error
}

type draft struct {
	form    FormData
	expires time.Time
}

// MemoryStore is an in-process Store whose drafts expire after a TTL.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.RWMutex
	drafts map[string]draft
}

// NewMemoryStore creates a store. ttl <= 0 keeps drafts forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:    ttl,
		now:    time.Now,
		drafts: make(map[string]draft),
	}
}

// Put stores a draft, replacing any existing one.
func (s *MemoryStore) Put(sessionID string, form FormData) error {
	if sessionID == "" {
		return errors.New("intake: session id required")
	}
	d := draft{form: form}
	if s.ttl > 0 {
		d.expires = s.now().Add(s.ttl)
	}
	s.mu.Lock()
	s.drafts[sessionID] = d
	s.mu.Unlock()
	return nil
}

// Get returns the draft or ErrMissingFormData.
func (s *MemoryStore) Get(sessionID string) (FormData, error) {
	s.mu.RLock()
	d, ok := s.drafts[sessionID]
	s.mu.RUnlock()
	if !ok || s.expired(d) {
		return FormData{}, ErrMissingFormData
	}
	return d.form, nil
}

// Delete removes a draft. Deleting a missing draft is not an error.
func (s *MemoryStore) Delete(sessionID string) error {
	s.mu.Lock()
	delete(s.drafts, sessionID)
	s.mu.Unlock()
	return nil
}

// Sweep drops expired drafts and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, d := range s.drafts {
		if s.expired(d) {
			delete(s.drafts, id)
			n++
		}
	}
	return n
}

// Len returns the number of stored drafts, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.drafts)
}

func (s *MemoryStore) expired(d draft) bool {
	return !d.expires.IsZero() && !s.now().Before(d.expires)
}
