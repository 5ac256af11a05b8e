package consent

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-node deployments.
// Expiry is enforced at read time and a background goroutine reclaims
// expired entries so memory does not grow with dead grants.
type MemoryStore struct {
	mu         sync.RWMutex
	grants     map[string]*Grant
	patientIDs map[string][]string // patientID -> grant ids
	now        func() time.Time
	done       chan struct{}
	closeOnce  sync.Once
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		grants:     make(map[string]*Grant),
		patientIDs: make(map[string][]string),
		now:        time.Now,
		done:       make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

func (s *MemoryStore) Put(_ context.Context, grant *Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *grant
	copied.Scope = append([]Scope(nil), grant.Scope...)
	if _, exists := s.grants[grant.ID]; !exists {
		s.patientIDs[grant.PatientID] = append(s.patientIDs[grant.PatientID], grant.ID)
	}
	s.grants[grant.ID] = &copied
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grant, ok := s.grants[id]
	if !ok || grant.Expired(s.now()) {
		// Expired and never-existed are indistinguishable on purpose.
		return nil, ErrConsentNotFound
	}
	copied := *grant
	copied.Scope = append([]Scope(nil), grant.Scope...)
	return &copied, nil
}

func (s *MemoryStore) Revoke(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant, ok := s.grants[id]
	if !ok || grant.Expired(s.now()) {
		return false, nil
	}
	grant.Revoked = true
	return true, nil
}

func (s *MemoryStore) IsRevoked(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grant, ok := s.grants[id]
	if !ok || grant.Expired(s.now()) {
		return false, nil
	}
	return grant.Revoked, nil
}

func (s *MemoryStore) GrantIDsByPatient(_ context.Context, patientID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.patientIDs[patientID]...), nil
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup removes grants past their natural expiry, mirroring the TTL
// reclamation a key-value backend performs on its own.
func (s *MemoryStore) cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, grant := range s.grants {
		if !grant.Expired(now) {
			continue
		}
		delete(s.grants, id)

		ids := s.patientIDs[grant.PatientID]
		for i, gid := range ids {
			if gid == id {
				s.patientIDs[grant.PatientID] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		if len(s.patientIDs[grant.PatientID]) == 0 {
			delete(s.patientIDs, grant.PatientID)
		}
	}
}
