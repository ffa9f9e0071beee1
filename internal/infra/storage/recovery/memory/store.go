// Package memory provides an in-memory recovery store for tests and
// development environments where persistence across restarts is not needed.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/opensoc/runwatch/internal/domain/analysis"
)

var _ analysis.RecoveryStore = (*Store)(nil)

type entry struct {
	showCompleted bool
	terminal      *analysis.RunSnapshot
}

// Store is an in-memory analysis.RecoveryStore.
type Store struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*entry
}

// NewStore creates an empty in-memory recovery store.
func NewStore() *Store {
	return &Store{entries: make(map[uuid.UUID]*entry)}
}

func (s *Store) SaveTerminalRun(_ context.Context, resourceID uuid.UUID, snap *analysis.RunSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[resourceID]
	if e == nil {
		e = &entry{}
		s.entries[resourceID] = e
	}
	e.terminal = snap.Clone()
	e.showCompleted = true
	return nil
}

func (s *Store) TerminalRun(_ context.Context, resourceID uuid.UUID) (*analysis.RunSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.entries[resourceID]
	if e == nil || e.terminal == nil {
		return nil, analysis.ErrNoTerminalRun
	}
	return e.terminal.Clone(), nil
}

func (s *Store) ShowCompleted(_ context.Context, resourceID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.entries[resourceID]
	if e == nil {
		return false, nil
	}
	return e.showCompleted, nil
}

func (s *Store) SetShowCompleted(_ context.Context, resourceID uuid.UUID, show bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[resourceID]
	if e == nil {
		e = &entry{}
		s.entries[resourceID] = e
	}
	e.showCompleted = show
	return nil
}

func (s *Store) Clear(_ context.Context, resourceID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, resourceID)
	return nil
}
