// Package memory provides in-memory stores for development and tests.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
)

// CycleStore provides an in-memory alert.CycleStore.
type CycleStore struct {
	mu     sync.RWMutex
	cycles map[string]alert.Cycle
	now    func() time.Time
}

// NewCycleStore constructs a CycleStore.
func NewCycleStore() *CycleStore {
	return &CycleStore{
		cycles: make(map[string]alert.Cycle),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateCycle stores a new cycle record.
func (s *CycleStore) CreateCycle(_ context.Context, cycle alert.Cycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cycles[cycle.ID]; exists {
		return errors.New("cycle already exists")
	}
	s.cycles[cycle.ID] = cycle
	return nil
}

// UpdateCycleStatus updates the status, error text and report for a cycle.
func (s *CycleStore) UpdateCycleStatus(
	_ context.Context,
	cycleID string,
	status alert.CycleStatus,
	errText string,
	report *alert.CycleReport,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cycle, ok := s.cycles[cycleID]
	if !ok {
		return alert.ErrCycleNotFound
	}
	cycle.Status = status
	cycle.ErrorText = errText
	if report != nil {
		cycle.Report = report
	}
	now := s.now()
	if status == alert.CycleStatusRunning && cycle.Started == nil {
		cycle.Started = pointerTime(now)
	}
	if isTerminal(status) {
		cycle.Finished = pointerTime(now)
	}
	s.cycles[cycleID] = cycle
	return nil
}

// GetCycle fetches a cycle by ID.
func (s *CycleStore) GetCycle(_ context.Context, cycleID string) (alert.Cycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cycle, ok := s.cycles[cycleID]
	if !ok {
		return alert.Cycle{}, alert.ErrCycleNotFound
	}
	return cycle, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

func isTerminal(status alert.CycleStatus) bool {
	switch status {
	case alert.CycleStatusSucceeded, alert.CycleStatusFailed:
		return true
	default:
		return false
	}
}
