package alarm

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Repository provides access to saved alarms. Alarm CRUD lives behind
// the external API; the engine needs the enabled set, lookup by id, and
// save for state transitions.
type Repository interface {
	AllEnabled() ([]Alarm, error)
	ByID(id string) (*Alarm, error)
	Save(a Alarm) error
}

// MemoryRepository is a mutex-guarded in-memory alarm repository.
type MemoryRepository struct {
	mu     sync.RWMutex
	alarms map[string]Alarm
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{alarms: make(map[string]Alarm)}
}

// Save validates and stores an alarm, assigning an ID if missing
func (r *MemoryRepository) Save(a Alarm) error {
	if err := a.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.State == "" {
		a.State = StateOK
	}
	r.alarms[a.ID] = a
	return nil
}

// ByID returns an alarm by id
func (r *MemoryRepository) ByID(id string) (*Alarm, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.alarms[id]
	if !ok {
		return nil, fmt.Errorf("alarm %q not found", id)
	}
	return &a, nil
}

// AllEnabled returns the enabled alarms
func (r *MemoryRepository) AllEnabled() ([]Alarm, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Alarm, 0, len(r.alarms))
	for _, a := range r.alarms {
		if a.Enabled {
			out = append(out, a)
		}
	}
	return out, nil
}

// Delete removes an alarm by id
func (r *MemoryRepository) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.alarms[id]; !ok {
		return false
	}
	delete(r.alarms, id)
	return true
}
