package retention

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Policy describes an age-based retention rule. A policy deletes entries
// whose event timestamp is older than MaxAgeDays; nothing else.
type Policy struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MaxAgeDays int    `json:"max_age_days"`
	Enabled    bool   `json:"enabled"`

	// ApplyToSources restricts the policy to specific sources.
	// Nil means all sources.
	ApplyToSources []string `json:"apply_to_sources,omitempty"`
}

// Validate checks policy invariants
func (p *Policy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("policy name is required")
	}
	if p.MaxAgeDays <= 0 {
		return fmt.Errorf("policy max age must be a positive number of days")
	}
	return nil
}

// Threshold returns the deletion cutoff in Unix ms relative to now:
// entries with timestamp < threshold are past their retention.
func (p *Policy) Threshold(now time.Time) int64 {
	return now.UnixMilli() - int64(p.MaxAgeDays)*24*time.Hour.Milliseconds()
}

// Repository provides access to configured policies. Policy CRUD lives
// behind the external API; the engine only needs the enabled set.
type Repository interface {
	AllEnabled() ([]Policy, error)
}

// MemoryRepository is a mutex-guarded in-memory policy repository.
type MemoryRepository struct {
	mu       sync.RWMutex
	policies map[string]Policy
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{policies: make(map[string]Policy)}
}

// Save validates and stores a policy, assigning an ID if missing
func (r *MemoryRepository) Save(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	r.policies[p.ID] = p
	return nil
}

// Delete removes a policy by id
func (r *MemoryRepository) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.policies[id]; !ok {
		return false
	}
	delete(r.policies, id)
	return true
}

// AllEnabled returns the enabled policies
func (r *MemoryRepository) AllEnabled() ([]Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Policy, 0, len(r.policies))
	for _, p := range r.policies {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out, nil
}
