package automation

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// RuleStore manages rule persistence and retrieval.
type RuleStore interface {
	// Add a new rule; the ID must not already exist.
	Add(rule *Rule) error

	// Get a rule by ID.
	Get(id string) (*Rule, error)

	// ListActive returns rules with status ACTIVE, highest priority first.
	ListActive() ([]*Rule, error)

	// Update an existing rule.
	Update(rule *Rule) error

	// Delete a rule.
	Delete(id string) error
}

// InMemoryRuleStore implements RuleStore with a mutex-guarded map. Used in
// tests and for single-process deployments without a database. The store
// keeps its own copies, so a caller mutating a rule after Add or a rule
// returned from Get does not change stored state behind validation and
// cache invalidation.
type InMemoryRuleStore struct {
	rules map[string]*Rule
	mu    sync.RWMutex
}

// cloneRule copies a rule deeply enough that the condition, action and tier
// slices and the payout policy are independent. Action parameter maps are
// not deep copied; they are treated as immutable payloads.
func cloneRule(rule *Rule) *Rule {
	out := *rule
	if rule.Conditions != nil {
		out.Conditions = append([]Condition(nil), rule.Conditions...)
	}
	if rule.Actions != nil {
		out.Actions = append([]Action(nil), rule.Actions...)
	}
	if rule.Payout != nil {
		payout := *rule.Payout
		if payout.Tiers != nil {
			payout.Tiers = append([]TieredRate(nil), rule.Payout.Tiers...)
		}
		out.Payout = &payout
	}
	return &out
}

// NewInMemoryRuleStore creates an empty in-memory rule store.
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{rules: make(map[string]*Rule)}
}

// Add stores a new rule, stamping CreatedAt and UpdatedAt.
func (s *InMemoryRuleStore) Add(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return fmt.Errorf("rule %s already exists", rule.ID)
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	s.rules[rule.ID] = cloneRule(rule)
	return nil
}

// Get retrieves a copy of a rule by ID.
func (s *InMemoryRuleStore) Get(id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[id]
	if !exists {
		return nil, fmt.Errorf("rule %s not found", id)
	}
	return cloneRule(rule), nil
}

// ListActive returns ACTIVE rules ordered by priority descending, with
// creation time as the tiebreaker so evaluation order is stable.
func (s *InMemoryRuleStore) ListActive() ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*Rule
	for _, rule := range s.rules {
		if rule.Active() {
			active = append(active, cloneRule(rule))
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Priority != active[j].Priority {
			return active[i].Priority > active[j].Priority
		}
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	return active, nil
}

// Update replaces an existing rule, preserving CreatedAt.
func (s *InMemoryRuleStore) Update(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[rule.ID]
	if !exists {
		return fmt.Errorf("rule %s not found", rule.ID)
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()
	s.rules[rule.ID] = cloneRule(rule)
	return nil
}

// Delete removes a rule.
func (s *InMemoryRuleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; !exists {
		return fmt.Errorf("rule %s not found", id)
	}
	delete(s.rules, id)
	return nil
}
