package pattern

import (
	"fmt"
	"sync"
	"time"
)

// Catalog is a copy-on-write set of patterns. Readers take an immutable
// snapshot; every mutation swaps in a new slice under the write lock, so a
// concurrent analysis sees either the old or the new catalog in full.
type Catalog struct {
	mu       sync.RWMutex
	patterns []Pattern
	now      func() time.Time
}

// NewCatalog returns a catalog holding ps. Invalid or duplicate patterns
// are rejected.
func NewCatalog(ps ...Pattern) (*Catalog, error) {
	c := &Catalog{now: time.Now}
	next := make([]Pattern, 0, len(ps))
	seen := make(map[string]bool, len(ps))
	for _, p := range ps {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePattern, p.ID)
		}
		seen[p.ID] = true
		p = p.clone()
		if p.LastUpdated.IsZero() {
			p.LastUpdated = c.now().UTC()
		}
		next = append(next, p)
	}
	c.patterns = next
	return c, nil
}

// Snapshot returns the current pattern slice. Callers must not modify it.
func (c *Catalog) Snapshot() []Pattern {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.patterns
}

// List returns a deep copy of every pattern, safe for callers to modify.
func (c *Catalog) List() []Pattern {
	snap := c.Snapshot()
	out := make([]Pattern, len(snap))
	for i, p := range snap {
		out[i] = p.clone()
	}
	return out
}

// Len returns the number of patterns.
func (c *Catalog) Len() int {
	return len(c.Snapshot())
}

// Get returns a copy of the pattern with the given id.
func (c *Catalog) Get(id string) (Pattern, error) {
	for _, p := range c.Snapshot() {
		if p.ID == id {
			return p.clone(), nil
		}
	}
	return Pattern{}, fmt.Errorf("%w: %s", ErrPatternNotFound, id)
}

// Add appends p.
func (c *Catalog) Add(p Pattern) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	p = p.clone()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.patterns {
		if existing.ID == p.ID {
			return fmt.Errorf("%w: %s", ErrDuplicatePattern, p.ID)
		}
	}
	p.LastUpdated = c.now().UTC()
	next := make([]Pattern, len(c.patterns), len(c.patterns)+1)
	copy(next, c.patterns)
	c.patterns = append(next, p)
	return nil
}

// Remove deletes the pattern with the given id.
func (c *Catalog) Remove(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := make([]Pattern, 0, len(c.patterns))
	for _, p := range c.patterns {
		if p.ID != id {
			next = append(next, p)
		}
	}
	if len(next) == len(c.patterns) {
		return fmt.Errorf("%w: %s", ErrPatternNotFound, id)
	}
	c.patterns = next
	return nil
}

// Update applies u to the pattern with the given id and returns the result.
// The updated pattern is validated before it is published.
func (c *Catalog) Update(id string, u Update) (Pattern, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range c.patterns {
		if p.ID != id {
			continue
		}
		updated := u.apply(p)
		if err := updated.Validate(); err != nil {
			return Pattern{}, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
		updated.LastUpdated = c.now().UTC()
		next := make([]Pattern, len(c.patterns))
		copy(next, c.patterns)
		next[i] = updated
		c.patterns = next
		return updated.clone(), nil
	}
	return Pattern{}, fmt.Errorf("%w: %s", ErrPatternNotFound, id)
}
