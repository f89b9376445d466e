package rules

import (
	"sync"

	"github.com/dvloznov/txn-categorizer/internal/domain"
)

// SuggestionCache holds the most recent batch of mined rule suggestions
// between a mining run and bulk approval. One outstanding batch at a time: a
// new mining run replaces whatever was there, and approval consumes the
// batch exactly once.
type SuggestionCache struct {
	mu          sync.Mutex
	suggestions []domain.RuleSuggestion
}

// NewSuggestionCache returns an empty cache.
func NewSuggestionCache() *SuggestionCache {
	return &SuggestionCache{}
}

// Replace installs a freshly mined batch, discarding any previous one.
func (c *SuggestionCache) Replace(suggestions []domain.RuleSuggestion) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suggestions = append([]domain.RuleSuggestion(nil), suggestions...)
}

// Drain returns the current batch and clears the cache, so a stale batch can
// never be applied twice.
func (c *SuggestionCache) Drain() []domain.RuleSuggestion {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.suggestions
	c.suggestions = nil
	return out
}

// Len reports how many suggestions are waiting for approval.
func (c *SuggestionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.suggestions)
}
