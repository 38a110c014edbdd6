package engine

import "sync"

type validatorKey struct {
	ruleName, condition, message string
}

// ValidatorCache keeps compiled validators keyed by rule content. Rule rows
// are immutable, so entries are never invalidated.
type ValidatorCache struct {
	mu    sync.Mutex
	cache map[validatorKey]*Validator
}

func NewValidatorCache() *ValidatorCache {
	return &ValidatorCache{cache: make(map[validatorKey]*Validator)}
}

// Get returns the cached validator for the rule content, compiling it on
// first use. A nil cache compiles every time.
func (vc *ValidatorCache) Get(ruleName, condition, message string) *Validator {
	if vc == nil {
		return NewValidator(ruleName, condition, message)
	}
	key := validatorKey{ruleName, condition, message}

	vc.mu.Lock()
	defer vc.mu.Unlock()
	v, ok := vc.cache[key]
	if !ok {
		v = NewValidator(ruleName, condition, message)
		vc.cache[key] = v
	}
	return v
}

// Len returns the number of cached validators.
func (vc *ValidatorCache) Len() int {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return len(vc.cache)
}
