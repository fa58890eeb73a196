package market

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrUnknownPair = errors.New("unknown pair")
	ErrPairExists  = errors.New("pair already registered")
)

// Registry manages the tradable pairs in a thread-safe manner
// Supports registration, lookup, and status updates
type Registry struct {
	mu    sync.RWMutex
	pairs map[string]*Pair // symbol -> pair
}

// NewRegistry creates an empty pair registry
func NewRegistry() *Registry {
	return &Registry{
		pairs: make(map[string]*Pair),
	}
}

// Register adds a new pair to the registry
// Returns error if a pair with the same symbol already exists
func (r *Registry) Register(p *Pair) error {
	if p == nil {
		return fmt.Errorf("%w: nil pair", ErrInvalidPair)
	}
	if err := p.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pairs[p.Symbol]; exists {
		return fmt.Errorf("%w: %s", ErrPairExists, p.Symbol)
	}

	cp := *p
	r.pairs[p.Symbol] = &cp
	return nil
}

// Get returns a copy of the pair registered under symbol
func (r *Registry) Get(symbol string) (Pair, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.pairs[symbol]
	if !exists {
		return Pair{}, fmt.Errorf("%w: %s", ErrUnknownPair, symbol)
	}

	return *p, nil
}

// List returns all registered pairs sorted by symbol
func (r *Registry) List() []Pair {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pairs := make([]Pair, 0, len(r.pairs))
	for _, p := range r.pairs {
		pairs = append(pairs, *p)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Symbol < pairs[j].Symbol })

	return pairs
}

// SetStatus changes the trading status of a pair
// Used for emergency halts and resuming trading
func (r *Registry) SetStatus(symbol string, status Status) error {
	if status != Active && status != Halted {
		return fmt.Errorf("invalid status %d", status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.pairs[symbol]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownPair, symbol)
	}

	p.Status = status
	return nil
}

// Count returns the total number of registered pairs
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pairs)
}

// Exists checks if a pair is registered
func (r *Registry) Exists(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.pairs[symbol]
	return exists
}
