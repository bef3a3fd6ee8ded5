package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rickgao/stockpulse/internal/model"
)

// Errors
var (
	ErrUnknownSymbol   = errors.New("unknown symbol")
	ErrDuplicateSymbol = errors.New("duplicate symbol")
	ErrNegativePrice   = errors.New("negative price")
	ErrEmptySymbol     = errors.New("empty symbol")
)

// Store holds the thread-safe instrument cache.
type Store struct {
	mu          sync.RWMutex
	instruments map[string]*model.Instrument
}

// New creates an empty store.
func New() *Store {
	return &Store{
		instruments: make(map[string]*model.Instrument),
	}
}

// Get returns an instrument by symbol (read-locked).
func (s *Store) Get(symbol string) (model.Instrument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instruments[symbol]
	if !ok {
		return model.Instrument{}, false
	}
	return *inst, true
}

// Snapshot returns a copy of every instrument, sorted by symbol (read-locked).
func (s *Store) Snapshot() []model.Instrument {
	s.mu.RLock()
	result := make([]model.Instrument, 0, len(s.instruments))
	for _, inst := range s.instruments {
		result = append(result, *inst)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].Symbol < result[j].Symbol
	})
	return result
}

// Symbols returns all symbols currently held, sorted.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	result := make([]string, 0, len(s.instruments))
	for symbol := range s.instruments {
		result = append(result, symbol)
	}
	s.mu.RUnlock()

	sort.Strings(result)
	return result
}

// Len returns the number of instruments.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.instruments)
}

// Update applies fn to a copy of the named instrument under the write lock.
// The copy is stored only if fn returns nil. Returns the stored state.
func (s *Store) Update(symbol string, fn func(*model.Instrument) error) (model.Instrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.instruments[symbol]
	if !ok {
		return model.Instrument{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	next := *current
	if err := fn(&next); err != nil {
		return *current, err
	}
	if next.Price.IsNegative() {
		return *current, fmt.Errorf("%w: %s %s", ErrNegativePrice, symbol, next.Price)
	}

	// Symbol is immutable.
	next.Symbol = current.Symbol
	*current = next
	return next, nil
}

// Replace swaps the whole contents for the given instruments.
// Nothing changes if the set is invalid.
func (s *Store) Replace(instruments []model.Instrument) error {
	next := make(map[string]*model.Instrument, len(instruments))
	for _, inst := range instruments {
		if inst.Symbol == "" {
			return ErrEmptySymbol
		}
		if _, dup := next[inst.Symbol]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateSymbol, inst.Symbol)
		}
		if inst.Price.IsNegative() {
			return fmt.Errorf("%w: %s %s", ErrNegativePrice, inst.Symbol, inst.Price)
		}
		instCopy := inst
		next[inst.Symbol] = &instCopy
	}

	s.mu.Lock()
	s.instruments = next
	s.mu.Unlock()
	return nil
}
