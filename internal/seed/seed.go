package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rickgao/stockpulse/internal/config"
	"github.com/rickgao/stockpulse/internal/model"
)

// Errors
var (
	ErrEmpty         = errors.New("seed set is empty")
	ErrDuplicate     = errors.New("duplicate seed symbol")
	ErrInvalidSymbol = errors.New("seed symbol is empty")
	ErrInvalidPrice  = errors.New("seed price is invalid")
)

// Source loads a seed set.
type Source interface {
	Load(ctx context.Context) ([]model.Instrument, error)
}

// Default returns the built-in seed set.
func Default() []model.Instrument {
	return []model.Instrument{
		model.NewInstrument("AMZN", decimal.RequireFromString("41.68")),
		model.NewInstrument("AAPL", decimal.RequireFromString("92.08")),
		model.NewInstrument("GOOG", decimal.RequireFromString("543.01")),
		model.NewInstrument("IBM", decimal.RequireFromString("343.01")),
	}
}

// Static serves a fixed list. An empty list serves Default.
type Static struct {
	seeds []config.SeedConfig
}

// NewStatic creates a static source from configured seeds.
func NewStatic(seeds []config.SeedConfig) *Static {
	return &Static{seeds: seeds}
}

// Load parses and validates the configured seeds.
func (s *Static) Load(_ context.Context) ([]model.Instrument, error) {
	if len(s.seeds) == 0 {
		return Default(), nil
	}

	out := make([]model.Instrument, 0, len(s.seeds))
	for _, sc := range s.seeds {
		price, err := decimal.NewFromString(sc.Price)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPrice, sc.Symbol, err)
		}
		out = append(out, model.NewInstrument(sc.Symbol, price))
	}

	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Validate checks that seeds are non-empty, unique and non-negative.
func Validate(seeds []model.Instrument) error {
	if len(seeds) == 0 {
		return ErrEmpty
	}

	seen := make(map[string]struct{}, len(seeds))
	for _, inst := range seeds {
		if inst.Symbol == "" {
			return ErrInvalidSymbol
		}
		if _, ok := seen[inst.Symbol]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicate, inst.Symbol)
		}
		seen[inst.Symbol] = struct{}{}

		if inst.Price.IsNegative() {
			return fmt.Errorf("%w: %s has negative price %s", ErrInvalidPrice, inst.Symbol, inst.Price)
		}
	}
	return nil
}
