package drift

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
)

// Default parameter values.
const (
	DefaultActivationProbability = 0.10
	DefaultRangePercent          = 0.002
	DefaultUpThreshold           = 0.51
)

// Errors
var (
	ErrInvalidPrice  = errors.New("invalid price")
	ErrInvalidParams = errors.New("invalid drift params")
)

// Source provides uniform draws in [0,1).
// *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	Float64() float64
}

// NewSource returns a PCG-backed source. A zero seed uses the current time.
func NewSource(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Params holds the drift configuration.
type Params struct {
	// ActivationProbability is the chance an instrument moves on a tick.
	ActivationProbability float64
	// RangePercent bounds the move as a fraction of price (0.002 = 0.2%).
	RangePercent float64
	// UpThreshold: a direction draw strictly greater than this moves the price up.
	UpThreshold float64
}

// DefaultParams returns the standard pulse parameters.
func DefaultParams() Params {
	return Params{
		ActivationProbability: DefaultActivationProbability,
		RangePercent:          DefaultRangePercent,
		UpThreshold:           DefaultUpThreshold,
	}
}

// Validate checks that all probabilities are within [0,1].
func (p Params) Validate() error {
	if p.ActivationProbability < 0 || p.ActivationProbability > 1 {
		return fmt.Errorf("%w: activation_probability %v not in [0,1]", ErrInvalidParams, p.ActivationProbability)
	}
	if p.RangePercent < 0 || p.RangePercent > 1 {
		return fmt.Errorf("%w: range_percent %v not in [0,1]", ErrInvalidParams, p.RangePercent)
	}
	if p.UpThreshold < 0 || p.UpThreshold > 1 {
		return fmt.Errorf("%w: up_threshold %v not in [0,1]", ErrInvalidParams, p.UpThreshold)
	}
	return nil
}

// Next decides whether price moves this tick and returns the new price.
// changed is false when the activation draw misses or the move rounds to zero.
func Next(p Params, price decimal.Decimal, src Source) (decimal.Decimal, bool, error) {
	if price.IsNegative() {
		return price, false, fmt.Errorf("%w: %s", ErrInvalidPrice, price)
	}

	if src.Float64() > p.ActivationProbability {
		return price, false, nil
	}

	pct := src.Float64() * p.RangePercent
	magnitude := price.Mul(decimal.NewFromFloat(pct)).Round(2)

	if src.Float64() <= p.UpThreshold {
		magnitude = magnitude.Neg()
	}

	next := price.Add(magnitude)
	if next.IsNegative() {
		next = decimal.Zero
	}
	if next.Equal(price) {
		// Rounded to no movement.
		return price, false, nil
	}
	return next, true, nil
}
