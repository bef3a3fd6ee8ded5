package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/stockpulse/internal/drift"
	"github.com/rickgao/stockpulse/internal/metrics"
	"github.com/rickgao/stockpulse/internal/model"
	"github.com/rickgao/stockpulse/internal/store"
)

// DefaultInterval is the tick period while the market is Open.
const DefaultInterval = 500 * time.Millisecond

// Errors
var (
	ErrInvalidState = errors.New("invalid market state")
	ErrNoSeeds      = errors.New("no seed instruments")
)

// Option configures a Pulser.
type Option func(*Pulser)

// WithInterval sets the tick period.
func WithInterval(d time.Duration) Option {
	return func(p *Pulser) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithParams sets the drift parameters.
func WithParams(params drift.Params) Option {
	return func(p *Pulser) {
		p.params = params
	}
}

// WithSource sets the random source used by the drift algorithm.
// The source is only read from inside a tick, one tick at a time.
func WithSource(src drift.Source) Option {
	return func(p *Pulser) {
		p.src = src
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pulser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pulser) {
		p.metrics = m
	}
}

// Pulser drives periodic price drift for a fixed set of instruments.
type Pulser struct {
	interval time.Duration
	params   drift.Params
	src      drift.Source
	logger   *slog.Logger
	metrics  *metrics.Metrics

	seeds       []model.Instrument
	store       *store.Store
	broadcaster Broadcaster

	// Lifecycle. lifecycleMu serializes Start, Stop, Reset and Close;
	// state is read without it. closed is terminal.
	lifecycleMu sync.Mutex
	state       atomic.Int32
	closed      bool
	cancel      context.CancelFunc
	loopDone    chan struct{}

	// Tick re-entrancy guard, separate from the lifecycle lock.
	ticking atomic.Bool
	ticks   sync.WaitGroup
}

// New creates a Closed Pulser loaded with the seed set.
func New(seeds []model.Instrument, broadcaster Broadcaster, opts ...Option) (*Pulser, error) {
	if len(seeds) == 0 {
		return nil, ErrNoSeeds
	}
	if broadcaster == nil {
		broadcaster = nopBroadcaster{}
	}

	p := &Pulser{
		interval:    DefaultInterval,
		params:      drift.DefaultParams(),
		logger:      slog.Default(),
		seeds:       append([]model.Instrument(nil), seeds...),
		store:       store.New(),
		broadcaster: broadcaster,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.src == nil {
		p.src = drift.NewSource(0)
	}

	if err := p.params.Validate(); err != nil {
		return nil, err
	}
	if err := p.store.Replace(p.seeds); err != nil {
		return nil, fmt.Errorf("load seeds: %w", err)
	}

	return p, nil
}

// State returns the current lifecycle state.
func (p *Pulser) State() model.LifecycleState {
	return model.LifecycleState(p.state.Load())
}

// Instruments returns a point-in-time snapshot of all instruments.
func (p *Pulser) Instruments() []model.Instrument {
	return p.store.Snapshot()
}

// Seeds returns a copy of the canonical reset set.
func (p *Pulser) Seeds() []model.Instrument {
	return append([]model.Instrument(nil), p.seeds...)
}

// Start opens the market and begins ticking. No-op if already Open
// or after Close.
func (p *Pulser) Start() {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.closed || p.State() == model.Open {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.loopDone = make(chan struct{})
	go p.run(ctx, p.loopDone)

	p.state.Store(int32(model.Open))
	p.metrics.SetMarketOpen(true)
	p.logger.Info("market opened", "interval", p.interval, "instruments", p.store.Len())

	p.broadcaster.NotifyLifecycleChanged(model.Open)
}

// Stop closes the market. No tick starts after Stop returns; a tick
// already running may still finish. No-op if already Closed.
func (p *Pulser) Stop() {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	p.stopLocked()
}

// stopLocked closes the market. Must be called with lifecycleMu held.
func (p *Pulser) stopLocked() {
	if p.State() != model.Open {
		return
	}

	p.cancel()
	<-p.loopDone
	p.cancel = nil

	p.state.Store(int32(model.Closed))
	p.metrics.SetMarketOpen(false)
	p.logger.Info("market closed")

	p.broadcaster.NotifyLifecycleChanged(model.Closed)
}

// Reset restores the seed set. The market must be Closed.
func (p *Pulser) Reset() error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if state := p.State(); state != model.Closed {
		return fmt.Errorf("%w: market must be closed before it can be reset (state %s)", ErrInvalidState, state)
	}

	// A tick fired just before Stop may still be running.
	p.ticks.Wait()

	if err := p.store.Replace(p.seeds); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}

	p.logger.Info("market reset", "instruments", len(p.seeds))
	p.broadcaster.NotifyReset()
	return nil
}

// Close stops the market for good and waits for any in-flight tick.
// Start is a no-op afterwards.
func (p *Pulser) Close(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	p.closed = true
	p.stopLocked()

	// The loop has exited and Start is locked out, so nothing adds to ticks.
	done := make(chan struct{})
	go func() {
		p.ticks.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the scheduler loop. Every fire hands the tick to its own goroutine
// so a slow tick makes the next fire hit the guard and drop.
func (p *Pulser) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			p.ticks.Add(1)
			go func() {
				defer p.ticks.Done()
				p.tick()
			}()
		}
	}
}

// tick drifts every instrument once. Returns false if it was skipped
// because another tick held the guard, or if it panicked.
func (p *Pulser) tick() (ran bool) {
	if !p.ticking.CompareAndSwap(false, true) {
		p.metrics.TickSkipped()
		p.logger.Debug("tick skipped, previous tick still running")
		return false
	}
	defer p.ticking.Store(false)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			ran = false
			p.metrics.TickFailed()
			p.logger.Error("tick panicked", "panic", r)
		}
		p.metrics.TickRan(time.Since(start).Seconds())
	}()

	changed := 0
	for _, symbol := range p.store.Symbols() {
		inst, ok, err := p.pulse(symbol)
		if err != nil {
			p.metrics.TickFailed()
			p.logger.Warn("failed to update instrument", "symbol", symbol, "error", err)
			continue
		}
		if !ok {
			continue
		}

		changed++
		p.metrics.InstrumentUpdated(symbol)
		p.broadcaster.NotifyInstrumentChanged(inst)
	}

	if changed > 0 {
		p.logger.Debug("tick complete", "changed", changed, "duration", time.Since(start))
	}
	return true
}

// pulse applies one drift decision to one instrument.
func (p *Pulser) pulse(symbol string) (model.Instrument, bool, error) {
	var changed bool
	inst, err := p.store.Update(symbol, func(inst *model.Instrument) error {
		next, ok, err := drift.Next(p.params, inst.Price, p.src)
		if err != nil {
			return err
		}
		if ok {
			inst.SetPrice(next)
			changed = true
		}
		return nil
	})
	if err != nil {
		return model.Instrument{}, false, err
	}
	return inst, changed, nil
}
