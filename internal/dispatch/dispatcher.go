package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rickgao/stockpulse/internal/engine"
	"github.com/rickgao/stockpulse/internal/model"
)

// Command names.
const (
	CmdGetAllInstruments = "getAllInstruments"
	CmdGetMarketState    = "getMarketState"
	CmdStart             = "start"
	CmdStop              = "stop"
	CmdReset             = "reset"
)

// Errors
var (
	ErrUnknownCommand = errors.New("unknown command")
)

// Engine is the subset of engine.Pulser the dispatcher drives.
type Engine interface {
	Instruments() []model.Instrument
	State() model.LifecycleState
	Start()
	Stop()
	Reset() error
}

// Dispatcher executes commands against an Engine.
type Dispatcher struct {
	engine Engine
	logger *slog.Logger
}

// New creates a dispatcher.
func New(e Engine, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{engine: e, logger: logger}
}

// Dispatch runs cmd and returns its result.
func (d *Dispatcher) Dispatch(_ context.Context, cmd string) (any, error) {
	switch cmd {
	case CmdGetAllInstruments:
		return model.Views(d.engine.Instruments()), nil
	case CmdGetMarketState:
		return d.engine.State().String(), nil
	case CmdStart:
		d.engine.Start()
		return nil, nil
	case CmdStop:
		d.engine.Stop()
		return nil, nil
	case CmdReset:
		if err := d.engine.Reset(); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}
}

// ErrorCode classifies a Dispatch error for clients.
func (d *Dispatcher) ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownCommand):
		return "unknown_command"
	case errors.Is(err, engine.ErrInvalidState):
		return "invalid_state"
	default:
		return "internal"
	}
}
