package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/stockpulse/internal/engine"
	"github.com/rickgao/stockpulse/internal/model"
)

func testSeeds() []model.Instrument {
	return []model.Instrument{
		model.NewInstrument("AAPL", decimal.RequireFromString("92.08")),
		model.NewInstrument("GOOG", decimal.RequireFromString("543.01")),
	}
}

func newTestEngine(t *testing.T) *engine.Pulser {
	t.Helper()

	p, err := engine.New(testSeeds(), nil, engine.WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		p.Close(ctx)
	})
	return p
}

func TestDispatcher_Commands(t *testing.T) {
	p := newTestEngine(t)
	d := New(p, nil)
	ctx := context.Background()

	got, err := d.Dispatch(ctx, CmdGetAllInstruments)
	if err != nil {
		t.Fatalf("getAllInstruments error = %v", err)
	}
	views, ok := got.([]model.InstrumentView)
	if !ok || len(views) != 2 || views[0].Symbol != "AAPL" {
		t.Errorf("getAllInstruments = %#v", got)
	}

	if got, _ := d.Dispatch(ctx, CmdGetMarketState); got != "Closed" {
		t.Errorf("getMarketState = %v, want Closed", got)
	}

	if _, err := d.Dispatch(ctx, CmdStart); err != nil {
		t.Fatalf("start error = %v", err)
	}
	if p.State() != model.Open {
		t.Errorf("State() after start = %v, want Open", p.State())
	}

	if _, err := d.Dispatch(ctx, CmdReset); !errors.Is(err, engine.ErrInvalidState) {
		t.Errorf("reset while open error = %v, want ErrInvalidState", err)
	}

	if _, err := d.Dispatch(ctx, CmdStop); err != nil {
		t.Fatalf("stop error = %v", err)
	}
	if _, err := d.Dispatch(ctx, CmdReset); err != nil {
		t.Errorf("reset while closed error = %v", err)
	}
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d := New(newTestEngine(t), nil)

	_, err := d.Dispatch(context.Background(), "GetAllStocks")
	if !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("Dispatch() error = %v, want ErrUnknownCommand", err)
	}
}

func TestDispatcher_ErrorCode(t *testing.T) {
	d := New(newTestEngine(t), nil)

	tests := []struct {
		err  error
		want string
	}{
		{ErrUnknownCommand, "unknown_command"},
		{engine.ErrInvalidState, "invalid_state"},
		{errors.New("boom"), "internal"},
	}

	for _, tt := range tests {
		if got := d.ErrorCode(tt.err); got != tt.want {
			t.Errorf("ErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
