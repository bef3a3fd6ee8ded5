package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Instrument is the current state of one tradable symbol.
type Instrument struct {
	Symbol     string          // Primary key, immutable after creation
	Price      decimal.Decimal // Current price
	DayOpen    decimal.Decimal // Seed price at the last reset
	DayHigh    decimal.Decimal // Highest price since the last reset
	DayLow     decimal.Decimal // Lowest price since the last reset
	LastChange decimal.Decimal // Signed delta applied by the most recent tick
}

// NewInstrument creates an instrument at its seed price.
func NewInstrument(symbol string, seed decimal.Decimal) Instrument {
	return Instrument{
		Symbol:  symbol,
		Price:   seed,
		DayOpen: seed,
		DayHigh: seed,
		DayLow:  seed,
	}
}

// Change returns the price movement since the day open.
func (i Instrument) Change() decimal.Decimal {
	return i.Price.Sub(i.DayOpen)
}

// PercentChange returns Change as a fraction of the day open (0.01 = 1%).
func (i Instrument) PercentChange() decimal.Decimal {
	if i.DayOpen.IsZero() {
		return decimal.Zero
	}
	return i.Change().Div(i.DayOpen)
}

// SetPrice moves the instrument to a new price and maintains the
// derived day range and last change.
func (i *Instrument) SetPrice(p decimal.Decimal) {
	i.LastChange = p.Sub(i.Price)
	i.Price = p
	if p.GreaterThan(i.DayHigh) {
		i.DayHigh = p
	}
	if p.LessThan(i.DayLow) {
		i.DayLow = p
	}
}

// View returns the wire representation pushed to subscribers.
func (i Instrument) View() InstrumentView {
	return InstrumentView{
		Symbol:        i.Symbol,
		Price:         money(i.Price),
		DayOpen:       money(i.DayOpen),
		DayHigh:       money(i.DayHigh),
		DayLow:        money(i.DayLow),
		Change:        money(i.Change()),
		LastChange:    money(i.LastChange),
		PercentChange: json.Number(i.PercentChange().StringFixed(4)),
	}
}

// InstrumentView is the JSON form of an Instrument.
// Prices are encoded as numbers with two decimals.
type InstrumentView struct {
	Symbol        string      `json:"symbol"`
	Price         json.Number `json:"price"`
	DayOpen       json.Number `json:"day_open"`
	DayHigh       json.Number `json:"day_high"`
	DayLow        json.Number `json:"day_low"`
	Change        json.Number `json:"change"`
	LastChange    json.Number `json:"last_change"`
	PercentChange json.Number `json:"percent_change"`
}

// Views converts a slice of instruments to their wire form.
func Views(instruments []Instrument) []InstrumentView {
	out := make([]InstrumentView, len(instruments))
	for i, inst := range instruments {
		out[i] = inst.View()
	}
	return out
}

func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}
