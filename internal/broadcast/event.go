package broadcast

import (
	"encoding/json"

	"github.com/rickgao/stockpulse/internal/model"
)

// Event names pushed to subscribers.
const (
	EventStartPulsing     = "startPulsing"
	EventStopPulsing      = "stopPulsing"
	EventPulseReset       = "pulseReset"
	EventUpdateStockPrice = "updateStockPrice"
	EventSnapshot         = "snapshot"
	EventMarketState      = "marketState"
)

// Event is the envelope for every server-pushed message.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Command is a request sent by a subscriber.
type Command struct {
	ID  int64  `json:"id"`
	Cmd string `json:"cmd"`
}

// Response answers a Command.
type Response struct {
	ID   int64  `json:"id"`
	Type string `json:"type"` // "ok" or "error"
	Msg  any    `json:"msg,omitempty"`
}

// ErrorMsg is the message content for an "error" response.
type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// lifecycleEvent maps a state change to its event name.
func lifecycleEvent(state model.LifecycleState) Event {
	if state == model.Open {
		return Event{Event: EventStartPulsing}
	}
	return Event{Event: EventStopPulsing}
}

func resetEvent() Event {
	return Event{Event: EventPulseReset}
}

func instrumentEvent(inst model.Instrument) Event {
	return Event{Event: EventUpdateStockPrice, Data: inst.View()}
}

func snapshotEvent(instruments []model.Instrument) Event {
	return Event{Event: EventSnapshot, Data: model.Views(instruments)}
}

func stateEvent(state model.LifecycleState) Event {
	return Event{Event: EventMarketState, Data: state.String()}
}

// Encode marshals an event once for delivery to every subscriber.
func Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}
