package engine

import "github.com/rickgao/stockpulse/internal/model"

// Broadcaster receives engine events for delivery to subscribers.
// Implementations must not block: the engine calls them from the tick path
// and while holding the lifecycle lock.
type Broadcaster interface {
	NotifyLifecycleChanged(state model.LifecycleState)
	NotifyReset()
	NotifyInstrumentChanged(inst model.Instrument)
}

// Broadcasters fans every call out to each member in order.
type Broadcasters []Broadcaster

// NotifyLifecycleChanged forwards a lifecycle change to every member.
func (bs Broadcasters) NotifyLifecycleChanged(state model.LifecycleState) {
	for _, b := range bs {
		b.NotifyLifecycleChanged(state)
	}
}

// NotifyReset forwards a reset to every member.
func (bs Broadcasters) NotifyReset() {
	for _, b := range bs {
		b.NotifyReset()
	}
}

// NotifyInstrumentChanged forwards an instrument update to every member.
func (bs Broadcasters) NotifyInstrumentChanged(inst model.Instrument) {
	for _, b := range bs {
		b.NotifyInstrumentChanged(inst)
	}
}

type nopBroadcaster struct{}

func (nopBroadcaster) NotifyLifecycleChanged(model.LifecycleState) {}
func (nopBroadcaster) NotifyReset()                                {}
func (nopBroadcaster) NotifyInstrumentChanged(model.Instrument)    {}
