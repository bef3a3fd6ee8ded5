// Package engine implements the Pulsing Engine.
//
// The Pulser:
//   - Owns the Instrument Store and the canonical seed set
//   - Enforces the Closed/Open market lifecycle under one lifecycle lock
//   - Ticks every 500ms while Open, drifting each instrument independently
//   - Skips a tick outright if the previous one is still running
//   - Notifies a Broadcaster once per lifecycle change, reset, and price change
package engine
