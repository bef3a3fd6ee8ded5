// Package dispatch maps named commands onto the pulsing engine and exposes
// them over HTTP.
//
// The same Dispatcher serves WebSocket command frames (through the
// broadcast hub) and the gin routes built by NewRouter:
//
//	GET  /api/instruments
//	GET  /api/market/state
//	POST /api/market/{start,stop,reset}
//	POST /api/commands/{cmd}
//	GET  /ws
//	GET  /health
//	GET  /metrics
package dispatch
