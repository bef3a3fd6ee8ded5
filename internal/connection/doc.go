// Package connection implements a WebSocket subscriber for the pulser feed.
//
// The client:
//   - Delivers pushed events (snapshot, updateStockPrice, ...) on Events
//   - Matches command responses to their request by id
//   - Pings the server and reports a stale connection on Errors
package connection
