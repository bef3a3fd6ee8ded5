// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Tick counts, skipped ticks, tick failures and tick duration
//   - Instrument price updates
//   - Market open/closed state
//   - Connected and dropped subscribers
package metrics
