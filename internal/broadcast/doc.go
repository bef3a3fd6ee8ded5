// Package broadcast delivers engine events to subscribers.
//
// Sinks:
//   - Hub: WebSocket subscribers, one bounded outbound queue each
//   - RedisPublisher: Redis pub/sub channel, queued and published in the background
//
// Both implement engine.Broadcaster and never block the caller. A subscriber
// whose queue overflows is disconnected; the other subscribers are unaffected.
package broadcast
