// Package drift implements the price drift decision.
//
// Each tick, every instrument independently draws whether to move. When it
// moves, the magnitude is a uniform fraction of RangePercent of the current
// price, rounded to cents, applied up or down according to UpThreshold.
//
// Draws are taken from an injectable Source in a fixed order (activation,
// magnitude, direction) so a scripted source reproduces a tick exactly.
package drift
