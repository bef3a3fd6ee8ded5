// Package model defines shared data types used across the stock pulser.
//
// Conventions:
//   - Prices: fixed-point decimals (shopspring/decimal), never negative
//   - Changes are rounded to 2 decimal places before they are applied
//   - Symbols are unique, upper-case tickers (e.g., "AAPL")
package model
