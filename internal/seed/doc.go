// Package seed supplies the canonical instrument set the engine starts from
// and returns to on Reset.
//
// Seeds are loaded once at startup; the engine keeps the result, so Reset
// never touches the network.
package seed
