package model

import "fmt"

// LifecycleState is the market open/closed state.
type LifecycleState int32

const (
	// Closed is the initial state. Reset is only permitted while Closed.
	Closed LifecycleState = iota
	// Open means prices are pulsing.
	Open
)

// String returns "Closed" or "Open".
func (s LifecycleState) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	default:
		return fmt.Sprintf("LifecycleState(%d)", int32(s))
	}
}

// MarshalText encodes the state by name.
func (s LifecycleState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *LifecycleState) UnmarshalText(text []byte) error {
	parsed, err := ParseLifecycleState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseLifecycleState parses "Open" or "Closed" (case-insensitive on the first letter).
func ParseLifecycleState(s string) (LifecycleState, error) {
	switch s {
	case "Closed", "closed":
		return Closed, nil
	case "Open", "open":
		return Open, nil
	default:
		return Closed, fmt.Errorf("unknown lifecycle state %q", s)
	}
}
