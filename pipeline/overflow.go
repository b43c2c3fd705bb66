package pipeline

import (
	"fmt"
	"strings"
)

// Overflow is the policy applied when Submit finds the queue full
type Overflow int

const (
	// OverflowBlock makes Submit wait for room (back-pressure on the
	// producer)
	OverflowBlock Overflow = iota
	// OverflowDrop rejects the frame with ErrQueueFull, as a live capture
	// that must not fall behind would
	OverflowDrop
)

func (o Overflow) String() string {
	switch o {
	case OverflowBlock:
		return "block"
	case OverflowDrop:
		return "drop"
	default:
		return fmt.Sprintf("Overflow(%d)", int(o))
	}
}

// Valid reports whether o is a known policy
func (o Overflow) Valid() bool {
	return o == OverflowBlock || o == OverflowDrop
}

// ParseOverflow parses "block" or "drop"
func ParseOverflow(s string) (Overflow, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "block", "":
		return OverflowBlock, nil
	case "drop":
		return OverflowDrop, nil
	}
	return OverflowBlock, fmt.Errorf("pipeline: unknown overflow policy %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (o Overflow) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("pipeline: unknown overflow policy %d", int(o))
	}
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (o *Overflow) UnmarshalText(text []byte) error {
	parsed, err := ParseOverflow(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}
