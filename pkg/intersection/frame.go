package intersection

import (
	"fmt"
	"strings"
)

// Color is a signal head color.
type Color int

const (
	Red Color = iota
	Yellow
	Green
)

// String returns the display name of the color.
func (c Color) String() string {
	switch c {
	case Red:
		return "Red"
	case Yellow:
		return "Yellow"
	case Green:
		return "Green"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the color by name.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a color name, case-insensitively.
func (c *Color) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "red":
		*c = Red
	case "yellow":
		*c = Yellow
	case "green":
		*c = Green
	default:
		return fmt.Errorf("unknown signal color %q", text)
	}
	return nil
}

// Signal is the state of one road for one tick.
type Signal struct {
	Road      Road  `json:"road"`
	Color     Color `json:"color"`
	Remaining int   `json:"remaining"`
}

// Frame is the per-road signal snapshot for one tick, in config order.
// Frames handed out by the scheduler are never modified afterwards.
type Frame []Signal

// Active returns the road that is not Red, if any.
func (f Frame) Active() (Signal, bool) {
	for _, s := range f {
		if s.Color != Red {
			return s, true
		}
	}
	return Signal{}, false
}

// Equal reports whether two frames carry the same signals.
func (f Frame) Equal(other Frame) bool {
	if len(f) != len(other) {
		return false
	}
	for i := range f {
		if f[i] != other[i] {
			return false
		}
	}
	return true
}

// String renders the frame as "road=Color(remaining)" pairs.
func (f Frame) String() string {
	parts := make([]string, len(f))
	for i, s := range f {
		parts[i] = fmt.Sprintf("%s=%s(%d)", s.Road, s.Color, s.Remaining)
	}
	return strings.Join(parts, " ")
}

func allRed(roads []Road) Frame {
	f := make(Frame, len(roads))
	for i, r := range roads {
		f[i] = Signal{Road: r, Color: Red}
	}
	return f
}
