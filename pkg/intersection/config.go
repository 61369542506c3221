// Package intersection implements the signal phase scheduler for a single
// multi-approach road intersection.
package intersection

import (
	"fmt"
	"strings"
)

// Duration bounds accepted by NewConfig, in ticks.
const (
	MinPhaseTicks  = 1
	MaxGreenTicks  = 60
	MaxYellowTicks = 10
)

// Road identifies one approach of the intersection.
type Road string

// DefaultRoadNames returns the road names used for an n-way intersection
// ("Road 1" .. "Road n").
func DefaultRoadNames(n int) []Road {
	roads := make([]Road, 0, n)
	for i := 1; i <= n; i++ {
		roads = append(roads, Road(fmt.Sprintf("Road %d", i)))
	}
	return roads
}

// Config is the immutable description of an intersection. Build it with
// NewConfig; the zero value is not valid.
type Config struct {
	roads  []Road
	green  int
	yellow int
}

// NewConfig validates and returns a Config. Invalid input yields an error
// wrapping ErrInvalidConfiguration and no Config.
//
// NewConfig only enforces the scheduler's structural limits: at least one
// road, green in [MinPhaseTicks,MaxGreenTicks] and yellow in
// [MinPhaseTicks,MaxYellowTicks]. The narrower operator bounds (2 to 4
// roads, green of at least 5) are enforced by config.IntersectionConfig and
// models.ConfigRequest before they call NewConfig.
func NewConfig(roads []Road, green, yellow int) (Config, error) {
	if len(roads) == 0 {
		return Config{}, &ConfigError{Field: "roads", Reason: "at least one road is required"}
	}

	seen := make(map[Road]struct{}, len(roads))
	for i, r := range roads {
		if strings.TrimSpace(string(r)) == "" {
			return Config{}, &ConfigError{Field: fmt.Sprintf("roads[%d]", i), Reason: "road name is blank"}
		}
		if _, dup := seen[r]; dup {
			return Config{}, &ConfigError{Field: fmt.Sprintf("roads[%d]", i), Reason: fmt.Sprintf("duplicate road %q", r)}
		}
		seen[r] = struct{}{}
	}

	if green < MinPhaseTicks || green > MaxGreenTicks {
		return Config{}, &ConfigError{
			Field:  "green",
			Reason: fmt.Sprintf("must be within [%d,%d], got %d", MinPhaseTicks, MaxGreenTicks, green),
		}
	}
	if yellow < MinPhaseTicks || yellow > MaxYellowTicks {
		return Config{}, &ConfigError{
			Field:  "yellow",
			Reason: fmt.Sprintf("must be within [%d,%d], got %d", MinPhaseTicks, MaxYellowTicks, yellow),
		}
	}

	return Config{
		roads:  append([]Road(nil), roads...),
		green:  green,
		yellow: yellow,
	}, nil
}

// Roads returns the configured roads in order.
func (c Config) Roads() []Road {
	return append([]Road(nil), c.roads...)
}

// Green returns the green phase duration in ticks.
func (c Config) Green() int { return c.green }

// Yellow returns the yellow phase duration in ticks.
func (c Config) Yellow() int { return c.yellow }

// Has reports whether road is part of the intersection.
func (c Config) Has(road Road) bool {
	return c.indexOf(road) >= 0
}

// CycleTicks is the length of one fair round.
func (c Config) CycleTicks() int {
	return len(c.roads) * (c.green + c.yellow)
}

func (c Config) indexOf(road Road) int {
	for i, r := range c.roads {
		if r == road {
			return i
		}
	}
	return -1
}

func (c Config) valid() bool {
	return len(c.roads) > 0 && c.green >= MinPhaseTicks && c.yellow >= MinPhaseTicks
}
