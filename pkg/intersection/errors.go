package intersection

import (
	"errors"
	"fmt"
)

// ErrInvalidConfiguration is returned when an intersection cannot be built
// from the given configuration.
var ErrInvalidConfiguration = errors.New("invalid intersection configuration")

// ConfigError describes which configuration field was rejected.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrInvalidConfiguration, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfiguration }
