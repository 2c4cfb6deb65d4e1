package config

import (
	"errors"
	"strings"
)

// Error lists every configuration problem found by Load.
type Error struct {
	Problems []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("configuration errors:")
	for _, p := range e.Problems {
		b.WriteString("\n  * ")
		b.WriteString(p)
	}
	return b.String()
}

// IsConfigError reports whether err is, or wraps, a *Error.
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}
