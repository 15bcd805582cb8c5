package remote

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the remote channel failure classes. Callers use
// errors.Is / errors.As to branch; presentation-layer rewriting of these
// into user-facing text happens elsewhere.
var (
	// ErrConfig means the SSH credential is absent or malformed. Fatal, never retried.
	ErrConfig = errors.New("ssh configuration error")

	// ErrTransport covers connection-level failures: refused, unreachable, auth.
	ErrTransport = errors.New("ssh transport error")

	// ErrTimeout means the command exceeded its deadline (soft or hard).
	ErrTimeout = errors.New("command timed out")
)

// ExitError is returned when the remote command ran but exited non-zero
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	line := FirstLine(e.Stderr)
	if line == "" {
		return fmt.Sprintf("command exited with status %d", e.Code)
	}
	return fmt.Sprintf("command exited with status %d: %s", e.Code, line)
}

// FirstLine returns the first non-empty line of s, trimmed
func FirstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}
