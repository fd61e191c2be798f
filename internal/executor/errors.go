package executor

import (
	"errors"
	"fmt"
	"strings"
)

// ErrExecutionFailed matches every *ExecutionError via errors.Is.
var ErrExecutionFailed = errors.New("SQL execution failed")

// ErrUnknownStrategy indicates the configured executor name is not supported.
var ErrUnknownStrategy = errors.New("unknown executor strategy")

// ExecutionError describes a failed SQL execution. Err carries the
// underlying cause when there is one.
type ExecutionError struct {
	Strategy string
	ExitCode int
	// Code is the PostgreSQL SQLSTATE when the server reported one.
	Code     string
	Stderr   string
	TimedOut bool
	Err      error
}

func (e *ExecutionError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s executor", e.Strategy)

	switch {
	case e.TimedOut:
		b.WriteString(": timed out")
	case e.ExitCode != 0:
		fmt.Fprintf(&b, ": exit status %d", e.ExitCode)
	}

	if e.Code != "" {
		fmt.Fprintf(&b, " (SQLSTATE %s)", e.Code)
	}

	if msg := firstLine(e.Stderr); msg != "" {
		b.WriteString(": " + msg)
	} else if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}

	return b.String()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrExecutionFailed.
func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecutionFailed
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}

	return s
}
