package drift

import (
	"fmt"
	"strings"
)

// Severity ranks how disruptive a detected change is. It orders output and
// nothing else.
type Severity int

const (
	// Low covers additive or cosmetic changes.
	Low Severity = iota + 1
	// Medium covers constraint changes that may reject existing writes.
	Medium
	// High covers changes that can lose data or break readers.
	High
)

// String returns the uppercase label for the severity level.
func (s Severity) String() string {
	switch s {
	case Low:
		return "LOW"
	case Medium:
		return "MEDIUM"
	case High:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the label so JSON output stays readable.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a label produced by MarshalText.
func (s *Severity) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "LOW":
		*s = Low
	case "MEDIUM":
		*s = Medium
	case "HIGH":
		*s = High
	default:
		return fmt.Errorf("unknown severity %q", string(b))
	}

	return nil
}
