package hazard

// Level ranks how disruptive a statement is for a live database.
type Level int

// Hazard levels, lowest first.
const (
	Low Level = iota + 1
	Medium
	High
	Critical
)

// String returns the uppercase label.
func (l Level) String() string {
	switch l {
	case Low:
		return "LOW"
	case Medium:
		return "MEDIUM"
	case High:
		return "HIGH"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the label.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}
