package drift

// ChangeType classifies a column difference.
type ChangeType string

// Change types.
const (
	Added    ChangeType = "added"
	Removed  ChangeType = "removed"
	Modified ChangeType = "modified"
)

// Change is one column-level difference between two snapshots. ForwardSQL
// reproduces the change on a database still matching the old snapshot;
// ReverseSQL undoes it.
type Change struct {
	Description string     `json:"description"`
	Type        ChangeType `json:"type"`
	Severity    Severity   `json:"severity"`
	Table       string     `json:"table"`
	Column      string     `json:"column"`
	ForwardSQL  string     `json:"forwardSql,omitempty"`
	ReverseSQL  string     `json:"reverseSql,omitempty"`
}
