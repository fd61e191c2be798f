// Package drift diffs schema snapshots into typed changes and tracks
// whether the live database still matches its accepted baseline.
package drift

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/aqasim81/pgledger/internal/snapshot"
)

// Compare returns the column differences from old to current, most severe
// first. With ignoreMinor, differences confined to default expressions are
// dropped. Identical snapshots yield an empty slice.
func Compare(old, current *snapshot.Snapshot, ignoreMinor bool) []Change {
	schema := current.Schema
	if schema == "" {
		schema = old.Schema
	}

	before := old.Index()
	after := current.Index()
	oldTables := old.Tables()

	changes := []Change{}

	for _, col := range current.Columns {
		prev, ok := before[col.Key()]
		if !ok {
			_, tableExisted := oldTables[col.Table]
			changes = append(changes, added(schema, col, tableExisted))

			continue
		}

		if ch, ok := modified(schema, prev, col, ignoreMinor); ok {
			changes = append(changes, ch)
		}
	}

	for _, col := range old.Columns {
		if _, ok := after[col.Key()]; !ok {
			changes = append(changes, removed(schema, col))
		}
	}

	slices.SortStableFunc(changes, func(a, b Change) int {
		if c := cmp.Compare(b.Severity, a.Severity); c != 0 {
			return c
		}

		if c := cmp.Compare(a.Table, b.Table); c != 0 {
			return c
		}

		return cmp.Compare(a.Column, b.Column)
	})

	return changes
}

func added(schema string, col snapshot.Column, tableExisted bool) Change {
	table := qualified(schema, col.Table)

	forward := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s;", table, definition(col))
	if !tableExisted {
		forward = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s ();\n%s", table, forward)
	}

	return Change{
		Description: fmt.Sprintf("Added column %s.%s (%s)", col.Table, col.Column, col.DataType),
		Type:        Added,
		Severity:    Low,
		Table:       col.Table,
		Column:      col.Column,
		ForwardSQL:  forward,
		ReverseSQL:  fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", table, ident(col.Column)),
	}
}

func removed(schema string, col snapshot.Column) Change {
	table := qualified(schema, col.Table)

	return Change{
		Description: fmt.Sprintf("Removed column %s.%s", col.Table, col.Column),
		Type:        Removed,
		Severity:    High,
		Table:       col.Table,
		Column:      col.Column,
		ForwardSQL:  fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", table, ident(col.Column)),
		ReverseSQL:  fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s;", table, definition(col)),
	}
}

func modified(schema string, prev, col snapshot.Column, ignoreMinor bool) (Change, bool) {
	var (
		details  []string
		forward  []string
		reverse  []string
		severity Severity
	)

	alter := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s", qualified(schema, col.Table), ident(col.Column))

	if prev.DataType != col.DataType {
		details = append(details, fmt.Sprintf("type %s -> %s", prev.DataType, col.DataType))
		forward = append(forward, fmt.Sprintf("%s TYPE %s;", alter, col.DataType))
		reverse = append(reverse, fmt.Sprintf("%s TYPE %s;", alter, prev.DataType))
		severity = max(severity, High)
	}

	if prev.Nullable != col.Nullable {
		details = append(details, fmt.Sprintf("nullable %t -> %t", prev.Nullable, col.Nullable))
		forward = append(forward, alter+" "+nullability(col.Nullable)+";")
		reverse = append(reverse, alter+" "+nullability(prev.Nullable)+";")
		severity = max(severity, Medium)
	}

	if !ignoreMinor && !sameDefault(prev.DefaultExpr, col.DefaultExpr) {
		details = append(details, fmt.Sprintf("default %s -> %s", showDefault(prev.DefaultExpr), showDefault(col.DefaultExpr)))
		forward = append(forward, alter+" "+setDefault(col.DefaultExpr)+";")
		reverse = append(reverse, alter+" "+setDefault(prev.DefaultExpr)+";")
		severity = max(severity, Low)
	}

	if len(details) == 0 {
		return Change{}, false
	}

	slices.Reverse(reverse)

	return Change{
		Description: fmt.Sprintf("Modified column %s.%s: %s", col.Table, col.Column, strings.Join(details, ", ")),
		Type:        Modified,
		Severity:    severity,
		Table:       col.Table,
		Column:      col.Column,
		ForwardSQL:  strings.Join(forward, "\n"),
		ReverseSQL:  strings.Join(reverse, "\n"),
	}, true
}

func qualified(schema, table string) string {
	if schema == "" {
		return ident(table)
	}

	return pgx.Identifier{schema, table}.Sanitize()
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func definition(col snapshot.Column) string {
	def := ident(col.Column) + " " + col.DataType

	if !col.Nullable {
		def += " NOT NULL"
	}

	if col.DefaultExpr != nil {
		def += " DEFAULT " + *col.DefaultExpr
	}

	return def
}

func nullability(nullable bool) string {
	if nullable {
		return "DROP NOT NULL"
	}

	return "SET NOT NULL"
}

func setDefault(expr *string) string {
	if expr == nil {
		return "DROP DEFAULT"
	}

	return "SET DEFAULT " + *expr
}

func sameDefault(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	return *a == *b
}

func showDefault(expr *string) string {
	if expr == nil {
		return "none"
	}

	return *expr
}
