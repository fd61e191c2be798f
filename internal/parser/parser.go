// Package parser inspects migration SQL with the PostgreSQL parser.
package parser //nolint:revive // internal package, no clash with go/parser in practice

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// ParseResult holds the parsed statements and the original SQL.
type ParseResult struct {
	Stmts []*pg_query.RawStmt
	SQL   string
}

// Parse parses a PostgreSQL SQL string.
// Empty or whitespace-only input yields zero statements.
func Parse(sql string) (*ParseResult, error) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return &ParseResult{SQL: sql}, nil
	}

	tree, err := pg_query.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parsing SQL: %w", err)
	}

	return &ParseResult{
		Stmts: tree.Stmts,
		SQL:   sql,
	}, nil
}

// Summary describes the statements in a migration body.
type Summary struct {
	Statements int
	// Concurrent is set when any statement is CREATE INDEX CONCURRENTLY,
	// which cannot run inside a transaction block.
	Concurrent bool
	Kinds      []string
}

// Inspect parses sql and summarizes its statements.
func Inspect(sql string) (*Summary, error) {
	result, err := Parse(sql)
	if err != nil {
		return nil, err
	}

	s := &Summary{Statements: len(result.Stmts)}

	for _, raw := range result.Stmts {
		s.Kinds = append(s.Kinds, kind(raw.GetStmt()))

		if idx := raw.GetStmt().GetIndexStmt(); idx != nil && idx.GetConcurrent() {
			s.Concurrent = true
		}
	}

	return s, nil
}

// ContainsConcurrentIndex reports whether sql contains CREATE INDEX CONCURRENTLY.
func ContainsConcurrentIndex(sql string) (bool, error) {
	s, err := Inspect(sql)
	if err != nil {
		return false, fmt.Errorf("detecting concurrent index: %w", err)
	}

	return s.Concurrent, nil
}

func kind(n *pg_query.Node) string {
	switch n.GetNode().(type) {
	case *pg_query.Node_CreateStmt:
		return "CREATE TABLE"
	case *pg_query.Node_AlterTableStmt:
		return "ALTER TABLE"
	case *pg_query.Node_IndexStmt:
		return "CREATE INDEX"
	case *pg_query.Node_DropStmt:
		return "DROP"
	case *pg_query.Node_RenameStmt:
		return "RENAME"
	case *pg_query.Node_ViewStmt:
		return "CREATE VIEW"
	case *pg_query.Node_CreateFunctionStmt:
		return "CREATE FUNCTION"
	case *pg_query.Node_CreateTrigStmt:
		return "CREATE TRIGGER"
	case *pg_query.Node_CreatePolicyStmt:
		return "CREATE POLICY"
	case *pg_query.Node_GrantStmt:
		return "GRANT"
	case *pg_query.Node_InsertStmt:
		return "INSERT"
	case *pg_query.Node_UpdateStmt:
		return "UPDATE"
	case *pg_query.Node_DeleteStmt:
		return "DELETE"
	case *pg_query.Node_SelectStmt:
		return "SELECT"
	default:
		return "OTHER"
	}
}

// Split breaks sql into individual statements, trimming surrounding space.
func Split(sql string) ([]string, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, nil
	}

	stmts, err := pg_query.SplitWithParser(sql, true)
	if err != nil {
		return nil, fmt.Errorf("splitting SQL: %w", err)
	}

	return stmts, nil
}
