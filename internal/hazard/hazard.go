// Package hazard flags migration statements that lock or rewrite tables,
// destroy data, or break clients of the PostgREST API built on the schema.
// Findings are advisory: they are reported when a migration is created or
// previewed and never block it.
package hazard

import (
	"cmp"
	"slices"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/aqasim81/pgledger/internal/parser"
)

const (
	lockAccessExclusive = "ACCESS EXCLUSIVE"
	maxStatementLen     = 80
)

// Hazard is one risky statement found in a migration.
type Hazard struct {
	Check      string `json:"check"`
	Level      Level  `json:"level"`
	Table      string `json:"table"`
	Statement  string `json:"statement"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion"`
	Lock       string `json:"lock,omitempty"`
}

// checkFunc inspects one parsed statement.
type checkFunc func(stmt *pg_query.Node) []Hazard

//nolint:gochecknoglobals // fixed check table
var checks = []checkFunc{
	checkAlterTable,
	checkCreateIndex,
	checkDrop,
	checkTruncate,
	checkRename,
	checkVacuumFull,
	checkLockTable,
}

// Inspect parses sql and returns its hazards ordered by level, most severe
// first, then by statement position. SQL the parser rejects is returned as
// an error.
func Inspect(sql string) ([]Hazard, error) {
	parsed, err := parser.Parse(sql)
	if err != nil {
		return nil, err
	}

	body := strings.TrimSpace(sql)

	type found struct {
		Hazard
		pos int
	}

	var all []found

	for i, raw := range parsed.Stmts {
		text := statementText(raw, body)

		for _, check := range checks {
			for _, h := range check(raw.GetStmt()) {
				h.Statement = text
				all = append(all, found{Hazard: h, pos: i})
			}
		}
	}

	slices.SortStableFunc(all, func(a, b found) int {
		if c := cmp.Compare(b.Level, a.Level); c != 0 {
			return c
		}

		return cmp.Compare(a.pos, b.pos)
	})

	out := make([]Hazard, 0, len(all))
	for _, f := range all {
		out = append(out, f.Hazard)
	}

	return out, nil
}

// Max returns the highest level among hs, or zero when hs is empty.
func Max(hs []Hazard) Level {
	var top Level

	for _, h := range hs {
		top = max(top, h.Level)
	}

	return top
}

func statementText(raw *pg_query.RawStmt, body string) string {
	start := int(raw.GetStmtLocation())
	end := len(body)

	if n := int(raw.GetStmtLen()); n > 0 && start+n <= len(body) {
		end = start + n
	}

	if start < 0 || start >= end {
		return ""
	}

	text := strings.Join(strings.Fields(body[start:end]), " ")
	text = strings.TrimSpace(strings.TrimSuffix(text, ";"))
	if len(text) > maxStatementLen {
		text = text[:maxStatementLen-3] + "..."
	}

	return text
}

func tableName(rv *pg_query.RangeVar) string {
	if rv == nil {
		return "<unknown>"
	}

	if rv.GetSchemaname() != "" {
		return rv.GetSchemaname() + "." + rv.GetRelname()
	}

	return rv.GetRelname()
}
