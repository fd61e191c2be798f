package hazard

import (
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// checkAlterTable covers the ALTER TABLE subcommands that rewrite, scan or
// reshape a table while holding an ACCESS EXCLUSIVE lock.
func checkAlterTable(stmt *pg_query.Node) []Hazard {
	alt := stmt.GetAlterTableStmt()
	if alt == nil {
		return nil
	}

	table := tableName(alt.GetRelation())

	var out []Hazard

	for _, n := range alt.GetCmds() {
		cmd := n.GetAlterTableCmd()
		if cmd == nil {
			continue
		}

		h := Hazard{Table: table, Lock: lockAccessExclusive}

		switch cmd.GetSubtype() {
		case pg_query.AlterTableType_AT_AddColumn:
			def := defaultOf(cmd.GetDef().GetColumnDef())
			if def == nil || !volatile(def) {
				continue
			}

			h.Check = "add-column-volatile-default"
			h.Level = High
			h.Message = "ADD COLUMN with a volatile DEFAULT rewrites the whole table"
			h.Suggestion = "add the column without a default, backfill in batches, then set the default"
		case pg_query.AlterTableType_AT_DropColumn:
			h.Check = "drop-column"
			h.Level = High
			h.Message = "DROP COLUMN " + cmd.GetName() + " removes data and the field from the REST API"
			h.Suggestion = "stop reading the column in every client before dropping it"
		case pg_query.AlterTableType_AT_AddConstraint:
			c := cmd.GetDef().GetConstraint()
			if c == nil || c.GetSkipValidation() {
				continue
			}

			if c.GetContype() != pg_query.ConstrType_CONSTR_CHECK && c.GetContype() != pg_query.ConstrType_CONSTR_FOREIGN {
				continue
			}

			h.Check = "constraint-without-not-valid"
			h.Level = High
			h.Message = "ADD CONSTRAINT validates every existing row while holding the lock"
			h.Suggestion = "add it NOT VALID, then VALIDATE CONSTRAINT in a later statement"
		case pg_query.AlterTableType_AT_AlterColumnType:
			h.Check = "alter-column-type"
			h.Level = High
			h.Message = "ALTER COLUMN " + cmd.GetName() + " TYPE rewrites the whole table"
			h.Suggestion = "add a new column, backfill it, switch clients over, then drop the old one"
		case pg_query.AlterTableType_AT_SetNotNull:
			h.Check = "set-not-null"
			h.Level = Medium
			h.Message = "SET NOT NULL scans the table to prove no NULLs exist"
			h.Suggestion = "add CHECK (col IS NOT NULL) NOT VALID, validate it, then SET NOT NULL"
		default:
			continue
		}

		out = append(out, h)
	}

	return out
}

func checkCreateIndex(stmt *pg_query.Node) []Hazard {
	idx := stmt.GetIndexStmt()
	if idx == nil || idx.GetConcurrent() {
		return nil
	}

	return []Hazard{{
		Check:      "index-not-concurrent",
		Level:      High,
		Table:      tableName(idx.GetRelation()),
		Message:    "CREATE INDEX without CONCURRENTLY blocks writes for the whole build",
		Suggestion: "use CREATE INDEX CONCURRENTLY in a migration of its own",
		Lock:       "SHARE",
	}}
}

func checkDrop(stmt *pg_query.Node) []Hazard {
	drop := stmt.GetDropStmt()
	if drop == nil {
		return nil
	}

	switch drop.GetRemoveType() {
	case pg_query.ObjectType_OBJECT_TABLE:
		return []Hazard{{
			Check:      "drop-table",
			Level:      Critical,
			Table:      strings.Join(dropNames(drop), ", "),
			Message:    "DROP TABLE permanently deletes the table and its REST endpoint",
			Suggestion: "take a backup and confirm no client still calls the endpoint",
			Lock:       lockAccessExclusive,
		}}
	case pg_query.ObjectType_OBJECT_VIEW, pg_query.ObjectType_OBJECT_FUNCTION:
		return []Hazard{{
			Check:      "drop-api-object",
			Level:      Medium,
			Table:      strings.Join(dropNames(drop), ", "),
			Message:    "dropping a view or function removes it from the REST API",
			Suggestion: "recreate it in the same migration or retire its callers first",
		}}
	default:
		return nil
	}
}

func checkTruncate(stmt *pg_query.Node) []Hazard {
	trunc := stmt.GetTruncateStmt()
	if trunc == nil {
		return nil
	}

	var tables []string

	for _, rel := range trunc.GetRelations() {
		if rv := rel.GetRangeVar(); rv != nil {
			tables = append(tables, tableName(rv))
		}
	}

	return []Hazard{{
		Check:      "truncate",
		Level:      Critical,
		Table:      strings.Join(tables, ", "),
		Message:    "TRUNCATE removes every row and cannot be undone by a later migration",
		Suggestion: "take a backup before truncating production tables",
		Lock:       lockAccessExclusive,
	}}
}

func checkRename(stmt *pg_query.Node) []Hazard {
	rename := stmt.GetRenameStmt()
	if rename == nil {
		return nil
	}

	h := Hazard{
		Check: "rename",
		Level: Medium,
		Table: tableName(rename.GetRelation()),
		Lock:  lockAccessExclusive,
	}

	switch rename.GetRenameType() {
	case pg_query.ObjectType_OBJECT_TABLE:
		h.Message = "RENAME TABLE changes the REST endpoint path; clients using the old name break"
		h.Suggestion = "expose the old name through a view until clients move over"
	case pg_query.ObjectType_OBJECT_COLUMN:
		h.Message = "RENAME COLUMN " + rename.GetSubname() + " changes the field name clients select"
		h.Suggestion = "add the new column, backfill, move clients, then drop the old column"
	default:
		return nil
	}

	return []Hazard{h}
}

func checkVacuumFull(stmt *pg_query.Node) []Hazard {
	vac := stmt.GetVacuumStmt()
	if vac == nil {
		return nil
	}

	full := false

	for _, opt := range vac.GetOptions() {
		if opt.GetDefElem().GetDefname() == "full" {
			full = true
		}
	}

	if !full {
		return nil
	}

	table := "<all tables>"

	for _, rel := range vac.GetRels() {
		if rv := rel.GetVacuumRelation().GetRelation(); rv != nil {
			table = tableName(rv)
			break
		}
	}

	return []Hazard{{
		Check:      "vacuum-full",
		Level:      High,
		Table:      table,
		Message:    "VACUUM FULL rewrites the table and blocks reads and writes",
		Suggestion: "use plain VACUUM, which runs alongside traffic",
		Lock:       lockAccessExclusive,
	}}
}

func checkLockTable(stmt *pg_query.Node) []Hazard {
	lock := stmt.GetLockStmt()
	if lock == nil {
		return nil
	}

	var out []Hazard

	for _, rel := range lock.GetRelations() {
		rv := rel.GetRangeVar()
		if rv == nil {
			continue
		}

		out = append(out, Hazard{
			Check:      "lock-table",
			Level:      High,
			Table:      tableName(rv),
			Message:    "explicit LOCK TABLE queues every API request touching the table",
			Suggestion: "rely on the locks the DDL takes itself",
			Lock:       "EXPLICIT",
		})
	}

	return out
}

// defaultOf returns the DEFAULT expression of a column definition, stored
// by the parser as a CONSTR_DEFAULT constraint.
func defaultOf(col *pg_query.ColumnDef) *pg_query.Node {
	for _, c := range col.GetConstraints() {
		if con := c.GetConstraint(); con != nil && con.GetContype() == pg_query.ConstrType_CONSTR_DEFAULT {
			return con.GetRawExpr()
		}
	}

	return nil
}

// volatile reports whether a default expression may differ per row.
// Constants and casts of constants are stable; anything else, function
// calls included, is treated as volatile.
func volatile(n *pg_query.Node) bool {
	if n.GetAConst() != nil {
		return false
	}

	if tc := n.GetTypeCast(); tc != nil {
		return tc.GetArg().GetAConst() == nil
	}

	return true
}

func dropNames(drop *pg_query.DropStmt) []string {
	var names []string

	for _, obj := range drop.GetObjects() {
		var parts []string

		if list := obj.GetList(); list != nil {
			for _, item := range list.GetItems() {
				if s := item.GetString_(); s != nil {
					parts = append(parts, s.GetSval())
				}
			}
		}

		if fn := obj.GetObjectWithArgs(); fn != nil {
			for _, item := range fn.GetObjname() {
				if s := item.GetString_(); s != nil {
					parts = append(parts, s.GetSval())
				}
			}
		}

		if len(parts) > 0 {
			names = append(names, strings.Join(parts, "."))
		}
	}

	return names
}
