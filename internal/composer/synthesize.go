package composer

import (
	"fmt"
	"strings"

	"github.com/aqasim81/pgledger/internal/drift"
)

const noFragment = "-- (no SQL available for this change; write it by hand)"

// fromChanges builds forward and reverse scripts from drift changes. Each
// fragment is preceded by a comment naming the change. The reverse script
// undoes the changes in the opposite order.
func fromChanges(changes []drift.Change) (forward, reverse string) {
	var fw, rv strings.Builder

	fmt.Fprintf(&fw, "-- Generated from %d detected schema change(s)\n", len(changes))

	for _, ch := range changes {
		fmt.Fprintf(&fw, "\n-- [%s] %s\n", ch.Severity, ch.Description)
		fw.WriteString(orPlaceholder(ch.ForwardSQL) + "\n")
	}

	for i := len(changes) - 1; i >= 0; i-- {
		ch := changes[i]

		if rv.Len() > 0 {
			rv.WriteString("\n")
		}

		fmt.Fprintf(&rv, "-- undo: %s\n", ch.Description)
		rv.WriteString(orPlaceholder(ch.ReverseSQL) + "\n")
	}

	return fw.String(), rv.String()
}

func orPlaceholder(sql string) string {
	if strings.TrimSpace(sql) == "" {
		return noFragment
	}

	return sql
}

// template returns the annotated placeholder written when no SQL is given.
func template(description string) string {
	return fmt.Sprintf(`-- %s
--
-- Write the forward SQL for this migration here. Statements run in order,
-- inside one transaction unless the script contains CREATE INDEX CONCURRENTLY.
--
-- Example:
--   ALTER TABLE public.profiles ADD COLUMN avatar_url text;
--   CREATE INDEX idx_profiles_avatar_url ON public.profiles (avatar_url);
`, description)
}
