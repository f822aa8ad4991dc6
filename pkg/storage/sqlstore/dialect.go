// Package sqlstore implements storage.RecordStore over database/sql. The
// backend packages (sqlite, postgres, oceanbase) open the connection, create
// the schema and pick the Dialect; the queries live here.
package sqlstore

import (
	"fmt"
	"regexp"
	"strings"
)

// Dialect captures the SQL differences between backends.
type Dialect struct {
	// Name identifies the backend in errors and logs.
	Name string

	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder func(n int) string

	// Upsert returns the conflict clause appended to an INSERT so that a row
	// whose key columns already exist has updateCols replaced.
	Upsert func(keyCols, updateCols []string) string

	// Quote quotes a table name.
	Quote func(name string) string
}

// SQLite is the dialect of mattn/go-sqlite3.
var SQLite = Dialect{
	Name:        "sqlite",
	Placeholder: func(int) string { return "?" },
	Upsert:      onConflict,
	Quote:       func(name string) string { return `"` + name + `"` },
}

// MySQL is the dialect of go-sql-driver/mysql, used for OceanBase.
var MySQL = Dialect{
	Name:        "mysql",
	Placeholder: func(int) string { return "?" },
	Upsert: func(_, updateCols []string) string {
		sets := make([]string, len(updateCols))
		for i, c := range updateCols {
			sets[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
		}
		return "ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	},
	Quote: func(name string) string { return "`" + name + "`" },
}

// Postgres returns the dialect of lib/pq with the given identifier quoting.
func Postgres(quote func(string) string) Dialect {
	return Dialect{
		Name:        "postgres",
		Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		Upsert:      onConflict,
		Quote:       quote,
	}
}

func onConflict(keyCols, updateCols []string) string {
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		sets[i] = fmt.Sprintf("%s = excluded.%s", c, c)
	}
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(keyCols, ", "), strings.Join(sets, ", "))
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidIdentifier reports whether name is safe to use as a table name prefix
// or suffix without quoting surprises.
func ValidIdentifier(name string) bool {
	return identifier.MatchString(name)
}

// placeholders returns "p1, p2, ..., pn" for n arguments starting at start.
func (d Dialect) placeholders(start, n int) string {
	marks := make([]string, n)
	for i := range marks {
		marks[i] = d.Placeholder(start + i)
	}
	return strings.Join(marks, ", ")
}
