package export

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/KaramelBytes/dedupe-cli/internal/annotate"
	"github.com/KaramelBytes/dedupe-cli/internal/table"
)

// SQLiteTable is the table name used by the SQLite writer.
const SQLiteTable = "deduplicated"

type sqliteWriter struct{}

func (sqliteWriter) CanWrite(path string) bool {
	name := strings.ToLower(path)
	return strings.HasSuffix(name, ".sqlite") || strings.HasSuffix(name, ".sqlite3") || strings.HasSuffix(name, ".db")
}

// Write builds the database in a temp file and renames it over path.
func (sqliteWriter) Write(path string, f *table.Frame) error {
	tmp := path + ".tmp"
	_ = os.Remove(tmp)
	if err := writeSQLite(tmp, f); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

func writeSQLite(path string, f *table.Frame) error {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()

	cols := columnNames(f.Header)
	types := columnTypes(f)
	defs := make([]string, len(cols))
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		defs[i] = fmt.Sprintf("%s %s", quoted[i], types[i])
	}
	if _, err := db.Exec(fmt.Sprintf(`CREATE TABLE %q (%s)`, SQLiteTable, strings.Join(defs, ","))); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	ph := strings.TrimRight(strings.Repeat("?,", len(cols)), ",")
	stmt, err := tx.Preparex(fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`, SQLiteTable, strings.Join(quoted, ","), ph))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	args := make([]any, len(cols))
	for i := range f.Data {
		for j := range cols {
			args[j] = sqliteValue(f.Field(i, j), types[j])
		}
		if _, err := stmt.Exec(args...); err != nil {
			stmt.Close()
			_ = tx.Rollback()
			return fmt.Errorf("insert row %d: %w", i+1, err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	for i, c := range cols {
		if c != annotate.GroupColumn {
			continue
		}
		idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS "idx_%s_group" ON %q(%s)`, SQLiteTable, SQLiteTable, quoted[i])
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// columnNames fills blank headers and disambiguates repeats case-insensitively,
// since SQLite column names are case-insensitive.
func columnNames(header []string) []string {
	out := make([]string, len(header))
	used := map[string]bool{}
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		cand := name
		for n := 2; used[strings.ToLower(cand)]; n++ {
			cand = fmt.Sprintf("%s_%d", name, n)
		}
		used[strings.ToLower(cand)] = true
		out[i] = cand
	}
	return out
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// columnTypes picks INTEGER or REAL for columns holding only numbers, TEXT otherwise.
func columnTypes(f *table.Frame) []string {
	out := make([]string, f.Cols())
	for j := range out {
		kind := "INTEGER"
		seen := false
		for i := range f.Data {
			v := f.Field(i, j)
			if v.IsMissing() {
				continue
			}
			seen = true
			x, ok := v.Float()
			if !ok {
				kind = "TEXT"
				break
			}
			if x != math.Trunc(x) || math.Abs(x) > 1<<53 {
				kind = "REAL"
			}
		}
		if !seen {
			kind = "TEXT"
		}
		out[j] = kind
	}
	return out
}

func sqliteValue(v table.Value, kind string) any {
	if v.IsMissing() {
		return nil
	}
	x, _ := v.Float()
	switch kind {
	case "INTEGER":
		return int64(x)
	case "REAL":
		return x
	default:
		return v.String()
	}
}
