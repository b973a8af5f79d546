package db

import (
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
)

var dialect = goqu.Dialect("postgres")

// PartialUpdate builds an UPDATE that sets only the given columns on the row
// matching key = keyVal and returns the listed columns.
func PartialUpdate(table, key string, keyVal any, fields map[string]any, returning ...string) (string, []any, error) {
	ds := dialect.Update(table).Prepared(true).
		Set(goqu.Record(fields)).
		Where(goqu.Ex{key: keyVal})
	if len(returning) > 0 {
		cols := make([]any, len(returning))
		for i, c := range returning {
			cols[i] = goqu.L(c)
		}
		ds = ds.Returning(cols...)
	}
	return ds.ToSQL()
}
