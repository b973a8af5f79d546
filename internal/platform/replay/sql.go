package replay

import (
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
)

var dialect = goqu.Dialect("postgres")

func insertSQL(t Table, row map[string]any) (string, []any, error) {
	return dialect.Insert(t.Name).Prepared(true).Rows(goqu.Record(row)).ToSQL()
}

func updateSQL(t Table, key any, set map[string]any) (string, []any, error) {
	return dialect.Update(t.Name).Prepared(true).
		Set(goqu.Record(set)).
		Where(goqu.Ex{t.Key: key}).
		ToSQL()
}

func existsSQL(t Table, key any) (string, []any, error) {
	return dialect.From(t.Name).Prepared(true).
		Select(goqu.L("1")).
		Where(goqu.Ex{t.Key: key}).
		Limit(1).
		ToSQL()
}
