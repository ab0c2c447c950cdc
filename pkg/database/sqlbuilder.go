package database

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

func Excluded(column string) string {
	return fmt.Sprintf("EXCLUDED.%s", column)
}

type InsertBuilder struct {
	*sqlbuilder.InsertBuilder
	suffix string
}

func NewInsertBuilder() *InsertBuilder {
	return &InsertBuilder{InsertBuilder: sqlbuilder.PostgreSQL.NewInsertBuilder()}
}

// OnConflict appends an upsert clause. assignments are raw "col = expr" pairs.
func (b *InsertBuilder) OnConflict(columns []string, assignments ...string) *InsertBuilder {
	b.suffix = fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(columns, ", "), strings.Join(assignments, ", "))
	return b
}

func (b *InsertBuilder) OnConflictDoNothing() *InsertBuilder {
	b.suffix = " ON CONFLICT DO NOTHING"
	return b
}

func (b *InsertBuilder) Returning(columns ...string) *InsertBuilder {
	b.suffix += " RETURNING " + strings.Join(columns, ", ")
	return b
}

func (b *InsertBuilder) Build() (string, []any) {
	query, args := b.InsertBuilder.Build()
	return query + b.suffix, args
}

func NewSelectBuilder() *sqlbuilder.SelectBuilder {
	return sqlbuilder.PostgreSQL.NewSelectBuilder()
}

func NewUpdateBuilder() *sqlbuilder.UpdateBuilder {
	return sqlbuilder.PostgreSQL.NewUpdateBuilder()
}

func NewDeleteBuilder() *sqlbuilder.DeleteBuilder {
	return sqlbuilder.PostgreSQL.NewDeleteBuilder()
}
