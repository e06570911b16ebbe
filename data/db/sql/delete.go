package sql

import (
	"context"
	"database/sql"
	"strings"

	core "revtrail/data/db"
	"revtrail/data/db/dialect"
)

type deleteBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	table string
	where []string
	args  []any
}

func (b *deleteBuilder) Where(cond string, args ...any) IDeleteBuilder {
	if cond != "" {
		b.where = append(b.where, cond)
		b.args = append(b.args, args...)
	}
	return b
}

func (b *deleteBuilder) WhereIn(column string, values ...any) IDeleteBuilder {
	col := mustQuote("deleteBuilder", "column", column, b.dialect.QuoteIdentifier)
	b.where = append(b.where, inClause(col, len(values)))
	b.args = append(b.args, values...)
	return b
}

// Build 没有 WHERE 条件时 panic，整表删除必须显式写 Where("1 = 1")
func (b *deleteBuilder) Build() (string, []any) {
	if len(b.where) == 0 {
		panic("deleteBuilder: refusing to build DELETE without WHERE")
	}
	args := make([]any, len(b.args))
	copy(args, b.args)

	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(mustQuote("deleteBuilder", "table", b.table, b.dialect.QuoteIdentifier))
	sb.WriteString(" WHERE ")
	sb.WriteString(strings.Join(b.where, " AND "))
	return sb.String(), args
}

func (b *deleteBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args := b.Build()
	return b.db.Exec(ctx, q, args...)
}
