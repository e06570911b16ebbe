package sql

import (
	"context"
	"strings"

	core "revtrail/data/db"
	"revtrail/data/db/dialect"
)

type selectBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	cols    []string
	table   string
	where   []string
	args    []any
	orderBy []string
	limit   int
	offset  int
}

func (b *selectBuilder) From(table string) ISelectBuilder {
	b.table = table
	return b
}

func (b *selectBuilder) Where(cond string, args ...any) ISelectBuilder {
	if cond != "" {
		b.where = append(b.where, cond)
		b.args = append(b.args, args...)
	}
	return b
}

func (b *selectBuilder) WhereIn(column string, values ...any) ISelectBuilder {
	col := mustQuote("selectBuilder", "column", column, b.dialect.QuoteIdentifier)
	b.where = append(b.where, inClause(col, len(values)))
	b.args = append(b.args, values...)
	return b
}

// OrderBy 追加排序列，可多次调用形成多列排序
func (b *selectBuilder) OrderBy(column string, desc bool) ISelectBuilder {
	if column == "" {
		return b
	}
	expr := mustQuote("selectBuilder", "order column", column, b.dialect.QuoteIdentifier)
	if desc {
		expr += " DESC"
	} else {
		expr += " ASC"
	}
	b.orderBy = append(b.orderBy, expr)
	return b
}

// Limit n <= 0 表示不限制
func (b *selectBuilder) Limit(n int) ISelectBuilder {
	b.limit = n
	return b
}

func (b *selectBuilder) Offset(n int) ISelectBuilder {
	b.offset = n
	return b
}

func (b *selectBuilder) Build() (string, []any) {
	cols := make([]string, len(b.cols))
	for i, c := range b.cols {
		if c == "*" || strings.Contains(c, "(") {
			// 聚合表达式（如 COUNT(*)）由调用方保证安全
			cols[i] = c
			continue
		}
		cols[i] = mustQuote("selectBuilder", "column", c, b.dialect.QuoteIdentifier)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(mustQuote("selectBuilder", "table", b.table, b.dialect.QuoteIdentifier))

	// 使用局部 args 副本，避免在多次 Build 调用之间污染 builder 状态。
	args := make([]any, 0, len(b.args)+2)
	args = append(args, b.args...)

	if len(b.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.where, " AND "))
	}
	if len(b.orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(b.orderBy, ", "))
	}
	if b.limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, b.limit)
	}
	if b.offset > 0 {
		sb.WriteString(" OFFSET ?")
		args = append(args, b.offset)
	}
	return sb.String(), args
}

func (b *selectBuilder) Query(ctx context.Context) (core.IRows, error) {
	q, args := b.Build()
	return b.db.Query(ctx, q, args...)
}

func (b *selectBuilder) QueryRow(ctx context.Context) core.IRow {
	q, args := b.Build()
	return b.db.QueryRow(ctx, q, args...)
}
