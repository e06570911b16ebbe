package sql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	core "revtrail/data/db"
	"revtrail/data/db/dialect"
)

// insertBuilder 多行 INSERT，列名在 Columns 时校验并加引号
type insertBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	table string
	cols  []string
	rows  [][]any
}

func (b *insertBuilder) Columns(cols ...string) IInsertBuilder {
	b.cols = make([]string, len(cols))
	for i, col := range cols {
		b.cols[i] = mustQuote("insertBuilder", "column", col, b.dialect.QuoteIdentifier)
	}
	return b
}

func (b *insertBuilder) Values(vals ...any) IInsertBuilder {
	if len(vals) > 0 {
		b.rows = append(b.rows, vals)
	}
	return b
}

func (b *insertBuilder) Build() (string, []any) {
	return b.build(b.rows)
}

// build 列数与每行值的个数不一致时 panic
func (b *insertBuilder) build(rows [][]any) (string, []any) {
	switch {
	case len(b.cols) == 0:
		panic("insertBuilder: Columns is required")
	case len(rows) == 0:
		panic("insertBuilder: at least one row is required")
	}

	tuple := "(?" + strings.Repeat(", ?", len(b.cols)-1) + ")"
	tuples := make([]string, len(rows))
	args := make([]any, 0, len(rows)*len(b.cols))
	for i, row := range rows {
		if len(row) != len(b.cols) {
			panic(fmt.Sprintf("insertBuilder: row %d has %d values for %d columns", i, len(row), len(b.cols)))
		}
		tuples[i] = tuple
		args = append(args, row...)
	}

	table := mustQuote("insertBuilder", "table", b.table, b.dialect.QuoteIdentifier)
	query := "INSERT INTO " + table + " (" + strings.Join(b.cols, ", ") + ") VALUES " + strings.Join(tuples, ", ")
	return query, args
}

func (b *insertBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args := b.Build()
	return b.db.Exec(ctx, q, args...)
}

// ExecChunked 每 size 行执行一条语句，返回驱动报告的写入行数；size <= 0 时一次写入
//
// 分块不构成事务，需要全有或全无时由调用方在事务内执行。
func (b *insertBuilder) ExecChunked(ctx context.Context, size int) (int64, error) {
	if size <= 0 {
		size = len(b.rows)
	}
	var written int64
	for start := 0; start < len(b.rows); start += size {
		q, args := b.build(b.rows[start:min(start+size, len(b.rows))])
		res, err := b.db.Exec(ctx, q, args...)
		if err != nil {
			return written, err
		}
		if n, err := res.RowsAffected(); err == nil {
			written += n
		}
	}
	return written, nil
}
