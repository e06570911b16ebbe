package basic

import (
	"context"
	"database/sql"
	"errors"

	core "revtrail/data/db"
	"revtrail/data/db/dialect"
)

// errNestedTx 事务边界只由 core.RunInTx 的调用方决定
var errNestedTx = errors.New("basic: nested transactions are not supported")

// sqlConn *sql.DB 与 *sql.Tx 共有的方法
type sqlConn interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// executor 按方言改写占位符后执行语句，DB 与 Tx 共用
type executor struct {
	conn    sqlConn
	dialect dialect.Dialect
}

func (e executor) Query(ctx context.Context, query string, args ...any) (core.IRows, error) {
	rows, err := e.conn.QueryContext(ctx, e.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return &Rows{rows: rows}, nil
}

func (e executor) QueryRow(ctx context.Context, query string, args ...any) core.IRow {
	return &Row{row: e.conn.QueryRowContext(ctx, e.dialect.Rebind(query), args...)}
}

func (e executor) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return e.conn.ExecContext(ctx, e.dialect.Rebind(query), args...)
}

// GetDialectName 实现 core.IDialectNameProvider，SQL 构建器据此选择方言
func (e executor) GetDialectName() string { return string(e.dialect.Name()) }

// Tx 事务；同时满足 core.IDatabase，可以直接交给 SQL 构建器和修订存储
type Tx struct {
	executor
	db *sql.DB
	tx *sql.Tx
}

func (t *Tx) Begin(context.Context) (core.ITransaction, error) { return nil, errNestedTx }

func (t *Tx) BeginTx(context.Context, *sql.TxOptions) (core.ITransaction, error) {
	return nil, errNestedTx
}

func (t *Tx) Ping(ctx context.Context) error { return t.db.PingContext(ctx) }

// Close 事务不持有连接，由 Commit / Rollback 结束
func (t *Tx) Close() error { return nil }
func (t *Tx) Raw() any     { return t.tx }

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }
