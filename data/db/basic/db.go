package basic

import (
	"context"
	"database/sql"
	"time"

	core "revtrail/data/db"
	"revtrail/data/db/dialect"
)

// DB 基于 database/sql 的最小实现，满足 core.IDatabase 抽象
//
// 所有语句在执行前按方言改写占位符，调用方统一书写 ? 占位符。
type DB struct {
	executor
	db *sql.DB
}

// New 根据 core.DBConfig 创建数据库实例
//
// 调用方必须确保驱动已通过空导入注册：sqlite 使用 `_ "modernc.org/sqlite"`，
// postgres 使用 `_ "github.com/jackc/pgx/v5/stdlib"`。
func New(config core.DBConfig) (core.IDatabase, error) {
	driver := config.DriverName()
	db, err := sql.Open(driver, config.DataSource())
	if err != nil {
		return nil, err
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(config.ConnMaxLifetime) * time.Second)
	}
	if config.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(time.Duration(config.ConnMaxIdleTime) * time.Second)
	}
	// :memory: 数据库每个连接各自独立，固定为单连接才能共享表结构
	if driver == "sqlite" && config.DataSource() == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return Wrap(db, driver), nil
}

// Wrap 包装已打开的 *sql.DB
func Wrap(db *sql.DB, driver string) *DB {
	return &DB{executor: executor{conn: db, dialect: dialect.New(driver)}, db: db}
}

func (d *DB) Begin(ctx context.Context) (core.ITransaction, error) {
	return d.BeginTx(ctx, nil)
}

func (d *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (core.ITransaction, error) {
	tx, err := d.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{executor: executor{conn: tx, dialect: d.dialect}, db: d.db, tx: tx}, nil
}

func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }
func (d *DB) Close() error                   { return d.db.Close() }
func (d *DB) Raw() any                       { return d.db }

// SQLDB 返回底层 *sql.DB（供 goose 等需要原始连接的组件使用）
func (d *DB) SQLDB() *sql.DB { return d.db }

