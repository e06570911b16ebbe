// Package db 提供修订存储所依赖的最小数据库抽象
//
// SQLStore、TableRepository 与迁移命令只依赖这里的接口，
// 具体连接由 data/db/basic 基于 database/sql 提供（sqlite 使用 modernc，postgres 使用 pgx stdlib）。
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
)

// IDatabase 通用数据库接口
type IDatabase interface {
	// 查询操作
	Query(ctx context.Context, query string, args ...any) (IRows, error)
	QueryRow(ctx context.Context, query string, args ...any) IRow

	// 执行操作
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)

	// 事务操作
	Begin(ctx context.Context) (ITransaction, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (ITransaction, error)

	// 连接管理
	Ping(ctx context.Context) error
	Close() error

	// 获取原始连接（*sql.DB 或 *sql.Tx）
	Raw() any
}

// IDialectNameProvider 可选接口：提供底层数据库方言名称
type IDialectNameProvider interface {
	GetDialectName() string
}

// ITransaction 事务接口
type ITransaction interface {
	IDatabase

	Commit() error
	Rollback() error
}

// IRows 查询结果集接口
type IRows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error

	Columns() ([]string, error)
}

// IRow 单行结果接口
type IRow interface {
	Scan(dest ...any) error
	Err() error
}

// DBConfig 数据库配置
type DBConfig struct {
	Driver   string `mapstructure:"driver" validate:"omitempty,oneof=sqlite sqlite3 postgres pgx"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	Database string `mapstructure:"database" validate:"required"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// DSN 非空时直接使用，忽略上面的分项配置
	DSN string `mapstructure:"dsn"`

	// 连接池配置
	MaxOpenConns    int `mapstructure:"max_open_conns"`
	MaxIdleConns    int `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int `mapstructure:"conn_max_lifetime"` // 秒
	ConnMaxIdleTime int `mapstructure:"conn_max_idle_time"` // 秒

	// SSLMode 仅 postgres 使用，默认 disable
	SSLMode string `mapstructure:"ssl_mode"`
}

// DriverName 返回注册到 database/sql 的驱动名
//
// postgres 统一走 pgx stdlib（驱动名 "pgx"），sqlite 走 modernc（驱动名 "sqlite"）。
func (c DBConfig) DriverName() string {
	switch strings.ToLower(c.Driver) {
	case "postgres", "postgresql", "pgx":
		return "pgx"
	case "", "sqlite", "sqlite3":
		return "sqlite"
	default:
		return c.Driver
	}
}

// DataSource 组装连接串
func (c DBConfig) DataSource() string {
	if c.DSN != "" {
		return c.DSN
	}
	if c.DriverName() != "pgx" {
		return c.Database
	}

	host := c.Host
	if host == "" {
		host = "localhost"
	}
	if c.Port > 0 {
		host = fmt.Sprintf("%s:%d", host, c.Port)
	}
	u := url.URL{Scheme: "postgres", Host: host, Path: "/" + c.Database}
	if c.Username != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.Username, c.Password)
		} else {
			u.User = url.User(c.Username)
		}
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u.RawQuery = url.Values{"sslmode": []string{sslMode}}.Encode()
	return u.String()
}

// NewDatabaseFunc 工厂方法（由具体实现提供）
type NewDatabaseFunc func(config DBConfig) (IDatabase, error)

// RunInTx 在事务中执行 fn：fn 返回错误或 panic 时回滚，否则提交
func RunInTx(ctx context.Context, database IDatabase, fn func(tx ITransaction) error) (err error) {
	tx, err := database.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
