// Package migrations 管理 revisions 表结构
//
// SQL 文件按 goose 约定编号并嵌入二进制，sqlite 与 postgres 共用同一套语句。
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"

	"revtrail/data/db/dialect"
	"revtrail/logging"
)

//go:embed sql/*.sql
var embedMigrations embed.FS

const migrationsDir = "sql"

// goose 的配置是包级全局状态，串行化所有调用
var gooseMu sync.Mutex

// gooseLogger 将 goose 输出转接到 logging.Logger
type gooseLogger struct {
	logger logging.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.logger.Info(context.Background(), strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(context.Background(), strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func prepare(driver string) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(gooseLogger{logger: logging.ComponentLogger("migrations")})

	var name string
	switch dialect.New(driver).Name() {
	case dialect.NamePostgres:
		name = "postgres"
	case dialect.NameSQLite:
		name = "sqlite3"
	default:
		return fmt.Errorf("migrations: unsupported driver %q", driver)
	}
	if err := goose.SetDialect(name); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}
	return nil
}

// Up 执行所有未应用的迁移
func Up(ctx context.Context, db *sql.DB, driver string) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := prepare(driver); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Down 回滚最近一次迁移
func Down(ctx context.Context, db *sql.DB, driver string) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := prepare(driver); err != nil {
		return err
	}
	if err := goose.DownContext(ctx, db, migrationsDir); err != nil {
		return fmt.Errorf("goose down: %w", err)
	}
	return nil
}

// Version 返回当前已应用的迁移版本
func Version(ctx context.Context, db *sql.DB, driver string) (int64, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := prepare(driver); err != nil {
		return 0, err
	}
	v, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("goose version: %w", err)
	}
	return v, nil
}
