package basic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	core "revtrail/data/db"
)

func setupTestDB(t *testing.T) core.IDatabase {
	t.Helper()
	database, err := New(core.DBConfig{Driver: "sqlite", Database: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	_, err = database.Exec(context.Background(), `CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)
	return database
}

func countItems(t *testing.T, database core.IDatabase) int {
	t.Helper()
	var n int
	require.NoError(t, database.QueryRow(context.Background(), `SELECT COUNT(*) FROM items`).Scan(&n))
	return n
}

func TestDB_Basics(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)

	_, err := database.Exec(ctx, `INSERT INTO items (id, name) VALUES (?, ?)`, 1, "alpha")
	require.NoError(t, err)

	rows, err := database.Query(ctx, `SELECT id, name FROM items WHERE id = ?`, 1)
	require.NoError(t, err)
	defer rows.Close()

	cols, err := rows.Columns()
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, cols)

	require.True(t, rows.Next())
	var (
		id   int64
		name string
	)
	require.NoError(t, rows.Scan(&id, &name))
	assert.Equal(t, int64(1), id)
	assert.Equal(t, "alpha", name)
	assert.False(t, rows.Next())
	assert.NoError(t, rows.Err())

	p, ok := database.(core.IDialectNameProvider)
	require.True(t, ok)
	assert.Equal(t, "sqlite", p.GetDialectName())

	pg := Wrap(database.(*DB).SQLDB(), "pgx")
	assert.Equal(t, "postgres", pg.GetDialectName())
}

func TestRunInTx(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)

	t.Run("成功提交", func(t *testing.T) {
		err := core.RunInTx(ctx, database, func(tx core.ITransaction) error {
			_, err := tx.Exec(ctx, `INSERT INTO items (id, name) VALUES (?, ?)`, 10, "committed")
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 1, countItems(t, database))
	})

	t.Run("返回错误时回滚", func(t *testing.T) {
		boom := errors.New("boom")
		err := core.RunInTx(ctx, database, func(tx core.ITransaction) error {
			if _, err := tx.Exec(ctx, `INSERT INTO items (id, name) VALUES (?, ?)`, 11, "rolled back"); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, countItems(t, database))
	})

	t.Run("不支持嵌套事务", func(t *testing.T) {
		err := core.RunInTx(ctx, database, func(tx core.ITransaction) error {
			_, err := tx.Begin(ctx)
			return err
		})
		assert.ErrorIs(t, err, errNestedTx)
	})

	t.Run("事务内沿用连接的方言", func(t *testing.T) {
		err := core.RunInTx(ctx, database, func(tx core.ITransaction) error {
			p, ok := tx.(core.IDialectNameProvider)
			require.True(t, ok)
			assert.Equal(t, "sqlite", p.GetDialectName())

			var name string
			require.NoError(t, tx.QueryRow(ctx, `SELECT name FROM items WHERE id = ?`, 10).Scan(&name))
			assert.Equal(t, "committed", name)
			return nil
		})
		require.NoError(t, err)
	})
}

func TestDBConfig(t *testing.T) {
	assert.Equal(t, "sqlite", core.DBConfig{}.DriverName())
	assert.Equal(t, "pgx", core.DBConfig{Driver: "postgres"}.DriverName())
	assert.Equal(t, "file.db", core.DBConfig{Database: "file.db"}.DataSource())

	pg := core.DBConfig{Driver: "postgres", Host: "db", Port: 5432, Database: "audit", Username: "u", Password: "p"}
	assert.Equal(t, "postgres://u:p@db:5432/audit?sslmode=disable", pg.DataSource())
	assert.Equal(t, "custom", core.DBConfig{Driver: "pgx", DSN: "custom"}.DataSource())
}
