package sql

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	core "revtrail/data/db"
	"revtrail/data/db/basic"
)

// dialectOnly 只提供方言名，用于纯构建测试
type dialectOnly struct {
	core.IDatabase
	name string
}

func (d dialectOnly) GetDialectName() string { return d.name }

func TestSelectBuild(t *testing.T) {
	t.Run("postgres引号与多列排序", func(t *testing.T) {
		s := New(dialectOnly{name: "pgx"})
		q, args := s.Select("id", "key").
			From("revisions").
			Where(`"revisionable_type" = ?`, "post").
			OrderBy("created_at", false).
			OrderBy("id", false).
			Limit(10).
			Build()

		assert.Equal(t, `SELECT "id", "key" FROM "revisions" WHERE "revisionable_type" = ? ORDER BY "created_at" ASC, "id" ASC LIMIT ?`, q)
		assert.Equal(t, []any{"post", 10}, args)
	})

	t.Run("WhereIn与聚合列", func(t *testing.T) {
		s := New(dialectOnly{name: "sqlite"})
		q, args := s.Select("COUNT(*)").From("revisions").WhereIn("id", int64(1), int64(2)).Build()
		assert.Equal(t, `SELECT COUNT(*) FROM "revisions" WHERE "id" IN (?, ?)`, q)
		assert.Equal(t, []any{int64(1), int64(2)}, args)
	})

	t.Run("空WhereIn生成恒假条件", func(t *testing.T) {
		q, _ := New(dialectOnly{name: "sqlite"}).Select().From("t").WhereIn("id").Build()
		assert.Equal(t, `SELECT * FROM "t" WHERE 1 = 0`, q)
	})

	t.Run("非法标识符panic", func(t *testing.T) {
		assert.Panics(t, func() {
			New(dialectOnly{name: "sqlite"}).Select("id; DROP TABLE x").From("t").Build()
		})
		assert.False(t, IsSafeIdentifier("1abc"))
		assert.True(t, IsSafeIdentifier("public.revisions"))
	})
}

func TestInsertBuild(t *testing.T) {
	q, args := New(dialectOnly{name: "sqlite"}).
		InsertInto("revisions").
		Columns("id", "key").
		Values(1, "title").
		Values(2, "body").
		Build()
	assert.Equal(t, `INSERT INTO "revisions" ("id", "key") VALUES (?, ?), (?, ?)`, q)
	assert.Equal(t, []any{1, "title", 2, "body"}, args)

	assert.Panics(t, func() {
		New(dialectOnly{name: "sqlite"}).InsertInto("t").Columns("a", "b").Values(1).Build()
	})
	assert.Panics(t, func() {
		New(dialectOnly{name: "sqlite"}).InsertInto("t").Columns("a; DROP TABLE t")
	})
}

func TestInsertExecChunked(t *testing.T) {
	ctx := context.Background()
	database, err := basic.New(core.DBConfig{Driver: "sqlite", Database: ":memory:"})
	require.NoError(t, err)
	defer database.Close()

	_, err = database.Exec(ctx, `CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT)`)
	require.NoError(t, err)

	builder := New(database).InsertInto("notes").Columns("id", "body")
	for i := 1; i <= 5; i++ {
		builder.Values(i, fmt.Sprintf("n%d", i))
	}
	written, err := builder.ExecChunked(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), written)

	var n int
	require.NoError(t, database.QueryRow(ctx, `SELECT COUNT(*) FROM notes`).Scan(&n))
	assert.Equal(t, 5, n)

	t.Run("后续分块失败时返回已写入行数", func(t *testing.T) {
		dup := New(database).InsertInto("notes").Columns("id", "body").
			Values(6, "new").Values(7, "new").Values(1, "dup")
		written, err := dup.ExecChunked(ctx, 2)
		assert.Error(t, err)
		assert.Equal(t, int64(2), written)
	})
}

func TestDeleteBuild(t *testing.T) {
	q, args := New(dialectOnly{name: "sqlite"}).DeleteFrom("revisions").WhereIn("id", 3, 4).Build()
	assert.Equal(t, `DELETE FROM "revisions" WHERE "id" IN (?, ?)`, q)
	assert.Equal(t, []any{3, 4}, args)

	assert.Panics(t, func() { New(dialectOnly{name: "sqlite"}).DeleteFrom("revisions").Build() })
}

func TestBuildersExecute(t *testing.T) {
	ctx := context.Background()
	database, err := basic.New(core.DBConfig{Driver: "sqlite", Database: ":memory:"})
	require.NoError(t, err)
	defer database.Close()

	_, err = database.Exec(ctx, `CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT)`)
	require.NoError(t, err)

	s := New(database)
	_, err = s.InsertInto("notes").Columns("id", "body").Values(1, "a").Values(2, "b").Values(3, "c").Exec(ctx)
	require.NoError(t, err)

	_, err = s.DeleteFrom("notes").WhereIn("id", 1, 3).Exec(ctx)
	require.NoError(t, err)

	rows, err := s.Select("id", "body").From("notes").OrderBy("id", true).Query(ctx)
	require.NoError(t, err)
	defer rows.Close()

	var bodies []string
	for rows.Next() {
		var (
			id   int
			body string
		)
		require.NoError(t, rows.Scan(&id, &body))
		bodies = append(bodies, body)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"b"}, bodies)
}
