package dialect

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	assert.Equal(t, NamePostgres, New("pgx").Name())
	assert.Equal(t, NamePostgres, New(" PostgreSQL ").Name())
	assert.Equal(t, NameSQLite, New("sqlite3").Name())
	assert.Equal(t, NameUnknown, New("oracle").Name())
	assert.Equal(t, NameUnknown, FromDatabase(nil).Name())
}

func TestRebind(t *testing.T) {
	t.Run("postgres按顺序编号", func(t *testing.T) {
		got := New("postgres").Rebind("SELECT * FROM t WHERE a = ? AND b IN (?, ?)")
		assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)", got)
	})

	t.Run("字符串字面量中的问号不替换", func(t *testing.T) {
		got := New("pgx").Rebind("SELECT * FROM t WHERE note = 'what?' AND id = ?")
		assert.Equal(t, "SELECT * FROM t WHERE note = 'what?' AND id = $1", got)
	})

	t.Run("sqlite保持原样", func(t *testing.T) {
		orig := "DELETE FROM t WHERE id = ? AND name = ?"
		assert.Equal(t, orig, New("sqlite").Rebind(orig))
		assert.Equal(t, orig, New("").Rebind(orig))
	})
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"public"."revisions"`, New("postgres").QuoteIdentifier("public.revisions"))
	assert.Equal(t, `"revisions"`, New("sqlite").QuoteIdentifier("revisions"))
	assert.Equal(t, "revisions", New("").QuoteIdentifier("revisions"))
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
	assert.True(t, New("postgres").IsUniqueViolation(fmt.Errorf("insert: %w", pgErr)))
	assert.False(t, New("postgres").IsUniqueViolation(&pgconn.PgError{Code: "23503"}))

	assert.True(t, New("sqlite").IsUniqueViolation(errors.New("UNIQUE constraint failed: revisions.id")))
	assert.False(t, New("sqlite").IsUniqueViolation(errors.New("database is locked")))
	assert.False(t, New("sqlite").IsUniqueViolation(nil))
}
