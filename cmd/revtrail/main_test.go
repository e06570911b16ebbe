package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revtrail/config"
	core "revtrail/data/db"
	"revtrail/data/db/basic"
	synctransport "revtrail/messaging/transport/sync"
	"revtrail/revision"
	"revtrail/revision/capture"
	"revtrail/revision/notify"
	"revtrail/revision/store"
)

const configTemplate = `
database:
  driver: sqlite
  database: %s
log:
  level: error
policies:
  post:
    field_names:
      category_id: Category
    relations:
      category_id: topic
models:
  category:
    table: categories
    name_column: title
  post:
    table: posts
    relations:
      topic: category
`

func setup(t *testing.T) (cfgPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "revtrail.db")
	cfgPath = filepath.Join(dir, "revtrail.yaml")
	content := bytes.ReplaceAll([]byte(configTemplate), []byte("%s"), []byte(dbPath))
	require.NoError(t, os.WriteFile(cfgPath, content, 0o600))
	return cfgPath, dbPath
}

func run(t *testing.T, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = execute(args, &out, &errOut)
	return out.String(), errOut.String(), code
}

// seed 建立关联表并通过采集控制器写入一批修订
func seed(t *testing.T, dbPath string) {
	t.Helper()
	ctx := context.Background()
	database, err := basic.New(core.DBConfig{Driver: "sqlite", Database: dbPath})
	require.NoError(t, err)
	defer database.Close()

	_, err = database.Exec(ctx, `CREATE TABLE categories (id INTEGER PRIMARY KEY, title TEXT)`)
	require.NoError(t, err)
	_, err = database.Exec(ctx, `INSERT INTO categories (id, title) VALUES (7, 'Books')`)
	require.NoError(t, err)

	c, err := capture.New(capture.Options{Store: store.NewSQLStore(database)})
	require.NoError(t, err)

	rec := revision.LoadTrackedRecord("post", "7", map[string]any{"title": "Draft", "category_id": 3})
	rec.Fill(map[string]any{"title": "Final", "category_id": 7})
	ctx = revision.WithActor(ctx, revision.Actor{ID: "42", Type: "user", Name: "Alice"})
	require.NoError(t, c.Hooks("post").Save(ctx, rec, func(context.Context) error { return nil }))
}

func TestCLI_Lifecycle(t *testing.T) {
	cfgPath, dbPath := setup(t)

	out, stderr, code := run(t, "migrate", "-c", cfgPath)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "Schema version:")

	seed(t, dbPath)

	t.Run("history", func(t *testing.T) {
		out, stderr, code := run(t, "history", "post", "7", "-c", cfgPath, "-o", "json")
		require.Equal(t, 0, code, stderr)

		var views []revisionView
		require.NoError(t, json.Unmarshal([]byte(out), &views))
		require.Len(t, views, 2)

		assert.Equal(t, "category_id", views[0].Key)
		assert.Equal(t, "Category", views[0].Field)
		assert.Equal(t, "unknown", views[0].Old)
		assert.Equal(t, "Books", views[0].New)
		assert.Equal(t, "3", revision.Deref(views[0].OldValue))

		assert.Equal(t, "title", views[1].Key)
		assert.Equal(t, "Draft", views[1].Old)
		assert.Equal(t, "Final", views[1].New)
		assert.Equal(t, "Alice", views[1].Name)
		assert.Equal(t, views[0].RevisionID, views[1].RevisionID)
	})

	t.Run("history 表格", func(t *testing.T) {
		out, _, code := run(t, "history", "post", "7", "-c", cfgPath)
		require.Equal(t, 0, code)
		assert.Contains(t, out, "FIELD")
		assert.Contains(t, out, "Books")
		assert.Contains(t, out, "Alice")
	})

	t.Run("feed", func(t *testing.T) {
		out, _, code := run(t, "feed", "post", "--limit", "1", "-c", cfgPath, "-o", "json")
		require.Equal(t, 0, code)
		var views []revisionView
		require.NoError(t, json.Unmarshal([]byte(out), &views))
		assert.Len(t, views, 1)

		_, stderr, code := run(t, "feed", "post", "--order", "sideways", "-c", cfgPath)
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr, "order must be asc or desc")
	})

	t.Run("actor", func(t *testing.T) {
		out, _, code := run(t, "actor", "42", "--type", "user", "-c", cfgPath, "-o", "json")
		require.Equal(t, 0, code)
		var views []revisionView
		require.NoError(t, json.Unmarshal([]byte(out), &views))
		assert.Len(t, views, 2)
	})

	t.Run("prune", func(t *testing.T) {
		out, _, code := run(t, "prune", "post", "7", "--count", "1", "-c", cfgPath, "-o", "json")
		require.Equal(t, 0, code)
		var result map[string]int
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		assert.Equal(t, map[string]int{"deleted": 1, "remaining": 1}, result)

		_, stderr, code := run(t, "prune", "post", "7", "--count", "0", "-c", cfgPath)
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr, "--count must be positive")
	})

	t.Run("purge", func(t *testing.T) {
		out, _, code := run(t, "purge", "post", "7", "-c", cfgPath)
		require.Equal(t, 0, code)
		assert.Contains(t, out, "Deleted 1 revisions.")

		out, _, code = run(t, "history", "post", "7", "-c", cfgPath)
		require.Equal(t, 0, code)
		assert.Contains(t, out, "No revisions.")
	})
}

func TestCLI_Errors(t *testing.T) {
	cfgPath, _ := setup(t)

	_, stderr, code := run(t, "history", "post", "7", "-c", cfgPath, "-o", "xml")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unsupported output format")

	out, _, code := run(t, "history", "post", "-c", cfgPath, "-o", "json")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, `"error"`)

	_, stderr, code = run(t, "history", "post", "7", "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "read config")

	_, stderr, code = run(t, "tail", "-c", cfgPath)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "notify.driver is not configured")
}

func TestCLI_Tail(t *testing.T) {
	cfg := config.Default()
	var out bytes.Buffer
	c := &cli{out: &out, output: "json", cfg: &cfg}

	tpt := synctransport.NewSyncTransport()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.tail(ctx, tpt) }()

	require.Eventually(t, func() bool { return tpt.Stats().Running }, time.Second, 5*time.Millisecond)

	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	msg, err := notify.NewMessage([]*revision.Revision{{
		ID: 1, SubjectType: "post", SubjectID: "7", Key: "title",
		OldValue: revision.StringPtr("a"), NewValue: revision.StringPtr("b"),
		RevisionID: "batch-1", CreatedAt: at, UpdatedAt: at,
	}})
	require.NoError(t, err)
	require.NoError(t, tpt.Publish(context.Background(), msg))

	cancel()
	require.NoError(t, <-done)

	var views []revisionView
	require.NoError(t, json.Unmarshal(out.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "post:7", views[0].Subject)
	assert.Equal(t, "b", views[0].New)
	assert.Equal(t, "2024-05-01 08:00:00", views[0].CreatedAt)
}
