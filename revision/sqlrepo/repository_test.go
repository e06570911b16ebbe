package sqlrepo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	core "revtrail/data/db"
	"revtrail/data/db/basic"
	"revtrail/errors"
	"revtrail/logging"
	"revtrail/revision"
	"revtrail/revision/resolve"
)

func init() {
	logging.SetLogger(logging.NewNoopLogger())
}

func setupDB(t *testing.T) core.IDatabase {
	t.Helper()
	database, err := basic.New(core.DBConfig{Driver: "sqlite", Database: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	ctx := context.Background()
	for _, stmt := range []string{
		`CREATE TABLE categories (id INTEGER PRIMARY KEY, title TEXT)`,
		`INSERT INTO categories (id, title) VALUES (7, 'Books'), (8, NULL)`,
		`CREATE TABLE accounts (uid TEXT PRIMARY KEY, email TEXT)`,
		`INSERT INTO accounts (uid, email) VALUES ('u-1', 'a@x.test')`,
	} {
		_, err := database.Exec(ctx, stmt)
		require.NoError(t, err)
	}
	return database
}

func newRepo(t *testing.T) *TableRepository {
	t.Helper()
	repo, err := NewTableRepository(setupDB(t), map[string]Model{
		"category": {Table: "categories", NameColumn: "title"},
		"account":  {Table: "accounts", IDColumn: "uid"},
		"post":     {Table: "posts", Relations: map[string]string{"category": "category", "shelf": "category"}},
	})
	require.NoError(t, err)
	return repo
}

func TestNewTableRepository_Validates(t *testing.T) {
	_, err := NewTableRepository(setupDB(t), map[string]Model{"bad": {Table: "drop table"}})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeValidation))

	repo := newRepo(t)
	assert.Equal(t, []string{"account", "category", "post"}, repo.Types())
	assert.Error(t, repo.Register("", Model{Table: "x"}))
}

func TestTableRepository_FindByID(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	t.Run("名称列", func(t *testing.T) {
		item, err := repo.FindByID(ctx, "category", "7")
		require.NoError(t, err)
		entity, ok := item.(*Entity)
		require.True(t, ok)
		assert.Equal(t, "Books", entity.IdentifiableName())
		assert.Equal(t, "Books", entity.Attributes["title"])
	})

	t.Run("名称为空时使用主键", func(t *testing.T) {
		item, err := repo.FindByID(ctx, "category", "8")
		require.NoError(t, err)
		assert.Equal(t, "8", item.(revision.IIdentifiable).IdentifiableName())
	})

	t.Run("自定义主键列", func(t *testing.T) {
		item, err := repo.FindByID(ctx, "account", "u-1")
		require.NoError(t, err)
		assert.Equal(t, "u-1", item.(*Entity).IdentifiableName())
		assert.Equal(t, "a@x.test", item.(*Entity).Attributes["email"])
	})

	t.Run("不存在", func(t *testing.T) {
		item, err := repo.FindByID(ctx, "category", "3")
		require.NoError(t, err)
		assert.Nil(t, item)
	})

	t.Run("未注册类型", func(t *testing.T) {
		_, err := repo.FindByID(ctx, "tag", "1")
		assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidInput))
	})

	t.Run("表不存在", func(t *testing.T) {
		_, err := repo.FindByID(ctx, "post", "1")
		assert.True(t, errors.IsErrorCode(err, errors.ErrCodeDatabase))
	})
}

func TestTableRepository_RelationAccessor(t *testing.T) {
	repo := newRepo(t)

	related, ok := repo.RelationAccessor("post", "category")
	assert.True(t, ok)
	assert.Equal(t, "category", related)

	_, ok = repo.RelationAccessor("post", "author")
	assert.False(t, ok)
	_, ok = repo.RelationAccessor("tag", "category")
	assert.False(t, ok)
}

func TestTableRepository_WithResolver(t *testing.T) {
	repo := newRepo(t)
	r := resolve.NewResolver(resolve.Options{Models: repo, Logger: logging.NewNoopLogger()})

	rev := &revision.Revision{
		SubjectType: "post",
		SubjectID:   "1",
		Key:         "category_id",
		OldValue:    revision.StringPtr("3"),
		NewValue:    revision.StringPtr("7"),
	}
	ctx := context.Background()
	assert.Equal(t, "unknown", r.OldValue(ctx, rev))
	assert.Equal(t, "Books", r.NewValue(ctx, rev))
	assert.Equal(t, "category", r.FieldName(rev))
}

func TestTableRepository_ExplicitRelationName(t *testing.T) {
	repo := newRepo(t)
	reg := revision.NewRegistry(revision.DefaultConfig())
	reg.MustRegister(revision.Policy{
		SubjectType: "post",
		Relations:   map[string]string{"section_ref": "shelf"},
	})
	r := resolve.NewResolver(resolve.Options{Registry: reg, Models: repo, Logger: logging.NewNoopLogger()})

	rev := &revision.Revision{
		SubjectType: "post",
		SubjectID:   "1",
		Key:         "section_ref",
		NewValue:    revision.StringPtr("7"),
	}
	assert.Equal(t, "Books", r.NewValue(context.Background(), rev))
}
