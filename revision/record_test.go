package revision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackedRecord(t *testing.T) {
	rec := NewTrackedRecord("user", "1", map[string]any{"name": "James Judd"})
	assert.False(t, rec.Exists())
	assert.Empty(t, rec.OriginalAttributes())

	rec.MarkPersisted()
	assert.True(t, rec.Exists())
	assert.Empty(t, rec.DirtyKeys())

	rec.Set("name", "Judd")
	rec.Fill(map[string]any{"email": "j@x.test"})
	assert.Equal(t, []string{"email", "name"}, rec.DirtyKeys())

	attrs := rec.Attributes()
	attrs["name"] = "mutated"
	v, _ := rec.Get("name")
	assert.Equal(t, "Judd", v, "Attributes 返回副本")

	rec.DisableRevisionField("password", "token")
	assert.Equal(t, []string{"password", "token"}, rec.RevisionExcludedFields())

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rec.SoftDelete("", at)
	assert.True(t, rec.IsSoftDeleting())
	v, _ = rec.Get("deleted_at")
	assert.Equal(t, at, v)

	snap := &Snapshot{Updating: true}
	rec.SetRevisionSnapshot(snap)
	assert.Same(t, snap, rec.RevisionSnapshot())
}

func TestSnapshotExclude(t *testing.T) {
	s := &Snapshot{
		Original: map[string]any{"a": 1, "b": 2},
		Updated:  map[string]any{"a": 1, "b": 3},
	}
	s.Exclude("b")
	assert.True(t, s.IsExcluded("b"))
	assert.NotContains(t, s.Original, "b")
	assert.NotContains(t, s.Updated, "b")
	assert.Equal(t, []string{"b"}, s.ExcludedKeys())
}
