package diff

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revtrail/revision"
)

type session struct{ token string }

func TestNewSnapshot_DropsObjects(t *testing.T) {
	orig := map[string]any{"name": "a", "conn": &session{}}
	upd := map[string]any{"name": "b", "conn": &session{}, "handler": func() {}}

	s := NewSnapshot(orig, upd, []string{"name", "conn", "handler"}, true)
	assert.Equal(t, []string{"conn", "handler"}, s.ExcludedKeys())
	assert.NotContains(t, s.Original, "conn")
	assert.NotContains(t, s.Updated, "handler")
	assert.Contains(t, orig, "conn", "输入的 map 不被修改")

	changes := ComputeChanges(s, revision.DefaultPolicy("x"))
	assert.Equal(t, map[string]any{"name": "b"}, changes)
}

func TestComputeChanges(t *testing.T) {
	t.Run("只修改不可追踪字段时没有变化", func(t *testing.T) {
		p := revision.Policy{Exclude: []string{"updated_at", "views"}}
		s := NewSnapshot(
			map[string]any{"title": "t", "views": 1, "updated_at": "2024-01-01"},
			map[string]any{"title": "t", "views": 2, "updated_at": "2024-01-02"},
			[]string{"views", "updated_at"}, true)
		assert.Empty(t, ComputeChanges(s, p))
		assert.NotContains(t, s.Original, "views", "不可追踪的字段从快照中移除")
	})

	t.Run("Include与Exclude同时包含时记录", func(t *testing.T) {
		p := revision.Policy{Include: []string{"title"}, Exclude: []string{"title"}}
		s := NewSnapshot(map[string]any{"title": "a"}, map[string]any{"title": "b"}, []string{"title"}, true)
		assert.Equal(t, map[string]any{"title": "b"}, ComputeChanges(s, p))
	})

	t.Run("只检查脏字段", func(t *testing.T) {
		s := NewSnapshot(map[string]any{"a": 1, "b": 1}, map[string]any{"a": 2, "b": 2}, []string{"a"}, true)
		assert.Equal(t, map[string]any{"a": 2}, ComputeChanges(s, revision.Policy{}))
	})

	t.Run("脏标记但值未变化", func(t *testing.T) {
		s := NewSnapshot(map[string]any{"n": 5}, map[string]any{"n": "5"}, []string{"n"}, true)
		assert.Empty(t, ComputeChanges(s, revision.Policy{}))
	})

	t.Run("原值缺失时记录", func(t *testing.T) {
		s := NewSnapshot(map[string]any{}, map[string]any{"n": 5}, []string{"n"}, true)
		assert.Equal(t, map[string]any{"n": 5}, ComputeChanges(s, revision.Policy{}))
	})

	t.Run("超过 2^53 的整数主键精确比较", func(t *testing.T) {
		orig := map[string]any{"owner_id": int64(1234567890123456789)}
		upd := map[string]any{"owner_id": int64(1234567890123456790)}

		dirty := DirtyKeys(orig, upd)
		assert.Equal(t, []string{"owner_id"}, dirty)

		s := NewSnapshot(orig, upd, dirty, true)
		assert.Equal(t, map[string]any{"owner_id": int64(1234567890123456790)}, ComputeChanges(s, revision.Policy{}))
	})

	t.Run("2^60 附近的主键以字符串形式存储", func(t *testing.T) {
		s := NewSnapshot(
			map[string]any{"owner_id": "1152921504606846976"},
			map[string]any{"owner_id": uint64(1152921504606846977)},
			[]string{"owner_id"}, true)
		assert.Equal(t, map[string]any{"owner_id": uint64(1152921504606846977)}, ComputeChanges(s, revision.Policy{}))

		same := NewSnapshot(
			map[string]any{"owner_id": "1152921504606846977"},
			map[string]any{"owner_id": uint64(1152921504606846977)},
			[]string{"owner_id"}, true)
		assert.Empty(t, ComputeChanges(same, revision.Policy{}))
	})

	t.Run("跳过组合值", func(t *testing.T) {
		s := NewSnapshot(
			map[string]any{"tags": []string{"a"}},
			map[string]any{"tags": []string{"a", "b"}},
			[]string{"tags"}, true)
		assert.Empty(t, ComputeChanges(s, revision.Policy{}))
	})

	t.Run("JSON键顺序不同不算变化", func(t *testing.T) {
		s := NewSnapshot(
			map[string]any{"meta": `{"a":1,"b":{"c":2,"d":3}}`, "raw": json.RawMessage(`{"x":1,"y":2}`)},
			map[string]any{"meta": `{"b":{"d":3,"c":2},"a":1}`, "raw": json.RawMessage(`{"y":2,"x":1}`)},
			[]string{"meta", "raw"}, true)
		assert.Empty(t, ComputeChanges(s, revision.Policy{}))
	})

	t.Run("新旧值都为空时不记录", func(t *testing.T) {
		s := NewSnapshot(map[string]any{"note": nil}, map[string]any{"note": ""}, []string{"note"}, true)
		assert.Empty(t, ComputeChanges(s, revision.Policy{}))
	})

	t.Run("运行时排除", func(t *testing.T) {
		s := NewSnapshot(map[string]any{"a": 1}, map[string]any{"a": 2}, []string{"a"}, true)
		s.Exclude("a")
		assert.Empty(t, ComputeChanges(s, revision.Policy{}))
	})

	t.Run("nil快照", func(t *testing.T) {
		assert.Empty(t, ComputeChanges(nil, revision.Policy{}))
	})
}

func TestChanges(t *testing.T) {
	s := NewSnapshot(
		map[string]any{"name": "James Judd", "email": "a@x"},
		map[string]any{"name": "Judd", "email": "b@x"},
		DirtyKeys(map[string]any{"name": "James Judd", "email": "a@x"}, map[string]any{"name": "Judd", "email": "b@x"}),
		true)

	changes := Changes(s, revision.Policy{})
	require.Len(t, changes, 2)
	assert.Equal(t, Change{Key: "email", OldValue: "a@x", NewValue: "b@x"}, changes[0])
	assert.Equal(t, Change{Key: "name", OldValue: "James Judd", NewValue: "Judd"}, changes[1])
}
