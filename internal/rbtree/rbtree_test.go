package rbtree

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsertGetDelete(t *testing.T) {
	tr := New()
	assert.True(t, tr.Insert("b.mp3", 1))
	assert.True(t, tr.Insert("a.mp3", 0))
	assert.True(t, tr.Insert("c.mp3", 2))
	assert.Equal(t, 3, tr.Len())

	v, ok := tr.Get("a.mp3")
	assert.True(t, ok)
	assert.Equal(t, 0, v)

	// Re-insert replaces value, does not grow the tree.
	assert.False(t, tr.Insert("a.mp3", 99))
	v, _ = tr.Get("a.mp3")
	assert.Equal(t, 99, v)
	assert.Equal(t, 3, tr.Len())

	assert.True(t, tr.Delete("b.mp3"))
	assert.False(t, tr.Has("b.mp3"))
	assert.Equal(t, 2, tr.Len())
	assert.False(t, tr.Delete("missing"))
}

func TestKeysOrdered(t *testing.T) {
	tr := New()
	names := []string{"zeta.mp3", "alpha.mp3", "mid.mp3", "beta.mp3"}
	for i, n := range names {
		tr.Insert(n, i)
	}
	want := append([]string(nil), names...)
	sort.Strings(want)
	assert.Equal(t, want, tr.Keys())
}

func TestManyInsertDeleteMaintainsInvariant(t *testing.T) {
	tr := New()
	n := 500
	for i := 0; i < n; i++ {
		key := string(rune('a' + i%26))
		tr.Insert(key+string(rune('0'+i%10)), i)
	}
	keys := tr.Keys()
	assert.True(t, sort.StringsAreSorted(keys))

	for _, k := range keys[:len(keys)/2] {
		assert.True(t, tr.Delete(k))
	}
	assert.True(t, sort.StringsAreSorted(tr.Keys()))
}
