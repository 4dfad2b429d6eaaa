package signaling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLiveness reports the ids in the set as live.
type fakeLiveness map[string]bool

func (f fakeLiveness) IsLive(id string) bool { return f[id] }

// flakyLiveness reports victim live for the first n checks and gone after.
type flakyLiveness struct {
	victim string
	n      int
	calls  int
}

func (f *flakyLiveness) IsLive(id string) bool {
	if id != f.victim {
		return true
	}
	f.calls++
	return f.calls <= f.n
}

func TestRoomID(t *testing.T) {
	assert.Equal(t, "caller#partner", RoomID("caller", "partner"))
}

func TestQueue_EnqueueOrMatch(t *testing.T) {
	live := fakeLiveness{"a": true, "b": true, "c": true}

	t.Run("empty queue stores caller", func(t *testing.T) {
		q := NewQueue(live)

		res := q.EnqueueOrMatch("a")

		assert.False(t, res.Matched)
		assert.False(t, res.Duplicate)
		assert.Equal(t, []string{"a"}, q.Snapshot())
	})

	t.Run("second caller matches first", func(t *testing.T) {
		q := NewQueue(live)
		q.EnqueueOrMatch("a")

		res := q.EnqueueOrMatch("b")

		require.True(t, res.Matched)
		assert.Equal(t, "a", res.PartnerID)
		assert.Equal(t, "b#a", res.RoomID)
		assert.Zero(t, q.Len())
	})

	t.Run("three in order pairs the first two", func(t *testing.T) {
		q := NewQueue(live)

		assert.False(t, q.EnqueueOrMatch("a").Matched)
		assert.True(t, q.EnqueueOrMatch("b").Matched)
		assert.False(t, q.EnqueueOrMatch("c").Matched)

		assert.Equal(t, []string{"c"}, q.Snapshot())
	})

	t.Run("duplicate ready is a no-op", func(t *testing.T) {
		q := NewQueue(live)
		q.EnqueueOrMatch("a")

		res := q.EnqueueOrMatch("a")

		assert.True(t, res.Duplicate)
		assert.False(t, res.Matched)
		assert.Equal(t, []string{"a"}, q.Snapshot())
	})
}

func TestQueue_MostRecentFirst(t *testing.T) {
	q := NewQueue(fakeLiveness{"a": true, "b": true, "c": true})
	q.Requeue("a")
	q.Requeue("b")

	res := q.EnqueueOrMatch("c")

	require.True(t, res.Matched)
	assert.Equal(t, "b", res.PartnerID)
	assert.Equal(t, []string{"a"}, q.Snapshot())
}

func TestQueue_EvictsStaleEntries(t *testing.T) {
	live := fakeLiveness{"a": true, "b": true, "c": true}
	q := NewQueue(live)
	q.Requeue("a")
	q.Requeue("b")

	live["a"] = false
	live["b"] = false

	res := q.EnqueueOrMatch("c")

	assert.False(t, res.Matched)
	assert.Equal(t, []string{"c"}, q.Snapshot())
}

func TestQueue_PartnerVanishesBeforeConfirmation(t *testing.T) {
	// Live during eviction, gone at confirmation.
	q := NewQueue(&flakyLiveness{victim: "a", n: 1})
	q.Requeue("a")

	res := q.EnqueueOrMatch("b")

	assert.True(t, res.Race)
	assert.False(t, res.Matched)
	assert.Equal(t, []string{"b"}, q.Snapshot())
}

func TestQueue_Remove(t *testing.T) {
	q := NewQueue(fakeLiveness{"a": true, "b": true})
	q.Requeue("a")
	q.Requeue("b")

	assert.True(t, q.Remove("a"))
	assert.False(t, q.Remove("a"))
	assert.False(t, q.Contains("a"))
	assert.True(t, q.Contains("b"))
	assert.Equal(t, 1, q.Len())
}

func TestQueue_RequeueIgnoresDuplicates(t *testing.T) {
	q := NewQueue(fakeLiveness{"a": true})
	q.Requeue("a")
	q.Requeue("a")

	assert.Equal(t, []string{"a"}, q.Snapshot())
}
