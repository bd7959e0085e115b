package queue

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcm/lavafries/internal/protocol"
)

func track(name string, length int64) protocol.Track {
	return protocol.Track{
		Encoded: "enc-" + name,
		Info:    protocol.TrackInfo{Title: name, Length: length},
	}
}

func titles(tracks []protocol.Track) []string {
	out := make([]string, len(tracks))
	for i, t := range tracks {
		out[i] = t.Info.Title
	}

	return out
}

func filled(names ...string) *Queue {
	q := New(Options{}, nil)
	for _, n := range names {
		q.Add(track(n, 1000))
	}

	return q
}

func TestAddAssignsContiguousKeys(t *testing.T) {
	q := New(Options{}, nil)
	q.Add(track("a", 1), track("b", 1), track("c", 1))

	assert.Equal(t, []int{1, 2, 3}, q.Keys())
	assert.Equal(t, []string{"a", "b", "c"}, titles(q.Tracks()))

	first, ok := q.First()
	require.True(t, ok)
	assert.Equal(t, "a", first.Info.Title)
}

func TestKeysNeverReused(t *testing.T) {
	q := New(Options{}, nil)
	rng := rand.New(rand.NewSource(42))
	seen := make(map[int]bool)
	highest := 0

	for i := 0; i < 500; i++ {
		if q.Size() > 0 && rng.Intn(3) == 0 {
			_, err := q.Remove(rng.Intn(q.Size()))
			require.NoError(t, err)
		} else {
			q.Add(track(fmt.Sprintf("t%d", i), 1))

			keys := q.Keys()
			newKey := keys[len(keys)-1]
			assert.False(t, seen[newKey], "key %d reused", newKey)
			assert.Greater(t, newKey, highest)
			seen[newKey] = true
			highest = newKey
		}

		keys := q.Keys()
		for j := 1; j < len(keys); j++ {
			require.Less(t, keys[j-1], keys[j])
		}
	}
}

func TestKeysNotReusedAfterEmptying(t *testing.T) {
	q := filled("a", "b")

	_, err := q.Remove(0)
	require.NoError(t, err)
	_, err = q.Remove(0)
	require.NoError(t, err)
	require.True(t, q.Empty())

	q.Add(track("c", 1))
	assert.Equal(t, []int{3}, q.Keys())
}

func TestRemove(t *testing.T) {
	q := filled("a", "b", "c")

	removed, err := q.Remove(1)
	require.NoError(t, err)
	assert.Equal(t, "b", removed.Info.Title)
	assert.Equal(t, []string{"a", "c"}, titles(q.Tracks()))

	_, err = q.Remove(2)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = q.Remove(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = New(Options{}, nil).Remove(0)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestWipe(t *testing.T) {
	q := filled("a", "b", "c", "d", "e")

	removed, err := q.Wipe(1, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, titles(removed))
	assert.Equal(t, []string{"a", "d", "e"}, titles(q.Tracks()))
}

func TestWipeClampsEnd(t *testing.T) {
	q := filled("a", "b", "c")

	removed, err := q.Wipe(1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, titles(removed))
	assert.Equal(t, []string{"a"}, titles(q.Tracks()))
}

func TestWipeRejectsBadRanges(t *testing.T) {
	tests := []struct {
		name       string
		start, end int
	}{
		{name: "start equals end", start: 2, end: 2},
		{name: "start after end", start: 3, end: 1},
		{name: "start past size", start: 5, end: 7},
		{name: "negative start", start: -1, end: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := filled("a", "b", "c", "d", "e")

			_, err := q.Wipe(tt.start, tt.end)
			assert.ErrorIs(t, err, ErrInvalidRange)
			assert.Equal(t, 5, q.Size())
		})
	}
}

func TestClearQueueKeepsFirst(t *testing.T) {
	q := filled("a", "b", "c")
	_, _ = q.Remove(0)

	q.ClearQueue()

	assert.Equal(t, []string{"b"}, titles(q.Tracks()))
	assert.Equal(t, []int{2}, q.Keys())

	empty := New(Options{}, nil)
	empty.ClearQueue()
	assert.True(t, empty.Empty())
}

func TestMoveTrackWhilePlaying(t *testing.T) {
	playing := true
	q := New(Options{}, func() bool { return playing })
	for _, n := range []string{"a", "b", "c", "d"} {
		q.Add(track(n, 1))
	}

	assert.ErrorIs(t, q.MoveTrack(0, 2), ErrMoveActiveTrack)
	assert.ErrorIs(t, q.MoveTrack(2, 0), ErrMoveActiveTrack)
	assert.Equal(t, []string{"a", "b", "c", "d"}, titles(q.Tracks()))

	require.NoError(t, q.MoveTrack(3, 1))
	assert.Equal(t, []string{"a", "d", "b", "c"}, titles(q.Tracks()))

	playing = false
	require.NoError(t, q.MoveTrack(0, 3))
	assert.Equal(t, []string{"d", "b", "c", "a"}, titles(q.Tracks()))
}

func TestMoveTrackPreservesOrderOfOthers(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e", "f"}

	for from := 1; from < len(names); from++ {
		for to := 1; to < len(names); to++ {
			q := New(Options{}, func() bool { return true })
			for _, n := range names {
				q.Add(track(n, 1))
			}

			require.NoError(t, q.MoveTrack(from, to))

			got := titles(q.Tracks())
			assert.Equal(t, names[from], got[to])

			var untouched, after []string
			for i, n := range names {
				if i != from {
					untouched = append(untouched, n)
				}
			}
			for i, n := range got {
				if i != to {
					after = append(after, n)
				}
			}
			assert.Equal(t, untouched, after, "from=%d to=%d", from, to)
		}
	}
}

func TestMoveTrackRenumbersKeys(t *testing.T) {
	q := filled("a", "b", "c")

	require.NoError(t, q.MoveTrack(2, 0))

	assert.Equal(t, []int{4, 5, 6}, q.Keys())
	assert.Equal(t, []string{"c", "a", "b"}, titles(q.Tracks()))
}

func TestMoveTrackErrors(t *testing.T) {
	q := filled("a", "b", "c")

	assert.ErrorIs(t, q.MoveTrack(3, 1), ErrTrackNotFound)
	assert.ErrorIs(t, q.MoveTrack(1, 3), ErrIndexOutOfRange)
}

func TestDuration(t *testing.T) {
	q := New(Options{}, nil)
	assert.Equal(t, int64(0), q.Duration())

	q.Add(track("a", 1500), track("b", 2500))
	assert.Equal(t, int64(4000), q.Duration())
}

func TestToggleRepeatIsExclusive(t *testing.T) {
	q := New(Options{}, nil)

	assert.True(t, q.ToggleRepeat(RepeatTrack))
	assert.True(t, q.RepeatTrack())
	assert.False(t, q.RepeatQueue())

	assert.True(t, q.ToggleRepeat(RepeatQueue))
	assert.True(t, q.RepeatQueue())
	assert.False(t, q.RepeatTrack())

	assert.True(t, q.ToggleRepeat(RepeatTrack))
	assert.False(t, q.RepeatQueue())

	assert.False(t, q.ToggleRepeat(RepeatTrack))
	assert.False(t, q.RepeatTrack())
	assert.False(t, q.RepeatQueue())

	q.ToggleRepeat(RepeatQueue)
	assert.False(t, q.ToggleRepeat(RepeatDisable))
	assert.False(t, q.RepeatTrack())
	assert.False(t, q.RepeatQueue())
}

func TestNewOptions(t *testing.T) {
	q := New(Options{RepeatTrack: true, RepeatQueue: true, SkipOnError: true}, nil)

	assert.True(t, q.RepeatTrack())
	assert.False(t, q.RepeatQueue())
	assert.True(t, q.SkipOnError())

	q.SetSkipOnError(false)
	assert.False(t, q.SkipOnError())
}
