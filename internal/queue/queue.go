// Package queue implements the per-session ordered track queue.
package queue

import (
	"errors"
	"fmt"
	"sync"

	"github.com/samcm/lavafries/internal/protocol"
)

var (
	ErrIndexOutOfRange = errors.New("queue index out of range")
	ErrInvalidRange    = errors.New("invalid queue range")
	ErrTrackNotFound   = errors.New("no track found at the given position")
	ErrMoveActiveTrack = errors.New("cannot move or replace the currently playing track")
)

// RepeatMode selects which repeat flag ToggleRepeat acts on.
type RepeatMode int

const (
	RepeatTrack RepeatMode = iota
	RepeatQueue
	RepeatDisable
)

// Options holds the initial queue flags.
type Options struct {
	RepeatTrack bool
	RepeatQueue bool
	SkipOnError bool
}

type entry struct {
	key   int
	track protocol.Track
}

// Queue is an ordered list of tracks addressed by keys that are never reused.
// The first entry is the playing or next-to-play track.
type Queue struct {
	mu          sync.RWMutex
	entries     []entry
	lastKey     int
	repeatTrack bool
	repeatQueue bool
	skipOnError bool
	playing     func() bool
}

// New creates a queue. playing reports whether the owning session is playing
// and guards MoveTrack; nil means never playing.
func New(opts Options, playing func() bool) *Queue {
	q := &Queue{
		skipOnError: opts.SkipOnError,
		playing:     playing,
	}

	switch {
	case opts.RepeatTrack:
		q.repeatTrack = true
	case opts.RepeatQueue:
		q.repeatQueue = true
	}

	return q
}

// Add appends tracks, assigning contiguous keys in input order.
func (q *Queue) Add(tracks ...protocol.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, t := range tracks {
		q.lastKey++
		q.entries = append(q.entries, entry{key: q.lastKey, track: t})
	}
}

// Remove removes and returns the track at the given position among live tracks.
func (q *Queue) Remove(pos int) (protocol.Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if pos < 0 || pos >= len(q.entries) {
		return protocol.Track{}, fmt.Errorf("%w: %d (size %d)", ErrIndexOutOfRange, pos, len(q.entries))
	}

	removed := q.entries[pos]
	q.entries = append(q.entries[:pos], q.entries[pos+1:]...)

	return removed.track, nil
}

// Shift removes and returns the first track.
func (q *Queue) Shift() (protocol.Track, bool) {
	t, err := q.Remove(0)

	return t, err == nil
}

// Wipe removes the tracks at positions [start, end) and returns them in order.
// end is clamped to the queue size.
func (q *Queue) Wipe(start, end int) ([]protocol.Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if start >= end {
		return nil, fmt.Errorf("%w: start %d must be smaller than end %d", ErrInvalidRange, start, end)
	}

	if start < 0 || start >= len(q.entries) {
		return nil, fmt.Errorf("%w: start %d outside queue of size %d", ErrInvalidRange, start, len(q.entries))
	}

	if end > len(q.entries) {
		end = len(q.entries)
	}

	removed := make([]protocol.Track, 0, end-start)
	for _, e := range q.entries[start:end] {
		removed = append(removed, e.track)
	}

	q.entries = append(q.entries[:start], q.entries[end:]...)

	return removed, nil
}

// ClearQueue removes every track except the first one.
func (q *Queue) ClearQueue() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) > 1 {
		q.entries = q.entries[:1]
	}
}

// MoveTrack moves the track at position from to position to and renumbers
// every key contiguously after the last issued key.
func (q *Queue) MoveTrack(from, to int) error {
	// Read before locking: playing takes the session lock, which may be held
	// by a caller that is waiting on this queue.
	if q.playing != nil && q.playing() && (from == 0 || to == 0) {
		return ErrMoveActiveTrack
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if from < 0 || from >= len(q.entries) {
		return fmt.Errorf("%w: %d", ErrTrackNotFound, from)
	}

	if to < 0 || to >= len(q.entries) {
		return fmt.Errorf("%w: %d (size %d)", ErrIndexOutOfRange, to, len(q.entries))
	}

	moved := q.entries[from]
	rest := append(q.entries[:from:from], q.entries[from+1:]...)

	entries := make([]entry, 0, len(q.entries))
	entries = append(entries, rest[:to]...)
	entries = append(entries, moved)
	entries = append(entries, rest[to:]...)

	for i := range entries {
		q.lastKey++
		entries[i].key = q.lastKey
	}

	q.entries = entries

	return nil
}

// First returns the first track.
func (q *Queue) First() (protocol.Track, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.entries) == 0 {
		return protocol.Track{}, false
	}

	return q.entries[0].track, true
}

// Size returns the number of tracks.
func (q *Queue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return len(q.entries)
}

// Empty reports whether the queue holds no tracks.
func (q *Queue) Empty() bool {
	return q.Size() == 0
}

// Tracks returns a copy of the tracks in order.
func (q *Queue) Tracks() []protocol.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()

	tracks := make([]protocol.Track, len(q.entries))
	for i, e := range q.entries {
		tracks[i] = e.track
	}

	return tracks
}

// Keys returns the live keys in order.
func (q *Queue) Keys() []int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	keys := make([]int, len(q.entries))
	for i, e := range q.entries {
		keys[i] = e.key
	}

	return keys
}

// Duration returns the summed length of every track in milliseconds, 0 when empty.
func (q *Queue) Duration() int64 {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var total int64
	for _, e := range q.entries {
		total += e.track.Length()
	}

	return total
}

// ToggleRepeat flips the given repeat mode and returns its new state. Enabling
// one mode disables the other; RepeatDisable clears both and returns false.
func (q *Queue) ToggleRepeat(mode RepeatMode) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch mode {
	case RepeatTrack:
		q.repeatTrack = !q.repeatTrack
		if q.repeatTrack {
			q.repeatQueue = false
		}

		return q.repeatTrack
	case RepeatQueue:
		q.repeatQueue = !q.repeatQueue
		if q.repeatQueue {
			q.repeatTrack = false
		}

		return q.repeatQueue
	default:
		q.repeatTrack = false
		q.repeatQueue = false

		return false
	}
}

// RepeatTrack reports whether the first track repeats.
func (q *Queue) RepeatTrack() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.repeatTrack
}

// RepeatQueue reports whether finished tracks are re-appended.
func (q *Queue) RepeatQueue() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.repeatQueue
}

// SkipOnError reports whether a failed or stuck track advances to the next one.
func (q *Queue) SkipOnError() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.skipOnError
}

// SetSkipOnError sets whether a failed or stuck track advances to the next one.
func (q *Queue) SetSkipOnError(skip bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.skipOnError = skip
}
