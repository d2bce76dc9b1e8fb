// Package cache holds the primitives the stores build on: a TTL-bound entry
// that is only ever replaced wholesale, and a request sequencer that lets a
// store drop completions that were superseded while in flight.
package cache

import (
	"sync/atomic"
	"time"
)

// Clock returns the current time. Stores take one so staleness is testable.
type Clock func() time.Time

// Entry is a cached value with its fetch time. A non-nil value always has a
// non-zero fetch time.
type Entry[T any] struct {
	value     *T
	fetchedAt time.Time
	ttl       time.Duration
}

// NewEntry creates an empty entry with the given time-to-live.
func NewEntry[T any](ttl time.Duration) Entry[T] {
	return Entry[T]{ttl: ttl}
}

// Replace swaps in a new value. A nil value or zero time clears the entry.
func (e *Entry[T]) Replace(value *T, fetchedAt time.Time) {
	if value == nil || fetchedAt.IsZero() {
		e.Clear()
		return
	}
	e.value = value
	e.fetchedAt = fetchedAt
}

// Clear empties the entry.
func (e *Entry[T]) Clear() {
	e.value = nil
	e.fetchedAt = time.Time{}
}

func (e Entry[T]) Value() *T {
	return e.value
}

func (e Entry[T]) FetchedAt() time.Time {
	return e.fetchedAt
}

func (e Entry[T]) TTL() time.Duration {
	return e.ttl
}

func (e Entry[T]) Empty() bool {
	return e.value == nil
}

// Age is how long ago the value was fetched, zero when empty.
func (e Entry[T]) Age(now time.Time) time.Duration {
	if e.value == nil {
		return 0
	}
	return now.Sub(e.fetchedAt)
}

// IsFresh reports whether a value is held and younger than the TTL.
func (e Entry[T]) IsFresh(now time.Time) bool {
	return e.value != nil && now.Sub(e.fetchedAt) < e.ttl
}

// Sequencer issues monotonically increasing request numbers.
type Sequencer struct {
	latest atomic.Uint64
}

// Next issues a new sequence number; it becomes the latest.
func (s *Sequencer) Next() uint64 {
	return s.latest.Add(1)
}

// IsLatest reports whether seq is still the most recently issued number.
func (s *Sequencer) IsLatest(seq uint64) bool {
	return s.latest.Load() == seq
}

// Latest returns the most recently issued number, zero if none.
func (s *Sequencer) Latest() uint64 {
	return s.latest.Load()
}
