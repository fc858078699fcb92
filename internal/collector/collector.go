// Package collector buffers endpoint events in navigation-scoped segments and
// serves them back by stable id or as filtered pages.
package collector

import (
	"sync"
	"time"
)

// DefaultMaxNavigations is the number of segments kept when none is configured.
const DefaultMaxNavigations = 3

// DefaultPageSize is used when a query leaves PageSize unset.
const DefaultPageSize = 20

// Typed items report the tag used by type filters.
type Typed interface {
	EventType() string
}

// Entry is one collected item. ID is assigned once and never reused.
type Entry[T Typed] struct {
	ID   int64     `json:"id"`
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Item T         `json:"item"`
}

type segment[T Typed] struct {
	url     string
	started time.Time
	entries []*Entry[T]
}

// SegmentInfo describes one retained navigation segment. Index 0 is current.
type SegmentInfo struct {
	Index   int       `json:"index"`
	URL     string    `json:"url,omitempty"`
	Started time.Time `json:"started"`
	Count   int       `json:"count"`
}

// Collector is a bounded deque of navigation segments with an id index.
type Collector[T Typed] struct {
	mu       sync.RWMutex
	max      int
	segments []*segment[T]
	byID     map[int64]*Entry[T]
	lastID   int64
	onEvict  func([]Entry[T])
	now      func() time.Time
}

// New returns a collector retaining at most maxNavigations segments.
func New[T Typed](maxNavigations int) *Collector[T] {
	if maxNavigations < 1 {
		maxNavigations = DefaultMaxNavigations
	}
	c := &Collector[T]{
		max:  maxNavigations,
		byID: make(map[int64]*Entry[T]),
		now:  time.Now,
	}
	c.segments = []*segment[T]{{started: c.now()}}
	return c
}

// OnEvict registers fn to receive entries dropped with an evicted segment.
// fn runs after the collector lock is released.
func (c *Collector[T]) OnEvict(fn func([]Entry[T])) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

// Collect appends item to the current segment and returns its id.
func (c *Collector[T]) Collect(item T) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastID++
	e := &Entry[T]{ID: c.lastID, Type: item.EventType(), Time: c.now(), Item: item}
	c.segments[0].entries = append(c.segments[0].entries, e)
	c.byID[e.ID] = e
	return e.ID
}

// SplitAfterNavigation starts a new current segment for url. Segments beyond
// the cap are evicted oldest first and their ids become unresolvable.
func (c *Collector[T]) SplitAfterNavigation(url string) {
	c.mu.Lock()
	c.segments = append([]*segment[T]{{url: url, started: c.now()}}, c.segments...)
	var evicted []Entry[T]
	for len(c.segments) > c.max {
		oldest := c.segments[len(c.segments)-1]
		c.segments = c.segments[:len(c.segments)-1]
		for _, e := range oldest.entries {
			delete(c.byID, e.ID)
			evicted = append(evicted, *e)
		}
	}
	hook := c.onEvict
	c.mu.Unlock()

	if hook != nil && len(evicted) > 0 {
		hook(evicted)
	}
}

// Get looks an id up in the retained segments.
func (c *Collector[T]) Get(id int64) (Entry[T], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byID[id]
	if !ok {
		return Entry[T]{}, false
	}
	return *e, true
}

// Update applies fn to the stored item for id and refreshes its type tag.
// It reports false when id is not retained.
func (c *Collector[T]) Update(id int64, fn func(*T)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byID[id]
	if !ok {
		return false
	}
	fn(&e.Item)
	e.Type = e.Item.EventType()
	return true
}

// Clear drops every segment and index entry. The id counter keeps counting.
func (c *Collector[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.segments = []*segment[T]{{started: c.now()}}
	c.byID = make(map[int64]*Entry[T])
}

// Len is the number of retained entries across all segments.
func (c *Collector[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// LastID is the highest id ever assigned.
func (c *Collector[T]) LastID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastID
}

// Segments describes the retained segments, current first.
func (c *Collector[T]) Segments() []SegmentInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]SegmentInfo, len(c.segments))
	for i, s := range c.segments {
		out[i] = SegmentInfo{Index: i, URL: s.url, Started: s.started, Count: len(s.entries)}
	}
	return out
}
