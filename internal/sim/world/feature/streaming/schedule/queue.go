package schedule

import (
	"fmt"
	"sort"

	"voxelstream.ai/internal/sim/world/terrain/store"
)

// Tier is the scheduling class a target chunk belongs to.
type Tier uint8

const (
	TierImmediate Tier = iota
	TierIdeal
	TierMax
	TierPreload
	TierBorder
)

func (t Tier) String() string {
	switch t {
	case TierImmediate:
		return "immediate"
	case TierIdeal:
		return "ideal"
	case TierMax:
		return "max"
	case TierPreload:
		return "preload"
	case TierBorder:
		return "border"
	}
	return fmt.Sprintf("tier(%d)", uint8(t))
}

// Priority is higher-first: immediate 3, ideal 2, max 1, preload and border 0.
func (t Tier) Priority() int {
	switch t {
	case TierImmediate:
		return 3
	case TierIdeal:
		return 2
	case TierMax:
		return 1
	}
	return 0
}

type Item struct {
	Key      store.ChunkKey
	Tier     Tier
	Priority int
	// Dist is the Chebyshev distance to the observer when last planned.
	Dist int
}

func less(a, b Item) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if a.Dist != b.Dist {
		return a.Dist < b.Dist
	}
	return a.Key.Less(b.Key)
}

// Queue is the pending generation set. A key appears at most once.
type Queue struct {
	items []Item
	keys  map[store.ChunkKey]struct{}
}

func NewQueue() *Queue {
	return &Queue{keys: map[store.ChunkKey]struct{}{}}
}

// Push enqueues key. It reports false and leaves the queue unchanged when
// key is already queued.
func (q *Queue) Push(key store.ChunkKey, tier Tier, dist int) bool {
	if _, ok := q.keys[key]; ok {
		return false
	}
	q.keys[key] = struct{}{}
	q.items = append(q.items, Item{Key: key, Tier: tier, Priority: tier.Priority(), Dist: dist})
	return true
}

func (q *Queue) Contains(key store.ChunkKey) bool {
	_, ok := q.keys[key]
	return ok
}

func (q *Queue) Len() int { return len(q.items) }

// Pop re-sorts and removes the best item.
func (q *Queue) Pop() (Item, bool) {
	if len(q.items) == 0 {
		return Item{}, false
	}
	sort.Slice(q.items, func(i, j int) bool { return less(q.items[i], q.items[j]) })
	it := q.items[0]
	q.items = q.items[1:]
	delete(q.keys, it.Key)
	return it, true
}

// PopNext pops until it finds an item skip rejects, discarding the rest.
// Skipped items are the implicit cancellation of chunks that became
// resident or cached after being queued.
func (q *Queue) PopNext(skip func(store.ChunkKey) bool) (it Item, skipped int, ok bool) {
	for {
		it, ok = q.Pop()
		if !ok {
			return Item{}, skipped, false
		}
		if skip == nil || !skip(it.Key) {
			return it, skipped, true
		}
		skipped++
	}
}

func (q *Queue) Remove(key store.ChunkKey) bool {
	if _, ok := q.keys[key]; !ok {
		return false
	}
	delete(q.keys, key)
	for i := range q.items {
		if q.items[i].Key == key {
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}
	return true
}

// Update rewrites or drops every item. keep=false removes the item.
func (q *Queue) Update(fn func(Item) (Item, bool)) (dropped int) {
	out := q.items[:0]
	for _, it := range q.items {
		next, keep := fn(it)
		if !keep {
			delete(q.keys, it.Key)
			dropped++
			continue
		}
		next.Key = it.Key
		next.Priority = next.Tier.Priority()
		out = append(out, next)
	}
	q.items = out
	return dropped
}

// Items returns the queue in dequeue order without modifying it.
func (q *Queue) Items() []Item {
	out := append([]Item(nil), q.items...)
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func (q *Queue) Clear() {
	q.items = nil
	q.keys = map[store.ChunkKey]struct{}{}
}
