// Package topk provides a fixed-capacity container that maintains the k
// smallest (score, id) pairs seen during a similarity scan.
//
// One heap is kept per query, so memory stays O(k) no matter how many
// vectors are scanned. The hot path is Insert: once the container is full
// it compares against the current worst element and only reheapifies on an
// improvement.
package topk

import (
	"fmt"
	"sort"
)

// Pair is a scored candidate. Ordering is lexicographic on (Score, ID):
// when two candidates have equal scores the smaller id ranks first. This
// rule makes the retained set independent of insertion order, which in turn
// makes merges commutative.
type Pair struct {
	Score float32
	ID    uint64
}

// less reports whether a ranks strictly better than b.
func less(a, b Pair) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.ID < b.ID
}

// Heap holds at most k pairs. Until k pairs have been inserted it is a
// plain append buffer; at capacity it becomes a max-heap on (Score, ID)
// with the worst retained pair at the root.
type Heap struct {
	k     int
	pairs []Pair
}

// New creates an empty heap of capacity k.
func New(k int) (*Heap, error) {
	if k < 1 {
		return nil, fmt.Errorf("topk: capacity must be at least 1")
	}
	return &Heap{k: k, pairs: make([]Pair, 0, k)}, nil
}

// K returns the heap capacity.
func (h *Heap) K() int { return h.k }

// Len returns the number of pairs currently held.
func (h *Heap) Len() int { return len(h.pairs) }

// Insert offers a candidate. Amortized O(log k); no allocation once the
// backing array has reached capacity.
func (h *Heap) Insert(score float32, id uint64) {
	p := Pair{Score: score, ID: id}
	if len(h.pairs) < h.k {
		h.pairs = append(h.pairs, p)
		if len(h.pairs) == h.k {
			h.heapify()
		}
		return
	}
	if !less(p, h.pairs[0]) {
		return
	}
	h.pairs[0] = p
	h.siftDown(0)
}

// Merge inserts every pair held by other into h. Other is not modified.
func (h *Heap) Merge(other *Heap) {
	for _, p := range other.pairs {
		h.Insert(p.Score, p.ID)
	}
}

// Pairs returns the current contents in unspecified order. The slice
// aliases the heap's storage and is invalidated by further inserts.
func (h *Heap) Pairs() []Pair { return h.pairs }

// DrainSorted returns the contents in ascending (Score, ID) order and
// empties the heap.
func (h *Heap) DrainSorted() []Pair {
	out := h.pairs
	h.pairs = nil
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// heapify establishes max-heap order over the full buffer.
func (h *Heap) heapify() {
	for i := len(h.pairs)/2 - 1; i >= 0; i-- {
		h.siftDown(i)
	}
}

func (h *Heap) siftDown(i int) {
	n := len(h.pairs)
	for {
		left := 2*i + 1
		if left >= n {
			return
		}
		worst := left
		if right := left + 1; right < n && less(h.pairs[worst], h.pairs[right]) {
			worst = right
		}
		if !less(h.pairs[i], h.pairs[worst]) {
			return
		}
		h.pairs[i], h.pairs[worst] = h.pairs[worst], h.pairs[i]
		i = worst
	}
}
