package chain

import "sync"

// StartWeight is one start context and its observation count.
type StartWeight struct {
	Words string `json:"words"`
	Count int    `json:"count"`
}

// StartIndex is the in-memory weighted catalog of start contexts. Iteration
// follows first-observed order so weighted picks are stable.
type StartIndex struct {
	mu     sync.RWMutex
	order  []string
	starts map[string]int
	total  int
}

func NewStartIndex() *StartIndex {
	return &StartIndex{starts: make(map[string]int)}
}

// Add increases the weight of key by n.
func (x *StartIndex) Add(key string, n int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.starts[key]; !ok {
		x.order = append(x.order, key)
	}
	x.starts[key] += n
	x.total += n
}

// Set replaces the weight of key with n.
func (x *StartIndex) Set(key string, n int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	old, ok := x.starts[key]
	if !ok {
		x.order = append(x.order, key)
	}
	x.starts[key] = n
	x.total += n - old
}

func (x *StartIndex) Count(key string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.starts[key]
}

func (x *StartIndex) Total() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.total
}

func (x *StartIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.order)
}

// Pick returns the start context owning position r of the cumulative weight
// range [1, Total()].
func (x *StartIndex) Pick(r int) (string, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	for _, key := range x.order {
		r -= x.starts[key]
		if r <= 0 {
			return key, true
		}
	}
	return "", false
}

// Weights returns a snapshot in first-observed order.
func (x *StartIndex) Weights() []StartWeight {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]StartWeight, len(x.order))
	for i, key := range x.order {
		out[i] = StartWeight{Words: key, Count: x.starts[key]}
	}
	return out
}

// Clear forgets every start context.
func (x *StartIndex) Clear() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.order = nil
	x.starts = make(map[string]int)
	x.total = 0
}
