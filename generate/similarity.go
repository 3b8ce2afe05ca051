package generate

import "sync"

// DefaultSimilarityWindow bounds how many similarity keys are remembered.
const DefaultSimilarityWindow = 1024

// similarityTracker remembers the fingerprint last seen for each similarity
// key, oldest keys forgotten first.
type similarityTracker struct {
	mu    sync.Mutex
	limit int
	seen  map[string]string
	order []string
}

func newSimilarityTracker(limit int) *similarityTracker {
	if limit <= 0 {
		limit = DefaultSimilarityWindow
	}
	return &similarityTracker{limit: limit, seen: make(map[string]string, limit)}
}

// observe records a request and reports whether a different request with
// the same similarity key was seen before.
func (t *similarityTracker) observe(simKey, fingerprint string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.seen[simKey]
	t.seen[simKey] = fingerprint
	if ok {
		return prev != fingerprint
	}

	t.order = append(t.order, simKey)
	if len(t.order) > t.limit {
		delete(t.seen, t.order[0])
		t.order = t.order[1:]
	}
	return false
}

func (t *similarityTracker) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}
