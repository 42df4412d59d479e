package messaging

import (
	"sync"
	"time"
)

// pendingRequest is one in-flight correlated request. done is buffered so the
// dispatcher never blocks handing over a reply.
type pendingRequest struct {
	done      chan []byte
	createdAt time.Time
}

// pendingTable tracks in-flight requests by correlation id. It is the only
// mutable shared state on the requesting side; all access goes through the
// mutex so a removal racing a late reply resolves consistently (already
// removed wins).
type pendingTable struct {
	mu       sync.Mutex
	requests map[string]*pendingRequest
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		requests: make(map[string]*pendingRequest),
	}
}

// add registers the correlation id before the request is published, so a
// reply can never arrive ahead of its pending entry.
func (t *pendingTable) add(correlationID string) *pendingRequest {
	request := &pendingRequest{
		done:      make(chan []byte, 1),
		createdAt: time.Now(),
	}

	t.mu.Lock()
	t.requests[correlationID] = request
	t.mu.Unlock()

	return request
}

func (t *pendingTable) remove(correlationID string) {
	t.mu.Lock()
	delete(t.requests, correlationID)
	t.mu.Unlock()
}

// resolve hands the reply body to the waiting caller and removes the entry.
// It reports false when no entry exists, which covers duplicate deliveries
// and replies arriving after a timeout already removed the entry.
func (t *pendingTable) resolve(correlationID string, body []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	request, ok := t.requests[correlationID]
	if !ok {
		return false
	}

	delete(t.requests, correlationID)
	request.done <- body

	return true
}

// sweep drops entries older than maxAge and returns how many were removed.
// Callers remove their own entries on timeout; the sweep is a backstop that
// bounds memory if a caller ever fails to.
func (t *pendingTable) sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	t.mu.Lock()
	defer t.mu.Unlock()

	swept := 0
	for correlationID, request := range t.requests {
		if request.createdAt.Before(cutoff) {
			delete(t.requests, correlationID)
			swept++
		}
	}

	return swept
}

func (t *pendingTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.requests)
}
