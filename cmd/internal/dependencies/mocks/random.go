package mocks

import (
	"sync"

	"basecampy/cmd/internal/dependencies/random"
)

// MockRandom is a deterministic implementation of Random for testing.
//
// Queued chunks are returned first, one per Read call. Once the queue is
// drained, reads are filled from an incrementing byte counter so that
// consecutive reads still differ.
type MockRandom struct {
	mu sync.Mutex

	// Chunks is a queue of byte slices returned by successive Read calls.
	Chunks [][]byte
	index  int

	counter byte

	// Err, when set, is returned by every Read.
	Err error
}

// Ensure MockRandom implements Random
var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a new MockRandom.
func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

// Read copies the next queued chunk into p, padding with counter bytes.
func (r *MockRandom) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return 0, r.Err
	}

	n := 0
	if r.index < len(r.Chunks) {
		n = copy(p, r.Chunks[r.index])
		r.index++
	}
	for i := n; i < len(p); i++ {
		r.counter++
		p[i] = r.counter
	}
	return len(p), nil
}

// QueueBytes adds chunks to the Read queue.
func (r *MockRandom) QueueBytes(chunks ...[]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Chunks = append(r.Chunks, chunks...)
}

// Reset clears queued chunks, the counter and any error.
func (r *MockRandom) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Chunks = nil
	r.index = 0
	r.counter = 0
	r.Err = nil
}
