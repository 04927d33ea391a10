package worker

import (
	"sync"

	"github.com/animus-ai/animus/pkg/provider/embeddings"
)

const (
	// DupWindowSize is how many recent outputs are remembered per user.
	DupWindowSize = 10

	// DupSimilarityThreshold marks an output as a repeat of a recent one.
	DupSimilarityThreshold = 0.88
)

// DupWindow detects near-duplicate model outputs per user. Every accepted
// output's embedding enters a sliding window; a candidate whose cosine
// similarity against any window entry reaches the threshold is rejected so
// the generation worker can retry.
//
// All vectors must be L2-normalized; similarity is then the dot product.
type DupWindow struct {
	mu      sync.Mutex
	windows map[string][][]float32
	size    int
}

// NewDupWindow creates a window set. size <= 0 means [DupWindowSize].
func NewDupWindow(size int) *DupWindow {
	if size <= 0 {
		size = DupWindowSize
	}
	return &DupWindow{
		windows: make(map[string][][]float32),
		size:    size,
	}
}

// IsDuplicate reports whether embedding repeats a recent output for userID.
func (d *DupWindow) IsDuplicate(userID string, embedding []float32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, prev := range d.windows[userID] {
		if float64(embeddings.Dot(embedding, prev)) >= DupSimilarityThreshold {
			return true
		}
	}
	return false
}

// Record adds an accepted output's embedding to the user's window, evicting
// the oldest entry beyond the size cap.
func (d *DupWindow) Record(userID string, embedding []float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	window := append(d.windows[userID], embedding)
	if len(window) > d.size {
		window = window[len(window)-d.size:]
	}
	d.windows[userID] = window
}
