package filink

import (
	"io"
	"sync"
	"time"
)

// ProgressTracker accumulates transfer statistics for one file, safe
// for concurrent reads while the transfer is in-flight.
type ProgressTracker struct {
	mu          sync.Mutex
	filename    string
	total       int64
	transferred int64
	started     time.Time
}

// Start resets the tracker for a new file of the given total size.
func (p *ProgressTracker) Start(filename string, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filename = filename
	p.total = total
	p.transferred = 0
	p.started = time.Now()
}

// Update records that n additional bytes have been transferred.
func (p *ProgressTracker) Update(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transferred += n
}

// Complete marks the file done and returns the elapsed duration.
func (p *ProgressTracker) Complete() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Since(p.started)
}

// Stats is a snapshot of a ProgressTracker's current state.
type Stats struct {
	Filename    string
	Total       int64
	Transferred int64
	Rate        float64 // bytes/sec
}

// GetStats returns a point-in-time snapshot, including a bytes/sec
// rate computed against elapsed time since Start.
func (p *ProgressTracker) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	elapsed := time.Since(p.started).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(p.transferred) / elapsed
	}
	return Stats{
		Filename:    p.filename,
		Total:       p.total,
		Transferred: p.transferred,
		Rate:        rate,
	}
}

// withTrackedProgress returns a copy of cb whose OnProgress runs
// through tracker: the sender and receiver each report the size of
// the block just handled, and this turns that into the cumulative
// transferred count and bytes/sec rate a caller actually wants.
func withTrackedProgress(cb *Callbacks, tracker *ProgressTracker) *Callbacks {
	wrapped := *cb
	original := cb.OnProgress
	wrapped.OnProgress = func(filename string, n, total int64, rate float64) {
		tracker.Update(n)
		stats := tracker.GetStats()
		if original != nil {
			original(filename, stats.Transferred, stats.Total, stats.Rate)
		}
	}
	return &wrapped
}

// withTrackedFileStart returns a copy of cb whose OnFileCreate starts
// tracker for the incoming file before delegating, since the receiver
// never learns a file's total size up front.
func withTrackedFileStart(cb *Callbacks, tracker *ProgressTracker) *Callbacks {
	wrapped := *cb
	original := cb.OnFileCreate
	wrapped.OnFileCreate = func(logical string) (io.WriteCloser, error) {
		tracker.Start(logical, -1)
		return original(logical)
	}
	return &wrapped
}
