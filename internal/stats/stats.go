// Package stats counts the work done by one pipeline command
package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saviobatista/ytla-corr/internal/db"
)

// ErrNoDatabase is returned by Persist when no catalog is attached
var ErrNoDatabase = errors.New("database client not set")

// Persister stores a statistics row; *db.Client implements it
type Persister interface {
	StorePipelineStats(ctx context.Context, s db.PipelineStats) error
}

// Stats tracks the counters of one command invocation
type Stats struct {
	Command string

	FilesRead         uint64
	FilesMissing      uint64
	SamplesCalibrated uint64
	PatchesSolved     uint64
	PatchesSkipped    uint64

	StartTime      time.Time
	ProcessingTime time.Duration

	db Persister
	mu sync.RWMutex
}

// New creates a new Stats instance for command
func New(command string) *Stats {
	return &Stats{
		Command:   command,
		StartTime: time.Now(),
	}
}

// SetDB sets the catalog used by Persist
func (s *Stats) SetDB(p Persister) {
	s.mu.Lock()
	s.db = p
	s.mu.Unlock()
}

// AddFilesRead counts per-baseline files merged
func (s *Stats) AddFilesRead(n int) {
	atomic.AddUint64(&s.FilesRead, uint64(n))
}

// AddFilesMissing counts per-baseline files that were absent or unreadable
func (s *Stats) AddFilesMissing(n int) {
	atomic.AddUint64(&s.FilesMissing, uint64(n))
}

// AddSamplesCalibrated counts time samples divided by a passband
func (s *Stats) AddSamplesCalibrated(n int) {
	atomic.AddUint64(&s.SamplesCalibrated, uint64(n))
}

// IncrementPatchesSolved counts a solved SEFD patch
func (s *Stats) IncrementPatchesSolved() {
	atomic.AddUint64(&s.PatchesSolved, 1)
}

// IncrementPatchesSkipped counts a patch without samples
func (s *Stats) IncrementPatchesSkipped() {
	atomic.AddUint64(&s.PatchesSkipped, 1)
}

// AddProcessingTime adds to the total processing time
func (s *Stats) AddProcessingTime(d time.Duration) {
	s.mu.Lock()
	s.ProcessingTime += d
	s.mu.Unlock()
}

// Snapshot returns the current counters as a catalog row
func (s *Stats) Snapshot() db.PipelineStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return db.PipelineStats{
		Time:              s.StartTime,
		Command:           s.Command,
		FilesRead:         int64(atomic.LoadUint64(&s.FilesRead)),
		FilesMissing:      int64(atomic.LoadUint64(&s.FilesMissing)),
		SamplesCalibrated: int64(atomic.LoadUint64(&s.SamplesCalibrated)),
		PatchesSolved:     int64(atomic.LoadUint64(&s.PatchesSolved)),
		PatchesSkipped:    int64(atomic.LoadUint64(&s.PatchesSkipped)),
		ProcessingTime:    s.ProcessingTime,
	}
}

// Persist stores the current statistics in the catalog
func (s *Stats) Persist(ctx context.Context) error {
	s.mu.RLock()
	p := s.db
	s.mu.RUnlock()
	if p == nil {
		return ErrNoDatabase
	}
	if err := p.StorePipelineStats(ctx, s.Snapshot()); err != nil {
		return fmt.Errorf("failed to persist statistics: %w", err)
	}
	return nil
}

// String returns a one-line summary
func (s *Stats) String() string {
	snap := s.Snapshot()
	return fmt.Sprintf(
		"%s: files read %d, files missing %d, samples calibrated %d, patches solved %d, patches skipped %d, processing time %s",
		snap.Command,
		snap.FilesRead,
		snap.FilesMissing,
		snap.SamplesCalibrated,
		snap.PatchesSolved,
		snap.PatchesSkipped,
		snap.ProcessingTime,
	)
}
