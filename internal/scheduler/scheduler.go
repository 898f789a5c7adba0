// Package scheduler runs the layered indexer (C8) across a batch of videos
// with performance-mode-driven concurrency (C9), mirroring the teacher's own
// worker-pool sizing (internal/workers) and per-file progress reporting.
package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"findit/internal/indexer"
	"findit/internal/logging"
	"findit/internal/mediatypes"
	"findit/internal/metrics"
	"findit/internal/storage"
	"findit/internal/workers"
)

var log = logging.For("scheduler")

// Callback receives one video's completion report as soon as it finishes,
// in arrival order across the whole pool (not necessarily submission order).
type Callback func(indexer.Result)

// Scheduler fans a batch of videos out across a worker pool sized by
// PerformanceMode, accumulating totals under a single mutex shared by every
// worker goroutine.
type Scheduler struct {
	ix   *indexer.Indexer
	mode mediatypes.PerformanceMode

	mu     sync.Mutex
	totals Totals
}

// Totals is the monotonic run-wide accumulator the Scheduler maintains
// across every completed video.
type Totals struct {
	VideosCompleted int
	VideosSkipped   int
	VideosCancelled int
	VideosFailed    int
	ClipsCreated    int
	ClipsAnalyzed   int
	ClipsEmbedded   int
}

// New builds a Scheduler bound to one indexer instance and performance mode.
func New(ix *indexer.Indexer, mode mediatypes.PerformanceMode) *Scheduler {
	return &Scheduler{ix: ix, mode: mode}
}

// Run processes every video in videos concurrently, honoring ctx
// cancellation cooperatively: in-flight videos finish their current
// transaction, and any video not yet started is reported as cancelled
// rather than failed (§4.7). onComplete, if non-nil, is invoked once per
// video as soon as it finishes.
func (s *Scheduler) Run(ctx context.Context, folderID string, videos []*storage.Video, force bool, onComplete Callback) Totals {
	concurrency := workers.ForPerformanceMode(s.mode)
	if s.mode == mediatypes.PerformanceBackground {
		// brief pre-sleep so a background-mode run yields to host load before
		// it starts competing for CPU/IO, per §4.7.
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
		}
	}

	sem := semaphore.NewWeighted(int64(concurrency))
	var wg sync.WaitGroup
	metrics.SchedulerQueueDepth.Set(float64(len(videos)))

	for _, v := range videos {
		v := v
		if ctx.Err() != nil {
			s.record(indexer.Result{VideoPath: v.FilePath, Outcome: indexer.OutcomeCancelled}, onComplete)
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			// ctx was cancelled while waiting for a worker slot.
			s.record(indexer.Result{VideoPath: v.FilePath, Outcome: indexer.OutcomeCancelled}, onComplete)
			continue
		}
		wg.Add(1)
		metrics.SchedulerActiveTasks.Inc()
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			defer metrics.SchedulerActiveTasks.Dec()

			result := s.ix.Process(ctx, folderID, v, force)
			s.record(result, onComplete)
		}()
		metrics.SchedulerQueueDepth.Dec()
	}

	wg.Wait()
	return s.Totals()
}

func (s *Scheduler) record(result indexer.Result, onComplete Callback) {
	s.mu.Lock()
	switch result.Outcome {
	case indexer.OutcomeCompleted:
		s.totals.VideosCompleted++
	case indexer.OutcomeSkipped:
		s.totals.VideosSkipped++
	case indexer.OutcomeCancelled:
		s.totals.VideosCancelled++
	case indexer.OutcomeFailed:
		s.totals.VideosFailed++
	}
	s.totals.ClipsCreated += result.ClipsCreated
	s.totals.ClipsAnalyzed += result.ClipsAnalyzed
	s.totals.ClipsEmbedded += result.ClipsEmbedded
	s.mu.Unlock()

	if result.Outcome == indexer.OutcomeFailed {
		log.Warn("index failed for %s: %v", result.VideoPath, result.Error)
	} else {
		log.Debug("index %s for %s", result.Outcome, result.VideoPath)
	}

	if onComplete != nil {
		onComplete(result)
	}
}

// Totals returns a snapshot of the accumulated run totals.
func (s *Scheduler) Totals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals
}
