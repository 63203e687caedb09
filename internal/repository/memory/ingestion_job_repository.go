package memory

import (
	"context"
	"sync"
	"time"

	"docchat-be/pkg/rag/ingestion"

	"github.com/patrickmn/go-cache"
)

// IngestionJobRepository keeps job statuses in process memory. Entries
// expire after a day; the latest job per session is indexed separately.
type IngestionJobRepository struct {
	jobs      *cache.Cache
	bySession *cache.Cache

	mu        sync.Mutex
	waiters   map[string][]chan ingestion.Status
	observers []func(ingestion.Status)
}

var _ ingestion.Tracker = &IngestionJobRepository{}

func NewIngestionJobRepository() *IngestionJobRepository {
	return &IngestionJobRepository{
		jobs:      cache.New(24*time.Hour, 30*time.Minute),
		bySession: cache.New(24*time.Hour, 30*time.Minute),
		waiters:   make(map[string][]chan ingestion.Status),
	}
}

func (r *IngestionJobRepository) Save(status ingestion.Status) {
	r.jobs.Set(status.JobID, status, cache.DefaultExpiration)
	if status.SessionID != "" {
		r.bySession.Set(status.SessionID, status.JobID, cache.DefaultExpiration)
	}

	r.mu.Lock()
	observers := r.observers
	var waiters []chan ingestion.Status
	if status.State.Terminal() {
		waiters = r.waiters[status.JobID]
		delete(r.waiters, status.JobID)
	}
	r.mu.Unlock()

	for _, fn := range observers {
		fn(status)
	}

	for _, w := range waiters {
		w <- status
	}
}

// Observe registers fn to be called with every saved status. fn runs on the
// saving goroutine and must not block.
func (r *IngestionJobRepository) Observe(fn func(ingestion.Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

func (r *IngestionJobRepository) Get(jobID string) (ingestion.Status, bool) {
	if x, found := r.jobs.Get(jobID); found {
		return x.(ingestion.Status), true
	}
	return ingestion.Status{}, false
}

func (r *IngestionJobRepository) LatestForSession(sessionID string) (ingestion.Status, bool) {
	x, found := r.bySession.Get(sessionID)
	if !found {
		return ingestion.Status{}, false
	}
	return r.Get(x.(string))
}

// Wait blocks until the job reaches COMPLETE or FAILED.
func (r *IngestionJobRepository) Wait(ctx context.Context, jobID string) (ingestion.Status, error) {
	ch := make(chan ingestion.Status, 1)

	r.mu.Lock()
	// Checked under the lock so a terminal Save cannot slip in between.
	if status, ok := r.Get(jobID); ok && status.State.Terminal() {
		r.mu.Unlock()
		return status, nil
	}
	r.waiters[jobID] = append(r.waiters[jobID], ch)
	r.mu.Unlock()

	select {
	case status := <-ch:
		return status, nil
	case <-ctx.Done():
		r.removeWaiter(jobID, ch)
		return ingestion.Status{}, ctx.Err()
	}
}

func (r *IngestionJobRepository) removeWaiter(jobID string, ch chan ingestion.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.waiters[jobID]
	for i, w := range list {
		if w == ch {
			r.waiters[jobID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(r.waiters[jobID]) == 0 {
		delete(r.waiters, jobID)
	}
}
