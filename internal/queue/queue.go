// Package queue runs syncs for several companies back to back: items are
// taken strictly in the order they were added, one at a time, through the
// shared synchronizer.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marcus/erpsync/internal/syncer"
)

var (
	// ErrProcessing reports a mutation attempted while the worker runs.
	ErrProcessing = errors.New("queue is processing")
	// ErrEmpty reports a start with nothing queued.
	ErrEmpty = errors.New("queue is empty")
)

// Item is one queued company sync.
type Item struct {
	Company     string `json:"company"`
	SyncType    string `json:"sync_type"`
	Status      string `json:"status"` // pending, running, completed, failed, cancelled
	StartedAt   string `json:"started_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
	Rows        int64  `json:"rows_processed"`
	Error       string `json:"error,omitempty"`
}

// Snapshot is the queue's externally visible state.
type Snapshot struct {
	Processing bool   `json:"processing"`
	Items      []Item `json:"items"`
}

// Queue is a FIFO of company syncs driven by one background worker.
type Queue struct {
	sync *syncer.Synchronizer

	mu         sync.Mutex
	items      []Item
	processing bool
	cancelled  bool
}

func New(sy *syncer.Synchronizer) *Queue {
	return &Queue{sync: sy}
}

// Add appends one pending item per company. Rejected while the worker is
// running so in-flight ordering stays fixed.
func (q *Queue) Add(companies []string, syncType string) error {
	if syncType != "full" && syncType != "incremental" {
		return fmt.Errorf("unknown sync type %q", syncType)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.processing {
		return ErrProcessing
	}
	for _, c := range companies {
		q.items = append(q.items, Item{Company: c, SyncType: syncType, Status: "pending"})
	}
	return nil
}

// Clear drops all items. Rejected while processing.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.processing {
		return ErrProcessing
	}
	q.items = nil
	return nil
}

// Start launches the worker goroutine. It returns immediately; progress
// is observed through Status.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.processing {
		return ErrProcessing
	}
	pending := false
	for _, it := range q.items {
		if it.Status == "pending" {
			pending = true
			break
		}
	}
	if !pending {
		return ErrEmpty
	}
	q.processing = true
	q.cancelled = false
	go q.run(ctx)
	return nil
}

// Cancel stops the worker: the in-flight sync is asked to stop and every
// remaining pending item is marked cancelled.
func (q *Queue) Cancel() {
	q.mu.Lock()
	wasProcessing := q.processing
	q.cancelled = true
	for i := range q.items {
		if q.items[i].Status == "pending" {
			q.items[i].Status = "cancelled"
		}
	}
	q.mu.Unlock()
	if wasProcessing {
		q.sync.Cancel()
	}
}

// Status returns a copy of the queue state.
func (q *Queue) Status() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := make([]Item, len(q.items))
	copy(items, q.items)
	return Snapshot{Processing: q.processing, Items: items}
}

func (q *Queue) run(ctx context.Context) {
	defer func() {
		q.mu.Lock()
		q.processing = false
		q.mu.Unlock()
	}()

	for {
		q.mu.Lock()
		idx := -1
		for i := range q.items {
			if q.items[i].Status == "pending" {
				idx = i
				break
			}
		}
		if idx < 0 || q.cancelled {
			q.mu.Unlock()
			return
		}
		q.items[idx].Status = "running"
		q.items[idx].StartedAt = time.Now().UTC().Format(time.RFC3339)
		item := q.items[idx]
		q.mu.Unlock()

		slog.Info("queue: starting item", "company", item.Company, "type", item.SyncType)
		var res syncer.Result
		var err error
		if item.SyncType == "full" {
			res, err = q.sync.FullSync(ctx, item.Company, false)
		} else {
			res, err = q.sync.IncrementalSync(ctx, item.Company)
		}

		q.mu.Lock()
		q.items[idx].CompletedAt = time.Now().UTC().Format(time.RFC3339)
		q.items[idx].Rows = res.Rows
		switch {
		case err != nil:
			q.items[idx].Status = "failed"
			q.items[idx].Error = err.Error()
		case res.Status == "cancelled":
			q.items[idx].Status = "cancelled"
		default:
			q.items[idx].Status = "completed"
		}
		q.mu.Unlock()
	}
}
