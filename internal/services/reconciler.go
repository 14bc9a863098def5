package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Reconciliation queue tuning
const (
	reconcileTick     = 5 * time.Second
	reconcileBaseWait = 2 * time.Second
	reconcileMaxWait  = 5 * time.Minute
	reconcileMaxTries = 8
)

// pendingIndex tracks one receipt awaiting a vector-index write
type pendingIndex struct {
	attempts int
	nextTry  time.Time
}

// Reconciler retries vector-index writes that failed after the store write
// succeeded. The queue is process-local and best effort; entries are dropped
// with a warning after reconcileMaxTries failures.
type Reconciler struct {
	mu      sync.Mutex
	pending map[int64]*pendingIndex
	retry   func(ctx context.Context, id int64) error
	logger  *logrus.Logger
	stop    chan struct{}
	done    chan struct{}
}

// NewReconciler creates a reconciler; bind the retry callback with SetRetry
// before calling Start
func NewReconciler(logger *logrus.Logger) *Reconciler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Reconciler{
		pending: make(map[int64]*pendingIndex),
		logger:  logger,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// SetRetry binds the callback invoked for each due entry. The ingest service
// provides it after construction because the two reference each other.
func (r *Reconciler) SetRetry(retry func(ctx context.Context, id int64) error) {
	r.mu.Lock()
	r.retry = retry
	r.mu.Unlock()
}

// Enqueue schedules a receipt for an index retry. Re-enqueueing an already
// pending ID resets nothing; the existing backoff keeps counting.
func (r *Reconciler) Enqueue(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pending[id]; ok {
		return
	}

	r.pending[id] = &pendingIndex{nextTry: time.Now().Add(reconcileBaseWait)}
	r.logger.WithField("receipt_id", id).Info("Receipt queued for index reconciliation")
}

// Pending returns the number of queued receipts
func (r *Reconciler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Start launches the periodic retry loop
func (r *Reconciler) Start() {
	go r.loop()
}

// Stop terminates the retry loop and waits for it to exit
func (r *Reconciler) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Reconciler) loop() {
	defer close(r.done)

	ticker := time.NewTicker(reconcileTick)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.drainDue()
		}
	}
}

// drainDue retries every entry whose backoff has elapsed
func (r *Reconciler) drainDue() {
	now := time.Now()

	r.mu.Lock()
	due := make([]int64, 0, len(r.pending))
	for id, entry := range r.pending {
		if !entry.nextTry.After(now) {
			due = append(due, id)
		}
	}
	r.mu.Unlock()

	for _, id := range due {
		r.retryOne(id)
	}
}

func (r *Reconciler) retryOne(id int64) {
	r.mu.Lock()
	retry := r.retry
	r.mu.Unlock()
	if retry == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := retry(ctx, id)

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.pending[id]
	if !ok {
		return
	}

	if err == nil {
		delete(r.pending, id)
		r.logger.WithField("receipt_id", id).Info("Receipt index reconciled")
		return
	}

	entry.attempts++
	if entry.attempts >= reconcileMaxTries {
		delete(r.pending, id)
		r.logger.WithFields(logrus.Fields{
			"receipt_id": id,
			"attempts":   entry.attempts,
			"error":      err.Error(),
		}).Warn("Receipt dropped from reconciliation queue")
		return
	}

	wait := reconcileBaseWait << uint(entry.attempts)
	if wait > reconcileMaxWait {
		wait = reconcileMaxWait
	}
	entry.nextTry = time.Now().Add(wait)

	r.logger.WithFields(logrus.Fields{
		"receipt_id": id,
		"attempts":   entry.attempts,
		"next_try":   entry.nextTry,
	}).Debug("Index reconciliation retry failed")
}
