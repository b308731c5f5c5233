package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jbweber/vlab-avamar/api/v1alpha1"
	"github.com/jbweber/vlab-avamar/internal/logging"
)

// DefaultConcurrency is the worker pool size used when none is given.
const DefaultConcurrency = 4

// Worker runs submitted tasks on a bounded pool and records their state.
type Worker struct {
	id       string
	registry *Registry
	store    ResultStore
	metrics  *Metrics
	log      *zap.SugaredLogger

	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool

	// now is replaceable in tests.
	now func() v1alpha1.Time
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithConcurrency sets how many tasks may run at once.
func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.sem = make(chan struct{}, n)
		}
	}
}

// WithMetrics records task metrics.
func WithMetrics(m *Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithLogger sets the worker's base logger.
func WithLogger(l *zap.SugaredLogger) WorkerOption {
	return func(w *Worker) {
		w.log = l
	}
}

// NewWorker returns a Worker identified by id.
func NewWorker(id string, registry *Registry, store ResultStore, opts ...WorkerOption) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		id:       id,
		registry: registry,
		store:    store,
		log:      zap.NewNop().Sugar(),
		sem:      make(chan struct{}, DefaultConcurrency),
		ctx:      ctx,
		cancel:   cancel,
		now:      v1alpha1.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ID returns the worker id embedded in its handles.
func (w *Worker) ID() string {
	return w.id
}

// Submit records req as pending, schedules it and returns its handle.
func (w *Worker) Submit(ctx context.Context, req Request) (string, error) {
	if !w.registry.Has(req.Name) {
		return "", fmt.Errorf("unknown task %s", req.Name)
	}
	// Ids are always issued here, never taken from the wire.
	req.ID = uuid.NewString()

	rec := Record{
		ID:      req.ID,
		Name:    req.Name,
		TxnID:   req.TxnID,
		Status:  StatusPending,
		Created: w.now(),
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return "", fmt.Errorf("worker %s is shutting down", w.id)
	}

	if err := w.store.Put(ctx, rec); err != nil {
		return "", fmt.Errorf("failed to record task: %w", err)
	}

	w.wg.Add(1)
	go w.execute(req, rec)

	return Handle(w.id, req.ID), nil
}

// Status returns the record behind a handle issued by this worker.
func (w *Worker) Status(ctx context.Context, handle string) (Record, error) {
	workerID, taskID, err := ParseHandle(handle)
	if err != nil {
		return Record{}, err
	}
	if workerID != w.id {
		return Record{}, fmt.Errorf("task %s belongs to worker %s, not %s", taskID, workerID, w.id)
	}
	return w.store.Get(ctx, taskID)
}

// Shutdown stops accepting work, cancels running tasks and waits for them
// to record their outcome or for ctx to end.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.cancel()
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker %s: tasks still running: %w", w.id, ctx.Err())
	}
}

func (w *Worker) execute(req Request, rec Record) {
	defer w.wg.Done()

	select {
	case w.sem <- struct{}{}:
	case <-w.ctx.Done():
		w.finish(rec, v1alpha1.Failed(fmt.Errorf("worker shut down before task started")))
		return
	}
	defer func() { <-w.sem }()

	log := w.log.With("worker", w.id)
	ctx := logging.WithLogger(w.ctx, log)

	started := w.now()
	rec.Status = StatusStarted
	rec.Started = &started
	if err := w.store.Put(ctx, rec); err != nil {
		log.Warnf("Failed to record start of task %s: %v", rec.ID, err)
	}

	if w.metrics != nil {
		w.metrics.taskStarted()
	}
	begin := time.Now()

	result := w.registry.Run(ctx, req)

	if w.metrics != nil {
		w.metrics.taskFinished(req.Name, result.Error != nil, time.Since(begin))
	}
	w.finish(rec, result)
}

func (w *Worker) finish(rec Record, result v1alpha1.TaskResult) {
	finished := w.now()
	rec.Finished = &finished
	rec.Result = &result
	rec.Status = StatusSuccess
	if result.Error != nil {
		rec.Status = StatusFailure
	}

	// Recorded even after Shutdown has cancelled w.ctx.
	if err := w.store.Put(context.Background(), rec); err != nil {
		w.log.Errorf("Failed to record outcome of task %s: %v", rec.ID, err)
	}
}
