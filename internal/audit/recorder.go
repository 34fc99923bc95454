// Package audit appends immutable records of accepted mutations. Writes happen
// after the business transaction commits and never block or fail it.
package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"taskhub.io/internal/ids"
	"taskhub.io/internal/model"
	"taskhub.io/internal/obs"
	"taskhub.io/internal/store"
)

// Action tags.
const (
	ActionRegisterTenant   = "REGISTER_TENANT"
	ActionUpdateTenant     = "UPDATE_TENANT"
	ActionLogout           = "LOGOUT"
	ActionBootstrapAdmin   = "BOOTSTRAP_SUPER_ADMIN"
	ActionCreateUser       = "CREATE_USER"
	ActionUpdateUser       = "UPDATE_USER"
	ActionDeleteUser       = "DELETE_USER"
	ActionCreateProject    = "CREATE_PROJECT"
	ActionUpdateProject    = "UPDATE_PROJECT"
	ActionDeleteProject    = "DELETE_PROJECT"
	ActionCreateTask       = "CREATE_TASK"
	ActionUpdateTask       = "UPDATE_TASK"
	ActionUpdateTaskStatus = "UPDATE_TASK_STATUS"
	ActionDeleteTask       = "DELETE_TASK"
)

const (
	defaultBuffer  = 1024
	defaultWorkers = 1
	defaultTimeout = 5 * time.Second
)

// Recorder queues entries and writes them to a sink from background workers.
type Recorder struct {
	sink    store.AuditSink
	log     *zap.Logger
	now     func() time.Time
	timeout time.Duration
	buffer  int
	workers int

	mu     sync.RWMutex
	closed bool
	queue  chan model.AuditEntry
	wg     sync.WaitGroup
}

// Option configures a Recorder.
type Option func(*Recorder)

func WithLogger(l *zap.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.log = l
		}
	}
}

func WithBuffer(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.buffer = n
		}
	}
}

func WithWorkers(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithWriteTimeout bounds a single sink write.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithClock(fn func() time.Time) Option {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder starts the background workers. Call Close to drain them.
func NewRecorder(sink store.AuditSink, opts ...Option) *Recorder {
	r := &Recorder{
		sink:    sink,
		log:     obs.Logger(),
		now:     time.Now,
		timeout: defaultTimeout,
		buffer:  defaultBuffer,
		workers: defaultWorkers,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.queue = make(chan model.AuditEntry, r.buffer)
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.run()
	}
	return r
}

// Record enqueues an entry. ID, timestamp and source address are filled in
// when missing. It never blocks: a full queue drops the entry.
func (r *Recorder) Record(ctx context.Context, e model.AuditEntry) {
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = r.now().UTC()
	}
	if e.SourceAddr == "" {
		e.SourceAddr = SourceAddrFromContext(ctx)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop(e, "recorder closed")
		return
	}
	select {
	case r.queue <- e:
	default:
		r.drop(e, "queue full")
	}
}

func (r *Recorder) drop(e model.AuditEntry, reason string) {
	obs.AuditOutcome("dropped")
	r.log.Error("audit entry dropped",
		zap.String("reason", reason),
		zap.String("action", e.Action),
		zap.String("entity_type", e.EntityType),
		zap.String("entity_id", e.EntityID),
	)
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for e := range r.queue {
		r.write(e)
	}
}

func (r *Recorder) write(e model.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.sink.AppendAudit(ctx, e); err != nil {
		obs.AuditOutcome("failed")
		r.log.Error("audit write failed",
			zap.Error(err),
			zap.String("audit_id", e.ID),
			zap.String("tenant_id", e.TenantID),
			zap.String("actor_id", e.ActorID),
			zap.String("action", e.Action),
		)
		return
	}
	obs.AuditOutcome("written")
}

// Close stops accepting entries and waits for queued ones to be written.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("audit: drain interrupted"), ctx.Err())
	}
}
