package syncer

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/guildops/ballast/pkg/events"
	"github.com/guildops/ballast/pkg/log"
	"github.com/guildops/ballast/pkg/metrics"
	"github.com/guildops/ballast/pkg/mirror"
	"github.com/guildops/ballast/pkg/resource"
	"github.com/guildops/ballast/pkg/store"
)

// reconnectProbe is how often the worker re-checks a down mirror
const reconnectProbe = 5 * time.Second

// Task is an immutable record of one pending mirror write
type Task struct {
	Key        resource.Key
	Snapshot   any
	EnqueuedAt time.Time
}

// Config controls the engine's pacing and retry behaviour
type Config struct {
	// MinInterval is the enforced delay between consecutive remote calls
	MinInterval time.Duration

	// MaxAttempts bounds push attempts per task before it is dropped
	MaxAttempts int

	// BaseDelay/MaxDelay parameterize exponential backoff on throttling
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// BatchThreshold is the row count above which a list resource is
	// pushed via chunked batch writes; BatchSize is the rows per chunk
	BatchThreshold int
	BatchSize      int

	// QueueLimit bounds distinct queued keys; excess drops the oldest
	QueueLimit int
}

func (c *Config) applyDefaults() {
	if c.MinInterval <= 0 {
		c.MinInterval = 1100 * time.Millisecond
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 64 * time.Second
	}
	if c.BatchThreshold <= 0 {
		c.BatchThreshold = 200
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.QueueLimit <= 0 {
		c.QueueLimit = 256
	}
}

// Engine mirrors local resource changes to the remote tabular backend.
// Saves enqueue tasks; a single background worker drains the queue,
// pacing remote calls and retrying throttled pushes with exponential
// backoff plus jitter. The mirror stays eventually consistent: a bad
// task is dropped after its retries rather than blocking the queue.
type Engine struct {
	cfg       Config
	connector mirror.Connector
	store     *store.Store
	broker    *events.Broker
	logger    zerolog.Logger

	mu      sync.Mutex
	pending map[resource.Key]*Task
	order   []resource.Key
	wake    chan struct{}

	cancel context.CancelFunc
	done   chan struct{}

	// sleep is injectable for tests
	sleep func(ctx context.Context, d time.Duration) bool
}

// New creates a sync engine and hooks it into the store's save path
func New(st *store.Store, connector mirror.Connector, broker *events.Broker, cfg Config) *Engine {
	cfg.applyDefaults()
	e := &Engine{
		cfg:       cfg,
		connector: connector,
		store:     st,
		broker:    broker,
		logger:    log.WithComponent("syncer"),
		pending:   make(map[resource.Key]*Task),
		wake:      make(chan struct{}, 1),
		sleep:     sleepCtx,
	}
	st.OnSave(e.Enqueue)
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// Enqueue schedules a mirror push for key. Pending tasks for the same key
// are coalesced into the latest snapshot; the key keeps its position in
// the queue so per-key ordering matches enqueue order.
func (e *Engine) Enqueue(key resource.Key, snapshot any) {
	e.mu.Lock()
	if task, ok := e.pending[key]; ok {
		task.Snapshot = snapshot
		e.mu.Unlock()
		return
	}
	if len(e.order) >= e.cfg.QueueLimit {
		oldest := e.order[0]
		e.order = e.order[1:]
		delete(e.pending, oldest)
		e.logger.Error().Str("resource", oldest.String()).Msg("sync queue full, dropping oldest task")
		metrics.SyncPushes.WithLabelValues("dropped").Inc()
	}
	e.pending[key] = &Task{Key: key, Snapshot: snapshot, EnqueuedAt: time.Now()}
	e.order = append(e.order, key)
	metrics.SyncQueueDepth.Set(float64(len(e.order)))
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// QueueDepth returns the number of queued tasks
func (e *Engine) QueueDepth() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.order)
}

// Start launches the background worker
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	go e.run(ctx)
}

// Stop cancels the worker and waits for it to exit. An in-flight push
// attempt runs to completion or retry exhaustion first.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	for {
		task, ok := e.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-e.wake:
				continue
			}
		}

		// With the mirror unreachable the queue backs up instead of
		// burning retries; tasks drain once connectivity returns.
		for !e.connector.IsConnected() {
			e.logger.Debug().Str("resource", task.Key.String()).Msg("mirror unreachable, holding sync queue")
			if !e.sleep(ctx, reconnectProbe) {
				e.requeue(task)
				return
			}
		}

		e.push(ctx, task)

		// Pace remote calls regardless of outcome
		if !e.sleep(ctx, e.cfg.MinInterval) {
			return
		}
	}
}

// requeue puts a task back at the head of the queue unless a newer
// snapshot of the same key has been enqueued in the meantime
func (e *Engine) requeue(task *Task) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.pending[task.Key]; ok {
		return
	}
	e.pending[task.Key] = task
	e.order = append([]resource.Key{task.Key}, e.order...)
	metrics.SyncQueueDepth.Set(float64(len(e.order)))
}

// next dequeues the head task, if any
func (e *Engine) next() (*Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.order) == 0 {
		return nil, false
	}
	key := e.order[0]
	e.order = e.order[1:]
	task := e.pending[key]
	delete(e.pending, key)
	metrics.SyncQueueDepth.Set(float64(len(e.order)))
	return task, true
}

// push attempts a task until it succeeds or exhausts its retries
func (e *Engine) push(ctx context.Context, task *Task) {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		timer := metrics.NewTimer()
		err := e.pushOnce(ctx, task)
		timer.ObserveDuration(metrics.SyncPushDuration)

		if err == nil {
			metrics.SyncPushes.WithLabelValues("ok").Inc()
			if attempt > 1 {
				e.logger.Info().Str("resource", task.Key.String()).Int("attempt", attempt).Msg("push succeeded after retry")
			} else {
				e.logger.Debug().Str("resource", task.Key.String()).Msg("pushed")
			}
			if e.broker != nil {
				e.broker.Publish(events.New(events.EventSyncPushed, task.Key, "mirror updated"))
			}
			return
		}
		lastErr = err

		// A lost connection mid-flight re-queues the task rather than
		// consuming its retries; the worker waits for the mirror to
		// come back before touching the queue again.
		if errors.Is(err, mirror.ErrDisconnected) {
			e.logger.Warn().Err(err).Str("resource", task.Key.String()).Msg("mirror connection lost, requeueing task")
			e.requeue(task)
			return
		}

		if ctx.Err() != nil {
			return
		}
		if attempt == e.cfg.MaxAttempts {
			break
		}

		metrics.SyncRetries.Inc()
		delay := e.backoff(attempt)
		e.logger.Warn().
			Err(err).
			Str("resource", task.Key.String()).
			Int("attempt", attempt).
			Int("max_attempts", e.cfg.MaxAttempts).
			Dur("backoff", delay).
			Msg("push failed, backing off")
		if !e.sleep(ctx, delay) {
			return
		}
	}

	metrics.SyncPushes.WithLabelValues("dropped").Inc()
	e.logger.Error().
		Err(lastErr).
		Str("resource", task.Key.String()).
		Int("attempts", e.cfg.MaxAttempts).
		Msg("push retries exhausted, dropping task")
	if e.broker != nil {
		e.broker.Publish(events.New(events.EventSyncDropped, task.Key, "push retries exhausted"))
	}
}

// pushOnce performs a single remote write, using chunked batch writes for
// large list snapshots when the connector supports them
func (e *Engine) pushOnce(ctx context.Context, task *Task) error {
	rows, isList := task.Snapshot.([]any)
	batcher, canBatch := e.connector.(mirror.BatchPusher)

	if isList && canBatch && len(rows) > e.cfg.BatchThreshold {
		for offset := 0; offset < len(rows); offset += e.cfg.BatchSize {
			end := offset + e.cfg.BatchSize
			if end > len(rows) {
				end = len(rows)
			}
			if err := batcher.PushBatch(ctx, task.Key, rows[offset:end], offset, len(rows)); err != nil {
				return err
			}
			if end < len(rows) && !e.sleep(ctx, e.cfg.MinInterval) {
				return ctx.Err()
			}
		}
		return nil
	}

	return e.connector.Push(ctx, task.Key, task.Snapshot)
}

// backoff computes the delay before retry n (1-based) with jitter
func (e *Engine) backoff(attempt int) time.Duration {
	delay := e.cfg.BaseDelay << (attempt - 1)
	if delay > e.cfg.MaxDelay {
		delay = e.cfg.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(time.Second)))
	return delay + jitter
}

// Bootstrap loads mirror state for resources that are locally missing.
// Remote data is merged by writing through the store (sync suppressed so
// the data is not echoed straight back), never by bypassing it. Purely
// best-effort: any failure leaves the local default in charge.
func (e *Engine) Bootstrap(ctx context.Context) {
	if !e.connector.IsConnected() {
		e.logger.Info().Msg("mirror not reachable, skipping bootstrap")
		return
	}

	for _, key := range resource.Keys() {
		if e.store.Exists(key) {
			continue
		}
		value, found, err := e.connector.Pull(ctx, key)
		if err != nil {
			if errors.Is(err, mirror.ErrDisconnected) {
				e.logger.Warn().Err(err).Msg("mirror connection lost during bootstrap")
				return
			}
			e.logger.Warn().Err(err).Str("resource", key.String()).Msg("bootstrap pull failed")
			continue
		}
		if !found {
			continue
		}
		if err := e.store.Save(key, value, store.SuppressSync()); err != nil {
			e.logger.Error().Err(err).Str("resource", key.String()).Msg("failed to merge mirror data")
			continue
		}
		e.logger.Info().Str("resource", key.String()).Msg("bootstrapped resource from mirror")

		if !e.sleep(ctx, e.cfg.MinInterval) {
			return
		}
	}
}
