package commandqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/sidebar/internal/observability"
	"github.com/harun/sidebar/internal/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	// ErrLaneReset is returned for tasks that were still queued when their lane was reset.
	ErrLaneReset = errors.New("lane reset")
	// ErrDuplicate is returned when a request id was already seen within the dedup window.
	ErrDuplicate = errors.New("duplicate request")
	// ErrClosed is returned for tasks enqueued on, or still queued in, a closed queue.
	ErrClosed = errors.New("command queue closed")
)

// Task is one unit of work run inside a lane.
type Task func(ctx context.Context) error

// TaskOptions provides configuration for task execution
type TaskOptions struct {
	// RequestID deduplicates redelivered work, e.g. a platform message id.
	RequestID string
}

// Options configures a CommandQueue.
type Options struct {
	// DedupTTL is how long request ids are remembered. Zero uses five minutes.
	DedupTTL time.Duration
}

// LaneStats is a point-in-time view of one lane.
type LaneStats struct {
	Queued  int
	Running int
}

type job struct {
	id         string
	task       Task
	ctx        context.Context
	generation int
	enqueuedAt time.Time
	done       chan error
}

// lane runs its jobs one at a time in arrival order. A drain goroutine exists
// only while the lane has work.
type lane struct {
	name string

	mu         sync.Mutex
	generation int
	pending    []*job
	active     *job
	draining   bool
	removed    bool
}

func (l *lane) idleLocked() bool {
	return l.active == nil && len(l.pending) == 0
}

// rejectLocked fails every pending job with err and returns how many there were.
func (l *lane) rejectLocked(err error) int {
	n := len(l.pending)
	for _, j := range l.pending {
		j.done <- err
	}
	l.pending = nil
	return n
}

// CommandQueue serializes work per lane while lanes run concurrently. The
// router uses one lane per channel so replies in a channel keep message order.
type CommandQueue struct {
	mu     sync.Mutex
	lanes  map[string]*lane
	seq    int
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	dedup  *dedupCache
}

// New creates a CommandQueue with default options.
func New() *CommandQueue {
	return NewWithOptions(Options{})
}

// NewWithOptions creates a CommandQueue.
func NewWithOptions(opts Options) *CommandQueue {
	observability.EnsureRegistered()

	ctx, cancel := context.WithCancel(context.Background())
	return &CommandQueue{
		lanes:  make(map[string]*lane),
		ctx:    ctx,
		cancel: cancel,
		dedup:  newDedupCache(opts.DedupTTL),
	}
}

// Enqueue adds task to the named lane and waits until it has run or been
// rejected. The task context carries the values of ctx and is cancelled when
// ctx is or when the queue closes.
func (cq *CommandQueue) Enqueue(ctx context.Context, laneName string, task Task, options *TaskOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := tracing.StartSpan(ctx, "sidebar.commandqueue", "commandqueue.enqueue",
		attribute.String("lane", laneName),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, log.Logger).With().Str("lane", laneName).Logger()

	var opts TaskOptions
	if options != nil {
		opts = *options
	}

	if opts.RequestID != "" && !cq.dedup.Claim(opts.RequestID) {
		logger.Debug().Str("request_id", opts.RequestID).Msg("Duplicate request dropped")
		return ErrDuplicate
	}

	cq.mu.Lock()
	if cq.closed {
		cq.mu.Unlock()
		return ErrClosed
	}
	l, ok := cq.lanes[laneName]
	if !ok {
		l = &lane{name: laneName}
		cq.lanes[laneName] = l
	}
	cq.seq++
	j := &job{
		id:         fmt.Sprintf("%s-%d", laneName, cq.seq),
		task:       task,
		ctx:        ctx,
		enqueuedAt: time.Now(),
		done:       make(chan error, 1),
	}

	l.mu.Lock()
	l.removed = false
	j.generation = l.generation
	l.pending = append(l.pending, j)
	queued := len(l.pending)
	startDrain := !l.draining
	l.draining = true
	l.mu.Unlock()

	if startDrain {
		cq.wg.Add(1)
		go cq.drain(l)
	}
	cq.mu.Unlock()

	logger.Debug().Str("task_id", j.id).Int("queued", queued).Msg("Task enqueued")
	observability.RecordQueueEnqueue(laneName, queued)

	err := <-j.done
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// drain runs the lane's jobs until it is empty.
func (cq *CommandQueue) drain(l *lane) {
	defer cq.wg.Done()

	for {
		l.mu.Lock()
		if cq.ctx.Err() != nil {
			l.rejectLocked(ErrClosed)
		}
		if len(l.pending) == 0 {
			l.draining = false
			remove := l.removed
			l.mu.Unlock()
			if remove {
				cq.forget(l)
			}
			return
		}
		j := l.pending[0]
		l.pending = l.pending[1:]
		if j.generation != l.generation {
			l.mu.Unlock()
			j.done <- ErrLaneReset
			continue
		}
		l.active = j
		l.mu.Unlock()

		err := cq.run(l.name, j)

		l.mu.Lock()
		l.active = nil
		queued := len(l.pending)
		l.mu.Unlock()

		j.done <- err
		observability.RecordQueueCompletion(l.name, time.Since(j.enqueuedAt), err == nil, queued)
	}
}

func (cq *CommandQueue) run(laneName string, j *job) error {
	ctx, span := tracing.StartSpan(j.ctx, "sidebar.commandqueue", "commandqueue.execute_task",
		attribute.String("lane", laneName),
		attribute.String("task_id", j.id),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, log.Logger).With().
		Str("lane", laneName).
		Str("task_id", j.id).
		Logger()

	// A message whose sender gave up while it waited is not worth answering.
	if err := ctx.Err(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(cq.ctx, cancel)
	defer func() {
		stop()
		cancel()
	}()

	start := time.Now()
	err := runTask(runCtx, j)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("Task failed")
		return err
	}

	logger.Debug().Dur("duration", time.Since(start)).Msg("Task completed")
	return nil
}

// runTask turns a task panic into an error so one bad message cannot stall its lane.
func runTask(ctx context.Context, j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", j.id, r)
		}
	}()
	return j.task(ctx)
}

// forget drops an idle lane that was removed.
func (cq *CommandQueue) forget(l *lane) {
	cq.mu.Lock()
	defer cq.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.removed && l.idleLocked() && !l.draining && cq.lanes[l.name] == l {
		delete(cq.lanes, l.name)
	}
}

// ResetLane rejects every queued task of a lane with ErrLaneReset. A running
// task is left to finish. It returns the number of rejected tasks.
func (cq *CommandQueue) ResetLane(laneName string) int {
	cq.mu.Lock()
	l, ok := cq.lanes[laneName]
	cq.mu.Unlock()
	if !ok {
		return 0
	}

	l.mu.Lock()
	l.generation++
	n := l.rejectLocked(ErrLaneReset)
	l.mu.Unlock()

	log.Debug().Str("lane", laneName).Int("rejected", n).Msg("Lane reset")
	observability.SetQueueSize(laneName, 0)
	return n
}

// RemoveLane resets a lane and forgets it once its running task returns.
// Per-channel lanes are removed with their channel so the lane map does not grow.
func (cq *CommandQueue) RemoveLane(laneName string) {
	cq.ResetLane(laneName)

	cq.mu.Lock()
	defer cq.mu.Unlock()

	l, ok := cq.lanes[laneName]
	if !ok {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.idleLocked() && !l.draining {
		delete(cq.lanes, laneName)
		return
	}
	l.removed = true
}

// Stats returns a snapshot of every lane.
func (cq *CommandQueue) Stats() map[string]LaneStats {
	cq.mu.Lock()
	defer cq.mu.Unlock()

	stats := make(map[string]LaneStats, len(cq.lanes))
	for name, l := range cq.lanes {
		l.mu.Lock()
		s := LaneStats{Queued: len(l.pending)}
		if l.active != nil {
			s.Running = 1
		}
		l.mu.Unlock()
		stats[name] = s
	}
	return stats
}

// Lanes returns the number of known lanes.
func (cq *CommandQueue) Lanes() int {
	cq.mu.Lock()
	defer cq.mu.Unlock()
	return len(cq.lanes)
}

// WaitForActive waits until no lane has queued or running work, or timeout
// passes. It reports whether the queue drained.
func (cq *CommandQueue) WaitForActive(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		busy := 0
		for _, s := range cq.Stats() {
			busy += s.Queued + s.Running
		}
		if busy == 0 {
			return true
		}
		if time.Now().After(deadline) {
			log.Warn().Dur("timeout", timeout).Int("busy", busy).Msg("Timeout waiting for active tasks")
			return false
		}
		<-ticker.C
	}
}

// Close rejects queued tasks with ErrClosed, cancels running ones and waits
// for them to return. Close is idempotent.
func (cq *CommandQueue) Close() error {
	cq.mu.Lock()
	if cq.closed {
		cq.mu.Unlock()
		return nil
	}
	cq.closed = true
	cq.cancel()
	for _, l := range cq.lanes {
		l.mu.Lock()
		l.rejectLocked(ErrClosed)
		l.mu.Unlock()
	}
	cq.mu.Unlock()

	cq.wg.Wait()
	return nil
}
