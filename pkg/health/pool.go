package health

import (
	"context"
	"runtime"
	"sync"
	"time"

	"cachecluster/pkg/cachelog"
)

// ProbeTask is one unit of dispatch work: a single node's liveness check.
type ProbeTask func(ctx context.Context) error

// PoolOptions configures a ProbePool.
type PoolOptions struct {
	Workers     int
	Logger      cachelog.Logger
	QueueSize   int
	TaskTimeout time.Duration
}

// PoolMetrics tracks a ProbePool's lifetime counters.
type PoolMetrics struct {
	TasksSubmitted     int64
	TasksCompleted     int64
	TasksFailed        int64
	TasksInProgress    int64
	TotalExecutionTime time.Duration
	mu                 sync.Mutex
}

// ProbePool is a bounded goroutine pool that dispatches health probes
// fire-and-forget, collecting results through its metrics rather than a
// return channel per task.
type ProbePool struct {
	workers int
	tasks   chan ProbeTask
	logger  cachelog.Logger
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	ctx     context.Context
	running bool
	mu      sync.Mutex
	timeout time.Duration
	metrics *PoolMetrics
}

// NewProbePool creates a ProbePool with the given options.
func NewProbePool(opts PoolOptions) *ProbePool {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Logger == nil {
		opts.Logger = cachelog.NewBasicLogger(cachelog.InfoLevel)
	}
	if opts.QueueSize < 0 {
		opts.QueueSize = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ProbePool{
		workers: opts.Workers,
		tasks:   make(chan ProbeTask, opts.QueueSize),
		logger:  opts.Logger,
		ctx:     ctx,
		cancel:  cancel,
		timeout: opts.TaskTimeout,
		metrics: &PoolMetrics{},
	}
}

// Start launches the worker goroutines.
func (wp *ProbePool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.running {
		return
	}

	wp.logger.WithField("workers", wp.workers).Info("starting probe pool")

	wp.ctx, wp.cancel = context.WithCancel(context.Background())
	wp.wg.Add(wp.workers)
	for i := 0; i < wp.workers; i++ {
		go wp.worker(i)
	}
	wp.running = true
}

// Stop cancels in-flight probes and waits for every worker to exit, with
// the caller responsible for bounding the wait via its own deadline.
func (wp *ProbePool) Stop() {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if !wp.running {
		return
	}

	wp.logger.Info("stopping probe pool")
	if wp.cancel != nil {
		wp.cancel()
	}
	close(wp.tasks)
	wp.wg.Wait()
	wp.running = false
}

// Submit enqueues a probe task. If the pool is not running, the task runs
// synchronously on the calling goroutine.
func (wp *ProbePool) Submit(task ProbeTask) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if !wp.running {
		wp.logger.Warn("probe pool not running, executing synchronously")
		wp.metrics.mu.Lock()
		wp.metrics.TasksSubmitted++
		wp.metrics.TasksInProgress++
		wp.metrics.mu.Unlock()

		start := time.Now()
		err := task(context.Background())
		wp.recordCompletion(start, err)
		return err
	}

	wp.metrics.mu.Lock()
	wp.metrics.TasksSubmitted++
	wp.metrics.mu.Unlock()

	select {
	case wp.tasks <- task:
		return nil
	case <-wp.ctx.Done():
		return wp.ctx.Err()
	}
}

func (wp *ProbePool) recordCompletion(start time.Time, err error) {
	duration := time.Since(start)
	wp.metrics.mu.Lock()
	defer wp.metrics.mu.Unlock()
	wp.metrics.TasksInProgress--
	wp.metrics.TotalExecutionTime += duration
	if err != nil {
		wp.metrics.TasksFailed++
	} else {
		wp.metrics.TasksCompleted++
	}
}

func (wp *ProbePool) worker(id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.ctx.Done():
			return
		case task, ok := <-wp.tasks:
			if !ok {
				return
			}

			wp.metrics.mu.Lock()
			wp.metrics.TasksInProgress++
			wp.metrics.mu.Unlock()

			var taskCtx context.Context
			var taskCancel context.CancelFunc
			if wp.timeout > 0 {
				taskCtx, taskCancel = context.WithTimeout(wp.ctx, wp.timeout)
			} else {
				taskCtx, taskCancel = context.WithCancel(wp.ctx)
			}

			start := time.Now()
			err := task(taskCtx)
			taskCancel()

			if err != nil {
				wp.logger.WithField("workerId", id).Error("probe task failed", err)
			}
			wp.recordCompletion(start, err)
		}
	}
}

// Metrics returns a snapshot of the pool's counters.
func (wp *ProbePool) Metrics() PoolMetrics {
	wp.metrics.mu.Lock()
	defer wp.metrics.mu.Unlock()
	return PoolMetrics{
		TasksSubmitted:     wp.metrics.TasksSubmitted,
		TasksCompleted:     wp.metrics.TasksCompleted,
		TasksFailed:        wp.metrics.TasksFailed,
		TasksInProgress:    wp.metrics.TasksInProgress,
		TotalExecutionTime: wp.metrics.TotalExecutionTime,
	}
}

// IsRunning reports whether the pool is currently dispatching.
func (wp *ProbePool) IsRunning() bool {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.running
}
