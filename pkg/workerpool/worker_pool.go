package workerpool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Task is a unit of work submitted to a Pool.
type Task struct {
	ID       string
	Execute  func(ctx context.Context) error
	Priority int
	Created  time.Time
}

// worker pulls tasks off its own channel and runs them until told to quit.
type worker struct {
	ID       int
	pool     *Pool
	taskChan chan Task
	quit     chan bool
	active   int64
	logger   *logrus.Logger
}

// Pool is a fixed-size pool of reusable goroutines draining a shared task queue.
type Pool struct {
	workers   []*worker
	taskQueue chan Task
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *logrus.Logger
	config    Config

	totalTasks     int64
	activeTasks    int64
	completedTasks int64
	failedTasks    int64

	isRunning bool
	mutex     sync.RWMutex
}

// Config configures a Pool.
type Config struct {
	MaxWorkers      int           `yaml:"max_workers"`
	QueueSize       int           `yaml:"queue_size"`
	WorkerTimeout   time.Duration `yaml:"worker_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	EnableMetrics   bool          `yaml:"enable_metrics"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// New creates a Pool, applying sane defaults to any zero-valued field.
func New(config Config, logger *logrus.Logger) *Pool {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = runtime.NumCPU()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = config.MaxWorkers * 10
	}
	if config.WorkerTimeout == 0 {
		config.WorkerTimeout = 30 * time.Second
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = 5 * time.Minute
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		taskQueue: make(chan Task, config.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
		config:    config,
		workers:   make([]*worker, 0, config.MaxWorkers),
	}

	for i := 0; i < config.MaxWorkers; i++ {
		pool.workers = append(pool.workers, &worker{
			ID:       i,
			pool:     pool,
			taskChan: make(chan Task, 1),
			quit:     make(chan bool),
			logger:   logger,
		})
	}

	return pool
}

// Start launches the workers, the dispatcher, and (if enabled) the metrics collector.
func (p *Pool) Start() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.isRunning {
		return nil
	}

	p.logger.WithFields(logrus.Fields{
		"max_workers": p.config.MaxWorkers,
		"queue_size":  p.config.QueueSize,
	}).Info("starting worker pool")

	for _, w := range p.workers {
		p.wg.Add(1)
		go w.run()
	}

	p.wg.Add(1)
	go p.dispatch()

	if p.config.EnableMetrics {
		p.wg.Add(1)
		go p.collectMetrics()
	}

	p.isRunning = true
	return nil
}

// Stop cancels all in-flight work and waits for workers to exit, up to ShutdownTimeout.
func (p *Pool) Stop() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.isRunning {
		return nil
	}

	p.logger.Info("stopping worker pool")
	p.cancel()

	for _, w := range p.workers {
		close(w.quit)
	}

	done := make(chan bool)
	go func() {
		p.wg.Wait()
		done <- true
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-time.After(p.config.ShutdownTimeout):
		p.logger.Warn("worker pool shutdown timed out")
	}

	p.isRunning = false
	return nil
}

// Submit enqueues a task, failing fast if the queue is full.
func (p *Pool) Submit(task Task) error {
	if !p.isRunning {
		return ErrPoolNotRunning
	}

	task.Created = time.Now()
	atomic.AddInt64(&p.totalTasks, 1)

	select {
	case p.taskQueue <- task:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	default:
		atomic.AddInt64(&p.failedTasks, 1)
		return ErrQueueFull
	}
}

// SubmitWithTimeout enqueues a task, giving up after timeout if the queue stays full.
func (p *Pool) SubmitWithTimeout(task Task, timeout time.Duration) error {
	if !p.isRunning {
		return ErrPoolNotRunning
	}

	task.Created = time.Now()
	atomic.AddInt64(&p.totalTasks, 1)

	select {
	case p.taskQueue <- task:
		return nil
	case <-time.After(timeout):
		atomic.AddInt64(&p.failedTasks, 1)
		return ErrTimeout
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Stats reports a point-in-time snapshot of the pool's activity.
func (p *Pool) Stats() Stats {
	return Stats{
		MaxWorkers:     p.config.MaxWorkers,
		ActiveWorkers:  p.activeWorkerCount(),
		QueuedTasks:    len(p.taskQueue),
		QueueSize:      p.config.QueueSize,
		TotalTasks:     atomic.LoadInt64(&p.totalTasks),
		ActiveTasks:    atomic.LoadInt64(&p.activeTasks),
		CompletedTasks: atomic.LoadInt64(&p.completedTasks),
		FailedTasks:    atomic.LoadInt64(&p.failedTasks),
		IsRunning:      p.isRunning,
	}
}

func (p *Pool) dispatch() {
	defer p.wg.Done()

	for {
		select {
		case task := <-p.taskQueue:
			p.assign(task)
		case <-p.ctx.Done():
			p.logger.Info("worker pool dispatcher stopping")
			return
		}
	}
}

// assign hands a task to the first idle worker, falling back to blocking on
// worker 0 if every worker's single-slot channel is currently full.
func (p *Pool) assign(task Task) {
	for _, w := range p.workers {
		select {
		case w.taskChan <- task:
			return
		default:
			continue
		}
	}

	select {
	case p.workers[0].taskChan <- task:
		return
	case <-p.ctx.Done():
		atomic.AddInt64(&p.failedTasks, 1)
		return
	}
}

func (p *Pool) activeWorkerCount() int {
	active := 0
	for _, w := range p.workers {
		if atomic.LoadInt64(&w.active) > 0 {
			active++
		}
	}
	return active
}

func (p *Pool) collectMetrics() {
	defer p.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s := p.Stats()
			p.logger.WithFields(logrus.Fields{
				"active_workers":  s.ActiveWorkers,
				"queued_tasks":    s.QueuedTasks,
				"total_tasks":     s.TotalTasks,
				"completed_tasks": s.CompletedTasks,
				"failed_tasks":    s.FailedTasks,
			}).Debug("worker pool metrics")
		case <-p.ctx.Done():
			return
		}
	}
}

func (w *worker) run() {
	defer w.pool.wg.Done()

	w.pool.logger.WithField("worker_id", w.ID).Debug("worker started")

	for {
		select {
		case task := <-w.taskChan:
			w.execute(task)
		case <-w.quit:
			w.pool.logger.WithField("worker_id", w.ID).Debug("worker stopping")
			return
		case <-w.pool.ctx.Done():
			return
		}
	}
}

func (w *worker) execute(task Task) {
	atomic.StoreInt64(&w.active, 1)
	atomic.AddInt64(&w.pool.activeTasks, 1)

	defer func() {
		atomic.StoreInt64(&w.active, 0)
		atomic.AddInt64(&w.pool.activeTasks, -1)
	}()

	start := time.Now()

	taskCtx, cancel := context.WithTimeout(w.pool.ctx, w.pool.config.WorkerTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	duration := time.Since(start)

	if err != nil {
		atomic.AddInt64(&w.pool.failedTasks, 1)
		w.logger.WithFields(logrus.Fields{
			"worker_id": w.ID,
			"task_id":   task.ID,
			"duration":  duration,
			"error":     err,
		}).Error("task execution failed")
	} else {
		atomic.AddInt64(&w.pool.completedTasks, 1)
		w.logger.WithFields(logrus.Fields{
			"worker_id": w.ID,
			"task_id":   task.ID,
			"duration":  duration,
		}).Debug("task completed")
	}
}

// Stats is a point-in-time snapshot of a Pool's activity.
type Stats struct {
	MaxWorkers     int   `json:"max_workers"`
	ActiveWorkers  int   `json:"active_workers"`
	QueuedTasks    int   `json:"queued_tasks"`
	QueueSize      int   `json:"queue_size"`
	TotalTasks     int64 `json:"total_tasks"`
	ActiveTasks    int64 `json:"active_tasks"`
	CompletedTasks int64 `json:"completed_tasks"`
	FailedTasks    int64 `json:"failed_tasks"`
	IsRunning      bool  `json:"is_running"`
}

var (
	ErrPoolNotRunning = fmt.Errorf("worker pool is not running")
	ErrQueueFull      = fmt.Errorf("task queue is full")
	ErrTimeout        = fmt.Errorf("task submission timeout")
)
