package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"k8s.io/klog/v2"
)

// Job 一次排队中的研究会话
type Job struct {
	SessionID  string
	EnqueuedAt time.Time
	Timeout    time.Duration
	// SubmitRetries 协程池提交失败时的重试次数，不代表研究序列本身重试
	SubmitRetries int
}

func NewJob(sessionID string, timeout time.Duration) *Job {
	return &Job{
		SessionID:     sessionID,
		EnqueuedAt:    time.Now(),
		Timeout:       timeout,
		SubmitRetries: 3,
	}
}

// Executor 执行与放弃会话
type Executor interface {
	ExecuteSession(ctx context.Context, sessionID string) error
	// AbandonSession 排队中的会话未执行就被移除（取消或停止）
	AbandonSession(sessionID string, reason error)
}

var (
	ErrRunnerStopped = errors.New("runner is stopped")
	ErrQueueFull     = errors.New("job queue is full")
	ErrJobCanceled   = errors.New("job canceled before start")
)

// Runner 基于 ants 协程池的后台会话执行器。会话之间相互独立，可并发执行。
type Runner struct {
	jobQueue *jobQueue
	pool     *ants.Pool
	executor Executor

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	started  atomic.Bool
	loopDone chan struct{}

	activeCancellations map[string]context.CancelFunc
	cancelMutex         sync.Mutex
}

func NewRunner(maxWorkers, queueSize int, executor Executor) (*Runner, error) {
	ctx, cancel := context.WithCancel(context.Background())

	pool, err := ants.NewPool(maxWorkers,
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(queueSize),
		ants.WithExpiryDuration(5*time.Minute),
	)
	if err != nil {
		cancel()
		klog.Errorf("[Runner.New] ants pool initialization failed: %v", err)
		return nil, err
	}

	return &Runner{
		jobQueue:            newJobQueue(queueSize),
		pool:                pool,
		executor:            executor,
		ctx:                 ctx,
		cancel:              cancel,
		loopDone:            make(chan struct{}),
		activeCancellations: make(map[string]context.CancelFunc),
	}, nil
}

func (r *Runner) Start() {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	go r.dispatchLoop()
}

// Stop 停止接收新会话，取消运行中的会话并等待其退出；仍在排队的会话被放弃
func (r *Runner) Stop(timeout time.Duration) {
	r.stopOnce.Do(func() {
		klog.V(6).Infof("[Runner.Stop] stopping...")
		r.cancel()
		for _, job := range r.jobQueue.Close() {
			r.executor.AbandonSession(job.SessionID, ErrRunnerStopped)
		}
		if r.started.Load() {
			<-r.loopDone
		}

		if running := r.pool.Running(); running > 0 {
			klog.V(6).Infof("[Runner.Stop] waiting for %d running sessions (timeout: %v)", running, timeout)
		}
		if err := r.pool.ReleaseTimeout(timeout); err != nil {
			klog.Warningf("[Runner.Stop] timeout after %v: some sessions may still be running", timeout)
			return
		}
		klog.V(6).Infof("[Runner.Stop] stopped completely")
	})
}

func (r *Runner) Enqueue(job *Job) error {
	select {
	case <-r.ctx.Done():
		return ErrRunnerStopped
	default:
	}

	if err := r.jobQueue.Enqueue(job); err != nil {
		if errors.Is(err, ErrQueueFull) {
			klog.Warningf("[Runner.Enqueue] job queue full: sessionID=%s", job.SessionID)
		}
		return err
	}
	klog.V(6).Infof("[Runner.Enqueue] job enqueued: sessionID=%s", job.SessionID)
	return nil
}

// Cancel 取消排队中或运行中的会话，找不到时返回 false
func (r *Runner) Cancel(sessionID string) bool {
	if job, ok := r.jobQueue.Remove(sessionID); ok {
		klog.V(6).Infof("[Runner.Cancel] removed queued session: sessionID=%s", sessionID)
		r.executor.AbandonSession(job.SessionID, ErrJobCanceled)
		return true
	}

	r.cancelMutex.Lock()
	cancel, ok := r.activeCancellations[sessionID]
	r.cancelMutex.Unlock()
	if !ok {
		return false
	}
	klog.V(6).Infof("[Runner.Cancel] cancelling running session: sessionID=%s", sessionID)
	cancel()
	return true
}

func (r *Runner) registerCancel(sessionID string, cancel context.CancelFunc) {
	r.cancelMutex.Lock()
	defer r.cancelMutex.Unlock()
	r.activeCancellations[sessionID] = cancel
}

func (r *Runner) unregisterCancel(sessionID string) {
	r.cancelMutex.Lock()
	defer r.cancelMutex.Unlock()
	delete(r.activeCancellations, sessionID)
}

func (r *Runner) dispatchLoop() {
	defer close(r.loopDone)
	for {
		job, ok := r.jobQueue.Dequeue()
		if !ok {
			return
		}
		r.tryDispatch(job)
	}
}

// tryDispatch 提交到协程池；失败时按 SubmitRetries 重新入队，用尽后放弃
func (r *Runner) tryDispatch(job *Job) {
	// 先登记，保证出队到开始执行之间也能被取消
	ctx, cancel := r.jobContext(job)
	r.registerCancel(job.SessionID, cancel)

	err := r.pool.Submit(func() {
		r.executeJob(ctx, cancel, job)
	})
	if err == nil {
		return
	}
	r.unregisterCancel(job.SessionID)
	cancel()
	klog.Errorf("[Runner.tryDispatch] 提交会话到协程池失败: sessionID=%s, err=%v", job.SessionID, err)

	if r.ctx.Err() != nil || job.SubmitRetries <= 0 {
		klog.Warningf("[Runner.tryDispatch] 放弃会话: sessionID=%s", job.SessionID)
		r.executor.AbandonSession(job.SessionID, err)
		return
	}
	job.SubmitRetries--
	if qerr := r.jobQueue.Enqueue(job); qerr != nil {
		klog.Errorf("[Runner.tryDispatch] 会话重新入队失败: sessionID=%s, err=%v", job.SessionID, qerr)
		r.executor.AbandonSession(job.SessionID, qerr)
	}
}

func (r *Runner) jobContext(job *Job) (context.Context, context.CancelFunc) {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return context.WithTimeout(r.ctx, timeout)
}

func (r *Runner) executeJob(ctx context.Context, cancel context.CancelFunc, job *Job) {
	defer cancel()
	defer r.unregisterCancel(job.SessionID)
	defer func() {
		if rec := recover(); rec != nil {
			klog.Errorf("[Runner.executeJob] session panic recovered: sessionID=%s, err=%v", job.SessionID, rec)
		}
	}()

	start := time.Now()
	if err := r.executor.ExecuteSession(ctx, job.SessionID); err != nil {
		klog.Warningf("[Runner.executeJob] 会话执行失败: sessionID=%s, elapsed=%v, err=%v", job.SessionID, time.Since(start), err)
		return
	}
	klog.V(6).Infof("[Runner.executeJob] 会话执行完成: sessionID=%s, wait=%v, elapsed=%v",
		job.SessionID, start.Sub(job.EnqueuedAt), time.Since(start))
}

type QueueStatus struct {
	QueueLength    int `json:"queue_length"`
	ActiveWorkers  int `json:"active_workers"`
	ActiveSessions int `json:"active_sessions"`
}

func (r *Runner) GetQueueStatus() *QueueStatus {
	r.cancelMutex.Lock()
	active := len(r.activeCancellations)
	r.cancelMutex.Unlock()
	return &QueueStatus{
		QueueLength:    r.jobQueue.Len(),
		ActiveWorkers:  r.pool.Running(),
		ActiveSessions: active,
	}
}

// jobQueue 有界 FIFO，满时拒绝新任务
type jobQueue struct {
	maxSize int
	items   []*Job
	mutex   sync.Mutex
	cond    *sync.Cond
	closed  bool
}

func newJobQueue(maxSize int) *jobQueue {
	q := &jobQueue{
		maxSize: maxSize,
		items:   make([]*Job, 0, max(maxSize, 0)),
	}
	q.cond = sync.NewCond(&q.mutex)
	return q
}

func (q *jobQueue) Enqueue(job *Job) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.closed {
		return ErrRunnerStopped
	}
	if q.maxSize > 0 && len(q.items) >= q.maxSize {
		return ErrQueueFull
	}
	q.items = append(q.items, job)
	q.cond.Signal()
	return nil
}

func (q *jobQueue) Dequeue() (*Job, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed || len(q.items) == 0 {
		return nil, false
	}
	job := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return job, true
}

func (q *jobQueue) Remove(sessionID string) (*Job, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for i, job := range q.items {
		if job.SessionID == sessionID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return job, true
		}
	}
	return nil, false
}

func (q *jobQueue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.items)
}

// Close 关闭队列并返回未出队的任务
func (q *jobQueue) Close() []*Job {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.closed = true
	left := q.items
	q.items = nil
	q.cond.Broadcast()
	return left
}
