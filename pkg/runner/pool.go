package runner

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"structura/pkg/script"
	"structura/pkg/vm"
)

// Job runs one scenario in one mode.
type Job struct {
	Seq      int // submission order, echoed on the result
	Scenario *script.Scenario
	Strict   bool
}

// JobResult pairs a scenario result with the worker that produced it.
type JobResult struct {
	Seq      int
	WorkerID int
	*script.Result
}

// PoolStats describes the work a pool has done so far.
type PoolStats struct {
	TotalJobs     int           // Jobs submitted
	ActiveJobs    int           // Jobs queued or running
	CompletedJobs int           // Jobs whose scenario passed
	FailedJobs    int           // Jobs whose scenario failed
	AverageTime   time.Duration // Average run time per job
	TotalTime     time.Duration // Total time spent running scenarios
	WorkerCount   int
}

// Pool runs scenario jobs on a fixed set of goroutines. Every job gets a
// fresh realm, so workers share nothing but the result channel.
type Pool struct {
	// Configuration
	numWorkers   int
	jobBuffer    int
	resultBuffer int
	engine       vm.Options
	timeout      time.Duration

	// Channels
	jobQueue   chan *Job
	resultChan chan *JobResult

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// State
	started    int32 // atomic
	stopped    int32 // atomic
	activeJobs int32 // atomic

	stats      PoolStats
	statsMutex sync.RWMutex
}

// PoolConfig sizes a pool. Zero values pick defaults.
type PoolConfig struct {
	Workers      int
	JobBuffer    int
	ResultBuffer int
	Engine       vm.Options
	Timeout      time.Duration // per job; zero means no limit
}

func NewPool(config PoolConfig) *Pool {
	numWorkers := config.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	jobBuffer := config.JobBuffer
	if jobBuffer <= 0 {
		jobBuffer = 4 * numWorkers
	}
	resultBuffer := config.ResultBuffer
	if resultBuffer <= 0 {
		resultBuffer = 4 * numWorkers
	}
	return &Pool{
		numWorkers:   numWorkers,
		jobBuffer:    jobBuffer,
		resultBuffer: resultBuffer,
		engine:       config.Engine,
		timeout:      config.Timeout,
	}
}

// Start launches the workers. They stop when ctx is cancelled or the pool
// is shut down.
func (p *Pool) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&p.started, 0, 1) {
		return fmt.Errorf("worker pool already started")
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.jobQueue = make(chan *Job, p.jobBuffer)
	p.resultChan = make(chan *JobResult, p.resultBuffer)
	p.stats = PoolStats{WorkerCount: p.numWorkers}

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	log.Debugf("worker pool started with %d workers", p.numWorkers)
	return nil
}

// Submit queues a job, blocking while the queue is full.
func (p *Pool) Submit(job *Job) error {
	if atomic.LoadInt32(&p.started) == 0 {
		return fmt.Errorf("worker pool not started")
	}
	if atomic.LoadInt32(&p.stopped) == 1 {
		return fmt.Errorf("worker pool stopped")
	}

	// Count the job before a worker can finish it.
	atomic.AddInt32(&p.activeJobs, 1)
	select {
	case p.jobQueue <- job:
		p.statsMutex.Lock()
		p.stats.TotalJobs++
		p.statsMutex.Unlock()
		return nil
	case <-p.ctx.Done():
		atomic.AddInt32(&p.activeJobs, -1)
		return p.ctx.Err()
	}
}

// Results delivers one result per submitted job, in completion order. The
// channel closes after a graceful Shutdown.
func (p *Pool) Results() <-chan *JobResult {
	return p.resultChan
}

// Shutdown stops accepting jobs and waits for queued ones to finish. If ctx
// expires first the workers are cancelled and ctx's error is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&p.stopped, 0, 1) {
		return fmt.Errorf("worker pool already stopped")
	}
	close(p.jobQueue)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		close(p.resultChan)
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}

func (p *Pool) HasActiveJobs() bool {
	return atomic.LoadInt32(&p.activeJobs) > 0
}

func (p *Pool) Stats() PoolStats {
	p.statsMutex.RLock()
	defer p.statsMutex.RUnlock()

	stats := p.stats
	stats.ActiveJobs = int(atomic.LoadInt32(&p.activeJobs))
	return stats
}

func (p *Pool) work(id int) {
	defer p.wg.Done()

	for {
		select {
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			result := p.runJob(id, job)

			p.statsMutex.Lock()
			if result.Passed {
				p.stats.CompletedJobs++
			} else {
				p.stats.FailedJobs++
			}
			p.stats.TotalTime += result.Duration
			if n := p.stats.CompletedJobs + p.stats.FailedJobs; n > 0 {
				p.stats.AverageTime = p.stats.TotalTime / time.Duration(n)
			}
			p.statsMutex.Unlock()

			atomic.AddInt32(&p.activeJobs, -1)

			select {
			case p.resultChan <- result:
			case <-p.ctx.Done():
				return
			}

		case <-p.ctx.Done():
			return
		}
	}
}

// runScenario is swapped out by tests.
var runScenario = script.Run

// runJob runs one job. A panic fails the job instead of the worker.
func (p *Pool) runJob(id int, job *Job) (jr *JobResult) {
	ctx := p.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("scenario %s panicked: %v", job.Scenario.Path, r)
			jr = &JobResult{Seq: job.Seq, WorkerID: id, Result: &script.Result{
				Name:   job.Scenario.Name,
				Path:   job.Scenario.Path,
				Strict: job.Strict,
				Err:    fmt.Errorf("scenario panicked: %v", r),
			}}
		}
	}()
	res := runScenario(ctx, job.Scenario, p.engine, job.Strict)
	return &JobResult{Seq: job.Seq, WorkerID: id, Result: res}
}
