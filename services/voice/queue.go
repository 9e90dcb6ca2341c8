package voice

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Denni-Wild/Subs-bot-sub000/models"
)

var (
	ErrQueueFull   = stderrors.New("transcription queue is full")
	ErrQueueClosed = stderrors.New("transcription queue is closed")
)

const (
	hungCheckInterval = 5 * time.Minute
	hungTimeout       = 30 * time.Minute
)

// ProcessFunc transcribes one audio file.
type ProcessFunc func(ctx context.Context, path string) (*models.VoiceTranscript, error)

// Result is delivered once per submitted job.
type Result struct {
	Transcript *models.VoiceTranscript
	Err        error
}

type job struct {
	id         string
	path       string
	ctx        context.Context
	cancelFunc context.CancelFunc
	result     chan Result
	startTime  time.Time
}

// Queue bounds the number of transcriptions running and waiting at once.
type Queue struct {
	jobs        chan *job
	activeJobs  map[string]*job
	workerCount int
	maxJobs     int
	mu          sync.Mutex
	quit        chan struct{}
	closed      bool
	wg          sync.WaitGroup
	logger      *logrus.Logger
}

func NewQueue(workerCount, maxQueueSize int) *Queue {
	if workerCount <= 0 {
		workerCount = 1
	}
	if maxQueueSize <= 0 {
		maxQueueSize = 1
	}
	return &Queue{
		jobs:        make(chan *job, maxQueueSize),
		activeJobs:  make(map[string]*job),
		workerCount: workerCount,
		maxJobs:     maxQueueSize,
		quit:        make(chan struct{}),
		logger:      logrus.StandardLogger(),
	}
}

// Start launches the workers and the hung job monitor.
func (q *Queue) Start(process ProcessFunc) {
	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)
		go q.worker(i, process)
	}
	go q.monitorHungJobs()
}

// Submit enqueues a job. The returned channel receives exactly one Result.
func (q *Queue) Submit(ctx context.Context, id, path string) (<-chan Result, error) {
	jobCtx, cancel := context.WithCancel(ctx)
	j := &job{
		id:         id,
		path:       path,
		ctx:        jobCtx,
		cancelFunc: cancel,
		result:     make(chan Result, 1),
		startTime:  time.Now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		cancel()
		return nil, ErrQueueClosed
	}
	if len(q.jobs) >= q.maxJobs {
		cancel()
		return nil, ErrQueueFull
	}

	q.activeJobs[j.id] = j
	q.jobs <- j
	return j.result, nil
}

// Cancel cancels a queued or running job.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, exists := q.activeJobs[id]
	if !exists {
		return false
	}
	j.cancelFunc()
	return true
}

// Pending returns the number of jobs waiting for a worker.
func (q *Queue) Pending() int {
	return len(q.jobs)
}

func (q *Queue) worker(id int, process ProcessFunc) {
	defer q.wg.Done()
	log := q.logger.WithField("worker_id", id)
	log.Debug("Starting voice worker")

	for {
		var j *job
		select {
		case <-q.quit:
			log.Debug("Voice worker shutting down")
			return
		case j = <-q.jobs:
		}

		logger := log.WithField("job_id", j.id)
		startTime := time.Now()

		var res Result
		if err := j.ctx.Err(); err != nil {
			res.Err = err
		} else {
			res.Transcript, res.Err = process(j.ctx, j.path)
		}
		duration := time.Since(startTime)

		if res.Err != nil {
			logger.WithError(res.Err).WithField("duration_ms", duration.Milliseconds()).Warn("Voice job failed")
		} else {
			logger.WithField("duration_ms", duration.Milliseconds()).Info("Voice job succeeded")
		}

		j.result <- res
		j.cancelFunc()

		q.mu.Lock()
		delete(q.activeJobs, j.id)
		q.mu.Unlock()
	}
}

// Close stops the workers, cancels running jobs and fails queued ones.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.quit)
	for _, j := range q.activeJobs {
		j.cancelFunc()
	}
	q.mu.Unlock()

	q.wg.Wait()

	for {
		select {
		case j := <-q.jobs:
			j.result <- Result{Err: ErrQueueClosed}
			q.mu.Lock()
			delete(q.activeJobs, j.id)
			q.mu.Unlock()
		default:
			return
		}
	}
}

func (q *Queue) monitorHungJobs() {
	ticker := time.NewTicker(hungCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.quit:
			return
		case <-ticker.C:
			q.checkHungJobs(time.Now())
		}
	}
}

// checkHungJobs logs jobs that have been active for too long. They are not
// cancelled; the Soniox wait has its own deadline.
func (q *Queue) checkHungJobs(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	hung := 0
	for id, j := range q.activeJobs {
		if now.Sub(j.startTime) > hungTimeout {
			hung++
			q.logger.WithFields(logrus.Fields{
				"job_id":   id,
				"duration": now.Sub(j.startTime).String(),
			}).Warn("Found hung voice job")
		}
	}
	return hung
}
