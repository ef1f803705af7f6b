package jobs

import (
	"errors"
	"sync"

	"github.com/zxgjxc/dawn-ray-tracing/engine/core"
)

// Job is a unit of work run by a JobSystem worker. OnComplete or OnFailure
// is called with the outcome of Run, then OnCompletionCallback.
type Job struct {
	Label                string
	Run                  func() error
	OnComplete           func()
	OnFailure            func(err error)
	OnCompletionCallback func()
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan Job
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

var ErrNoWorkers = errors.New("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = errors.New("attempting to create worker pool with a negative channel size")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan Job, channelSize),
	}

	js.start()

	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				js.run(job)
			}
		}()
	}
}

func (js *JobSystem) run(job Job) {
	if err := job.Run(); err != nil {
		core.LogDebug("job %s failed: %s", job.Label, err)
		if job.OnFailure != nil {
			job.OnFailure(err)
		}
	} else if job.OnComplete != nil {
		job.OnComplete()
	}

	if job.OnCompletionCallback != nil {
		job.OnCompletionCallback()
	}
}

// Workers returns the number of goroutines draining the queue.
func (js *JobSystem) Workers() int {
	return js.numWorkers
}

/**
 * @brief Shuts the job system down. Queued jobs still run.
 */
func (js *JobSystem) Shutdown() error {
	js.closeOnce.Do(func() {
		close(js.jobQueue)
	})
	js.wg.Wait()
	return nil
}

/**
 * @brief Submits the provided job to be queued for execution. Blocks while
 * the queue is full. Must not be called after Shutdown.
 */
func (js *JobSystem) Submit(job Job) {
	js.jobQueue <- job
}

// RunAll submits every job and waits for all of them. The returned error
// joins the failures in submission order.
func (js *JobSystem) RunAll(jobs []Job) error {
	errs := make([]error, len(jobs))
	var done sync.WaitGroup
	done.Add(len(jobs))
	for i, job := range jobs {
		onFailure := job.OnFailure
		job.OnFailure = func(err error) {
			errs[i] = err
			if onFailure != nil {
				onFailure(err)
			}
		}
		onCompletion := job.OnCompletionCallback
		job.OnCompletionCallback = func() {
			if onCompletion != nil {
				onCompletion()
			}
			done.Done()
		}
		js.Submit(job)
	}
	done.Wait()
	return errors.Join(errs...)
}
