package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrQueueFull = errors.New("dispatch lane is full")

// Job is one unit of chat work. Jobs for the same chat run in enqueue order.
type Job struct {
	ID       string
	ChatID   int64
	Kind     string
	QueuedAt time.Time
	Run      func(ctx context.Context) error
}

type Observer interface {
	OnJobQueued(job Job, lane int)
	OnJobCompleted(job Job, lane int, elapsed time.Duration)
	OnJobFailed(job Job, lane int, err error)
}

type Engine struct {
	lanes     []chan Job
	logger    *slog.Logger
	observer  Observer
	startOnce sync.Once
}

func New(laneCount, queueSize int, logger *slog.Logger) *Engine {
	if laneCount < 1 {
		laneCount = 1
	}
	if queueSize < 1 {
		queueSize = 64
	}
	lanes := make([]chan Job, laneCount)
	for index := range lanes {
		lanes[index] = make(chan Job, queueSize)
	}
	return &Engine{
		lanes:  lanes,
		logger: logger,
	}
}

func (e *Engine) SetObserver(observer Observer) {
	e.observer = observer
}

func (e *Engine) LaneCount() int {
	return len(e.lanes)
}

// LaneFor maps a chat to its lane; every message of a chat lands on the same lane.
func (e *Engine) LaneFor(chatID int64) int {
	return int(uint64(chatID) % uint64(len(e.lanes)))
}

// Start runs one worker per lane and blocks until ctx is cancelled and every
// worker has returned.
func (e *Engine) Start(ctx context.Context) error {
	var workers sync.WaitGroup
	e.startOnce.Do(func() {
		for index := range e.lanes {
			workers.Add(1)
			go func(lane int) {
				defer workers.Done()
				e.worker(ctx, lane)
			}(index)
		}
	})

	<-ctx.Done()
	workers.Wait()
	return nil
}

func (e *Engine) Enqueue(job Job) (Job, error) {
	if job.Run == nil {
		return Job{}, errors.New("job has no run function")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.QueuedAt.IsZero() {
		job.QueuedAt = time.Now().UTC()
	}
	lane := e.LaneFor(job.ChatID)

	select {
	case e.lanes[lane] <- job:
		e.logger.Debug("job queued", "job_id", job.ID, "chat_id", job.ChatID, "kind", job.Kind, "lane", lane)
		if e.observer != nil {
			e.observer.OnJobQueued(job, lane)
		}
		return job, nil
	default:
		return Job{}, ErrQueueFull
	}
}

func (e *Engine) worker(ctx context.Context, lane int) {
	e.logger.Debug("lane started", "lane", lane)
	for {
		select {
		case <-ctx.Done():
			e.logger.Debug("lane stopped", "lane", lane)
			return
		case job := <-e.lanes[lane]:
			e.process(ctx, lane, job)
		}
	}
}

func (e *Engine) process(ctx context.Context, lane int, job Job) {
	started := time.Now()
	defer func() {
		if recovered := recover(); recovered != nil {
			e.logger.Error("job panicked", "job_id", job.ID, "chat_id", job.ChatID, "lane", lane, "panic", recovered)
			if e.observer != nil {
				e.observer.OnJobFailed(job, lane, errors.New("job panicked"))
			}
		}
	}()
	if err := job.Run(ctx); err != nil {
		e.logger.Error("job failed", "job_id", job.ID, "chat_id", job.ChatID, "kind", job.Kind, "lane", lane, "error", err)
		if e.observer != nil {
			e.observer.OnJobFailed(job, lane, err)
		}
		return
	}
	if e.observer != nil {
		e.observer.OnJobCompleted(job, lane, time.Since(started))
	}
}
