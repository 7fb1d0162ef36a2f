package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/jeovahfialho/lntools/internal/domain"
	"github.com/jeovahfialho/lntools/pkg/metrics"
	"go.uber.org/zap"
)

type Status int

const (
	StatusPending Status = iota
	StatusOK
	StatusEmpty
	StatusMissing
	StatusFailed
	StatusTimeout
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEmpty:
		return "empty"
	case StatusMissing:
		return "missing"
	case StatusFailed:
		return "failed"
	case StatusTimeout:
		return "timeout"
	default:
		return "pending"
	}
}

// Outcome is the result of one candidate. Exactly one of Frame and Problem
// is set, except for StatusEmpty where both may be nil.
type Outcome struct {
	Candidate Candidate
	Frame     *domain.Frame
	Problem   *Problem
	Status    Status
	Duration  time.Duration
}

type WorkerPool struct {
	workers int
	reader  Reader
	log     *zap.Logger
}

type Job struct {
	Index     int
	Candidate Candidate
}

func NewWorkerPool(workers int, reader Reader, log *zap.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkerPool{
		workers: workers,
		reader:  reader,
		log:     log,
	}
}

// ReadAll reads every candidate and returns one outcome per candidate, in
// candidate order. When ctx ends, files already being read are finished and
// candidates not yet started are reported as timeouts.
func (wp *WorkerPool) ReadAll(ctx context.Context, candidates []Candidate) []Outcome {
	outcomes := make([]Outcome, len(candidates))
	if len(candidates) == 0 {
		return outcomes
	}

	workers := wp.workers
	if workers > len(candidates) {
		workers = len(candidates)
	}

	jobQueue := make(chan Job, workers*2)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go wp.worker(ctx, jobQueue, outcomes, &wg)
	}

	go func() {
		defer close(jobQueue)
		for i, c := range candidates {
			select {
			case <-ctx.Done():
				return
			case jobQueue <- Job{Index: i, Candidate: c}:
			}
		}
	}()

	wg.Wait()

	for i := range outcomes {
		if outcomes[i].Status != StatusPending {
			continue
		}
		c := candidates[i]
		reason := "not started before the deadline"
		if ctx.Err() != nil {
			reason = fmt.Sprintf("not started: %v", ctx.Err())
		}
		outcomes[i] = Outcome{
			Candidate: c,
			Status:    StatusTimeout,
			Problem: &Problem{
				Date:   c.Date,
				Path:   c.Path,
				Kind:   ProblemTimeout,
				Reason: reason,
				Err:    ctx.Err(),
			},
		}
		metrics.RecordFileRead(StatusTimeout.String())
	}

	return outcomes
}

func (wp *WorkerPool) worker(ctx context.Context, jobs <-chan Job, outcomes []Outcome, wg *sync.WaitGroup) {
	defer wg.Done()

	for job := range jobs {
		if ctx.Err() != nil {
			continue
		}
		outcomes[job.Index] = wp.processFile(ctx, job.Candidate)
	}
}

func (wp *WorkerPool) processFile(ctx context.Context, c Candidate) (out Outcome) {
	metrics.ActiveWorkers.Inc()
	timer := metrics.NewTimer()

	out.Candidate = c

	defer func() {
		metrics.ActiveWorkers.Dec()
		out.Duration = timer.Elapsed()
		metrics.RecordFileRead(out.Status.String())
		if out.Status == StatusOK || out.Status == StatusEmpty {
			timer.ObserveDuration(metrics.FileReadDuration.WithLabelValues(Format(c.Path)))
		}
	}()

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("reader panic: %v", rec)
			out.Frame = nil
			out.Status = StatusFailed
			out.Problem = wp.failure(c, ProblemFailed, err)
		}
	}()

	info, err := os.Stat(c.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			wp.log.Warn("file not found, skipping",
				zap.String("path", c.Path),
				zap.Time("date", c.Date))
			out.Status = StatusMissing
			out.Problem = &Problem{Date: c.Date, Path: c.Path, Kind: ProblemMissing, Reason: "file does not exist", Err: err}
			return out
		}
		out.Status = StatusFailed
		out.Problem = wp.failure(c, ProblemFailed, err)
		return out
	}
	if info.IsDir() {
		out.Status = StatusFailed
		out.Problem = wp.failure(c, ProblemFailed, fmt.Errorf("%s is a directory", c.Path))
		return out
	}

	// A file in hand is always finished, even past the deadline.
	frame, err := wp.reader.Read(context.WithoutCancel(ctx), c.Path)
	if err != nil {
		out.Status = StatusFailed
		out.Problem = wp.failure(c, ProblemFailed, err)
		return out
	}
	if err := frame.Validate(); err != nil {
		out.Status = StatusFailed
		out.Problem = wp.failure(c, ProblemFailed, err)
		return out
	}

	if frame.IsEmpty() {
		wp.log.Debug("empty file", zap.String("path", c.Path))
		out.Status = StatusEmpty
		out.Frame = frame
		return out
	}

	metrics.RowsRead.Add(float64(frame.Len()))
	out.Status = StatusOK
	out.Frame = frame
	return out
}

func (wp *WorkerPool) failure(c Candidate, kind ProblemKind, err error) *Problem {
	wp.log.Error("failed to read file",
		zap.String("path", c.Path),
		zap.Time("date", c.Date),
		zap.Error(err))
	return &Problem{Date: c.Date, Path: c.Path, Kind: kind, Reason: err.Error(), Err: err}
}
