// Package runtime supervises long-lived background workers: it
// restarts them after crashes and shuts them down on context
// cancellation.
package runtime

import (
	"blimp/errors"
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

const waitTimeBeforeRestart = 200 * time.Millisecond

// Worker doesn't protect itself. Can be silly, focused.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerName uses reflection to retrieve the type name of the worker,
// avoiding manual naming in the Worker interface.
func WorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Supervisor owns a context and a cancel function, runs each worker in
// a goroutine, recovers panics, restarts crashed workers, and waits
// for all of them on shutdown.
type Supervisor struct {
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	log     *slog.Logger
	workers []Worker
}

func NewSupervisor(log *slog.Logger) *Supervisor {
	return &Supervisor{wg: &sync.WaitGroup{}, log: log}
}

func (s *Supervisor) Add(worker ...Worker) *Supervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Run starts every registered worker under a supervised child context
// and returns once all of them finished.
func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer s.cancel()

	for _, worker := range s.workers {
		s.start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

// start runs one worker under supervision. If its Run method panics,
// the supervisor recovers and restarts it after a short delay; a
// failure in one worker must not stop the supervisor itself.
func (s *Supervisor) start(ctx context.Context, worker Worker) {
	s.wg.Add(1)
	workerName := WorkerName(worker)

	go func() {
		defer s.wg.Done()

		for {
			if ctx.Err() != nil {
				s.log.Info(fmt.Sprintf("Stopping : %s", workerName))
				return
			}

			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = errors.ErrWorkerPanic
					}
				}()
				return worker.Run(ctx)
			}()

			if err == nil {
				// Terminated properly, never restart.
				s.log.Info(fmt.Sprintf("Worker finished : %s", workerName))
				return
			}

			if ctx.Err() != nil {
				s.log.Info("Worker stopped (context canceled)", "name", workerName)
				return
			}

			s.log.Warn("Worker crashed, restarting", "name", workerName, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(waitTimeBeforeRestart):
			}
		}
	}()
}

// Stop cancels all supervised workers; Run unblocks once they finish.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}
