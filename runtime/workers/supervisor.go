package workers

import (
	"chat-presence/contract"
	"chat-presence/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultRestartInterval = 200 * time.Millisecond

// Supervisor keeps the long-lived workers of the presence runtime alive.
// A worker returning nil is done for good. An error or a panic restarts it
// after restartInterval, unless the supervisor is stopping.
type Supervisor struct {
	log             *slog.Logger
	restartInterval time.Duration
	wg              sync.WaitGroup

	mu      sync.Mutex
	workers []contract.Worker
	cancel  context.CancelFunc
	stopped bool
}

func NewSupervisor(log *slog.Logger, restartInterval time.Duration) *Supervisor {
	if restartInterval <= 0 {
		restartInterval = defaultRestartInterval
	}
	return &Supervisor{log: log, restartInterval: restartInterval}
}

// Run starts every registered worker and blocks until all of them returned.
// Canceling ctx or calling Stop ends the supervised workers.
func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancel = cancel
	if s.stopped {
		cancel()
	}
	workers := append([]contract.Worker(nil), s.workers...)
	s.mu.Unlock()

	for _, worker := range workers {
		s.Start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = append(s.workers, worker...)
	return s
}

// Start runs one worker in its own goroutine and restarts it on failure.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	name := contract.GetWorkerName(worker)
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		for ctx.Err() == nil {
			err := s.runOnce(ctx, worker)
			switch {
			case err == nil:
				s.log.Info(fmt.Sprintf("Worker finished : %s", name))
				return
			case ctx.Err() != nil:
				s.log.Info("Worker stopped (context canceled)", "name", name)
				return
			}

			s.log.Warn("Worker crashed, restarting", "name", name, "error", err, "in", s.restartInterval)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.restartInterval):
			}
		}
		s.log.Info(fmt.Sprintf("Stopping : %s", name))
	}()
}

// runOnce turns a panic of the worker into ErrWorkerPanic.
func (s *Supervisor) runOnce(ctx context.Context, worker contract.Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
		}
	}()
	return worker.Run(ctx)
}

// Stop cancels the supervised workers. Calling it before Run makes Run return at once.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
}
