package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ResyncRunner re-runs the reminder sweep on an interval. It stands in
// for the platform's background wake-up mechanism and guards against
// repeating triggers being silently dropped.
type ResyncRunner struct {
	coordinator *Coordinator
	interval    time.Duration
	logger      *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool
	mu          sync.Mutex
}

// NewResyncRunner creates a runner ticking at the given interval.
func NewResyncRunner(coordinator *Coordinator, interval time.Duration, logger *zap.Logger) *ResyncRunner {
	if interval <= 0 {
		interval = time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ResyncRunner{
		coordinator: coordinator,
		interval:    interval,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the background sweep loop.
func (r *ResyncRunner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("resync runner already running")
	}

	r.running = true
	r.wg.Add(1)
	go r.run()
	return nil
}

// Stop stops the loop and waits for an in-flight sweep to finish.
func (r *ResyncRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	r.logger.Info("Resync runner stopped")
}

// IsRunning returns whether the runner is active.
func (r *ResyncRunner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *ResyncRunner) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.logger.Debug("Periodic reminder re-sync")
			r.coordinator.Resync(r.ctx)
		}
	}
}
