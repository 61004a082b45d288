package reconciliation

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultInitialTimeout = 2 * time.Minute
	defaultRunTimeout     = 2 * time.Minute
)

// Runner executes one reconciliation pass.
type Runner interface {
	RunOnce(ctx context.Context, opts RunOptions) (*Report, error)
}

// Scheduler runs reconciliation in the background on a fixed interval.
type Scheduler struct {
	runner         Runner
	initialTimeout time.Duration
	runTimeout     time.Duration
	outputDir      string
	logger         *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// SchedulerConfig tunes the Scheduler.
type SchedulerConfig struct {
	InitialTimeout time.Duration
	RunTimeout     time.Duration
	// OutputDir, when set, receives a CSV report per scheduled run.
	OutputDir string
}

// NewScheduler creates a new Scheduler
func NewScheduler(runner Runner, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	if cfg.InitialTimeout <= 0 {
		cfg.InitialTimeout = defaultInitialTimeout
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}
	return &Scheduler{
		runner:         runner,
		initialTimeout: cfg.InitialTimeout,
		runTimeout:     cfg.RunTimeout,
		outputDir:      cfg.OutputDir,
		logger:         logger,
		stopCh:         make(chan struct{}),
	}
}

// Start runs an initial pass, then one pass per interval until Stop.
func (s *Scheduler) Start(interval time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.runOnce("startup", s.initialTimeout)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.logger.Info("Started periodic reconciliation", zap.Duration("interval", interval))

		for {
			select {
			case <-ticker.C:
				s.runOnce("scheduled", s.runTimeout)
			case <-s.stopCh:
				s.logger.Info("Stopping periodic reconciliation")
				return
			}
		}
	}()
}

// Stop stops the periodic reconciliation and waits for an in-flight pass.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) runOnce(reason string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Abort the pass when Stop is called mid-run.
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	opts := RunOptions{Reason: reason}
	if s.outputDir != "" {
		opts.OutputPath = reportPath(s.outputDir, time.Now())
	}
	if _, err := s.runner.RunOnce(ctx, opts); err != nil {
		s.logger.Error("Periodic reconciliation failed", zap.String("reason", reason), zap.Error(err))
	}
}

// reportPath returns the scheduled report file name for at inside dir.
func reportPath(dir string, at time.Time) string {
	return filepath.Join(dir, "reconciliation-"+at.UTC().Format("20060102T150405Z")+".csv")
}
