package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// periodicJob calls run once per interval until stopped. Each call gets a
// context bounded by timeout.
type periodicJob struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	run      func(ctx context.Context) error
	logger   *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newPeriodicJob(name string, interval, timeout time.Duration, run func(context.Context) error,
	logger *zap.Logger) *periodicJob {
	if timeout <= 0 {
		timeout = interval
	}
	return &periodicJob{
		name:     name,
		interval: interval,
		timeout:  timeout,
		run:      run,
		logger:   logger.With(zap.String("job", name)),
		stopCh:   make(chan struct{}),
	}
}

func (j *periodicJob) start() {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		j.logger.Info("Started periodic job", zap.Duration("interval", j.interval))
		for {
			select {
			case <-ticker.C:
				j.tick()
			case <-j.stopCh:
				j.logger.Info("Stopping periodic job")
				return
			}
		}
	}()
}

func (j *periodicJob) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if err := j.run(ctx); err != nil {
		j.logger.Error("Periodic job failed", zap.Error(err))
	}
}

// stop waits for an in-flight run.
func (j *periodicJob) stop() {
	close(j.stopCh)
	j.wg.Wait()
}
