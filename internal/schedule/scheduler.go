package schedule

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// Job is one periodic maintenance task over the overlay store, such as the
// orphaned-overlay sweep.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type Scheduler interface {
	AddJob(job Job, spec string) error
	Start(ctx context.Context)
	Stop()
}

// CronScheduler drives maintenance jobs off five-field cron specs. A job
// never overlaps itself: a tick landing while the previous run is still going
// is counted and dropped.
type CronScheduler struct {
	cron *cron.Cron
	jobs []*boundJob
	ctx  context.Context
}

type boundJob struct {
	sched   *CronScheduler
	job     Job
	spec    string
	running atomic.Bool
	dropped atomic.Int64
}

func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &CronScheduler{cron: cron.New(cron.WithParser(parser))}
}

func (c *CronScheduler) AddJob(job Job, spec string) error {
	b := &boundJob{sched: c, job: job, spec: spec}
	if _, err := c.cron.AddFunc(spec, b.tick); err != nil {
		b.logger().Error("schedule maintenance job failed", zap.Error(err))
		return err
	}
	c.jobs = append(c.jobs, b)
	b.logger().Info("maintenance job scheduled")
	return nil
}

func (c *CronScheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.ctx = ctx
	c.cron.Start()
}

func (c *CronScheduler) Stop() {
	done := c.cron.Stop()
	<-done.Done()
}

func (b *boundJob) logger() *zap.Logger {
	return logutil.GetLogger(context.Background()).With(
		zap.String("job", b.job.Name()),
		zap.String("spec", b.spec),
	)
}

func (b *boundJob) tick() {
	if !b.running.CompareAndSwap(false, true) {
		b.logger().Warn("previous run still active, tick dropped",
			zap.Int64("dropped_total", b.dropped.Add(1)))
		return
	}
	defer b.running.Store(false)

	ctx := b.sched.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	if err := b.job.Run(ctx); err != nil {
		b.logger().Error("maintenance job failed",
			zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return
	}
	b.logger().Info("maintenance job done", zap.Duration("elapsed", time.Since(start)))
}
