package schedule

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name    string
	block   chan struct{}
	runs    atomic.Int32
	lastErr error
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		<-j.block
	}
	return j.lastErr
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewCronScheduler()
	err := s.AddJob(&countingJob{name: "sweep"}, "not a cron spec")
	require.Error(t, err)
	require.Empty(t, s.jobs)
}

func TestSchedulerAcceptsFiveFieldSpec(t *testing.T) {
	s := NewCronScheduler()
	require.NoError(t, s.AddJob(&countingJob{name: "sweep"}, "*/5 * * * *"))
	require.Len(t, s.jobs, 1)
}

func TestTickDropsOverlappingRuns(t *testing.T) {
	job := &countingJob{name: "sweep", block: make(chan struct{})}
	s := NewCronScheduler()
	require.NoError(t, s.AddJob(job, "* * * * *"))
	b := s.jobs[0]

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.tick()
	}()
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	// Second tick lands while the first is still going and must be dropped.
	b.tick()
	require.Equal(t, int32(1), job.runs.Load())
	require.Equal(t, int64(1), b.dropped.Load())

	close(job.block)
	wg.Wait()

	job.block = nil
	b.tick()
	require.Equal(t, int32(2), job.runs.Load())
}

func TestTickSurvivesJobError(t *testing.T) {
	job := &countingJob{name: "sweep", lastErr: errors.New("kv down")}
	s := NewCronScheduler()
	require.NoError(t, s.AddJob(job, "* * * * *"))
	b := s.jobs[0]

	b.tick()
	b.tick()
	require.Equal(t, int32(2), job.runs.Load())
	require.False(t, b.running.Load())
}
