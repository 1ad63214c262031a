package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NextTickTime(t *testing.T) {
	base := time.Date(2025, 1, 6, 12, 7, 30, 0, time.UTC)

	tests := []struct {
		name   string
		now    time.Time
		period time.Duration
		want   time.Time
	}{
		{name: "1m", now: base, period: time.Minute, want: time.Date(2025, 1, 6, 12, 8, 0, 0, time.UTC)},
		{name: "5m", now: base, period: 5 * time.Minute, want: time.Date(2025, 1, 6, 12, 10, 0, 0, time.UTC)},
		{name: "15m crosses hour", now: time.Date(2025, 1, 6, 12, 50, 0, 0, time.UTC), period: 15 * time.Minute, want: time.Date(2025, 1, 6, 13, 0, 0, 0, time.UTC)},
		{name: "exact boundary moves forward", now: time.Date(2025, 1, 6, 12, 10, 0, 0, time.UTC), period: 5 * time.Minute, want: time.Date(2025, 1, 6, 12, 15, 0, 0, time.UTC)},
		{name: "1H crosses day", now: time.Date(2025, 1, 6, 23, 30, 0, 0, time.UTC), period: time.Hour, want: time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC)},
		{name: "fixed 15s", now: base, period: 15 * time.Second, want: time.Date(2025, 1, 6, 12, 7, 45, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(NextTickTime(tt.now, tt.period)))
		})
	}
}

type countingJob struct {
	name  string
	calls int32
	err   error
	delay time.Duration
	panic bool
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Tick(ctx context.Context) error {
	atomic.AddInt32(&j.calls, 1)
	if j.panic {
		panic("boom")
	}
	time.Sleep(j.delay)
	return j.err
}

func Test_RunOnce(t *testing.T) {
	jobs := []*countingJob{
		{name: "a", delay: 50 * time.Millisecond},
		{name: "b", delay: 50 * time.Millisecond, err: errors.New("feed unavailable")},
		{name: "c", panic: true},
	}
	s := NewScheduler([]Job{jobs[0], jobs[1], jobs[2]}, time.Minute)

	start := time.Now()
	s.RunOnce(context.Background())
	elapsed := time.Since(start)

	for _, j := range jobs {
		assert.Equal(t, int32(1), atomic.LoadInt32(&j.calls), j.name)
	}
	assert.Less(t, elapsed, 100*time.Millisecond)
}

func Test_Start(t *testing.T) {
	job := &countingJob{name: "a"}
	s := NewScheduler([]Job{job}, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&job.calls) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
