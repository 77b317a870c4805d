package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestBuildDailySpec(t *testing.T) {
	cases := map[string]string{
		"08:00":  "0 0 8 * * *",
		"23:59":  "0 59 23 * * *",
		" 7:05 ": "0 5 7 * * *",
		"00:00":  "0 0 0 * * *",
	}
	for in, want := range cases {
		got, err := buildDailySpec(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, bad := range []string{"", "8", "24:00", "12:60", "aa:bb", "1:2:3"} {
		_, err := buildDailySpec(bad)
		assert.Error(t, err, bad)
	}
}

func TestScheduleIntervalRejectsNonPositive(t *testing.T) {
	s := NewSchedulerService(time.UTC, 0, zap.NewNop())
	defer s.Stop()

	_, err := s.ScheduleInterval("bad", 0, func(context.Context) {})
	assert.Error(t, err)
}

func TestSchedulerRunsAndStopsJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewSchedulerService(time.UTC, time.Minute, zap.NewNop())

	var runs atomic.Int32
	cancelled := make(chan struct{})
	_, err := s.ScheduleInterval("tick", time.Second, func(ctx context.Context) {
		if runs.Add(1) == 1 {
			<-ctx.Done()
			close(cancelled)
		}
	})
	require.NoError(t, err)
	_, err = s.ScheduleDaily("morning", "08:00", func(context.Context) {})
	require.NoError(t, err)

	s.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)

	s.Stop()
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("running job was not cancelled by Stop")
	}
	s.Stop()
}
