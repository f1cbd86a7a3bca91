package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iPromKnight/riven/internal/testutil"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := New(testutil.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestRegisterTaskValidation(t *testing.T) {
	s := newTestScheduler(t)

	err := s.RegisterTask(TaskConfig{
		ID:   "no-interval",
		Name: "No Interval",
		Func: func(context.Context) error { return nil },
	})
	assert.Error(t, err)

	cfg := TaskConfig{
		ID:       "content-sync",
		Name:     "Content Sync",
		Interval: time.Hour,
		Func:     func(context.Context) error { return nil },
	}
	require.NoError(t, s.RegisterTask(cfg))

	err = s.RegisterTask(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRunNowExecutesTask(t *testing.T) {
	s := newTestScheduler(t)

	done := make(chan struct{})
	require.NoError(t, s.RegisterTask(TaskConfig{
		ID:       "retry-sweep",
		Name:     "Retry Sweep",
		Interval: time.Hour,
		Func: func(context.Context) error {
			close(done)
			return nil
		},
	}))

	require.NoError(t, s.RunNow("retry-sweep"))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("task did not run")
	}

	assert.Eventually(t, func() bool {
		info, err := s.GetTask("retry-sweep")
		return err == nil && info.LastRun != nil && !info.Running
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRunNowUnknownTask(t *testing.T) {
	s := newTestScheduler(t)
	assert.Error(t, s.RunNow("missing"))
}

func TestRunNowRejectsWhileRunning(t *testing.T) {
	s := newTestScheduler(t)

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, s.RegisterTask(TaskConfig{
		ID:       "slow",
		Name:     "Slow",
		Interval: time.Hour,
		Func: func(context.Context) error {
			close(started)
			<-release
			return nil
		},
	}))

	require.NoError(t, s.RunNow("slow"))
	<-started

	assert.Error(t, s.RunNow("slow"))
	close(release)
}

func TestTaskErrorDoesNotStickRunning(t *testing.T) {
	s := newTestScheduler(t)

	done := make(chan struct{})
	require.NoError(t, s.RegisterTask(TaskConfig{
		ID:       "failing",
		Name:     "Failing",
		Interval: time.Hour,
		Func: func(context.Context) error {
			close(done)
			return errors.New("upstream unavailable")
		},
	}))

	require.NoError(t, s.RunNow("failing"))
	<-done

	assert.Eventually(t, func() bool {
		info, err := s.GetTask("failing")
		return err == nil && !info.Running && info.LastRun != nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestListTasks(t *testing.T) {
	s := newTestScheduler(t)

	require.NoError(t, s.RegisterTask(TaskConfig{
		ID:          "content-sync",
		Name:        "Content Sync",
		Description: "Polls the enabled request sources",
		Interval:    5 * time.Minute,
		Func:        func(context.Context) error { return nil },
	}))
	require.NoError(t, s.RegisterTask(TaskConfig{
		ID:       "library-scan",
		Name:     "Library Scan",
		Interval: time.Hour,
		Func:     func(context.Context) error { return nil },
	}))

	tasks := s.ListTasks()
	require.Len(t, tasks, 2)

	byID := make(map[string]TaskInfo, len(tasks))
	for _, info := range tasks {
		byID[info.ID] = info
	}
	require.Contains(t, byID, "content-sync")
	require.Contains(t, byID, "library-scan")

	assert.Equal(t, "Content Sync", byID["content-sync"].Name)
	assert.Equal(t, "Polls the enabled request sources", byID["content-sync"].Description)
	assert.Equal(t, 5*time.Minute, byID["content-sync"].Interval)
	assert.Nil(t, byID["content-sync"].LastRun)
	assert.False(t, byID["content-sync"].Running)
}

func TestGetTaskUnknown(t *testing.T) {
	s := newTestScheduler(t)
	_, err := s.GetTask("missing")
	assert.Error(t, err)
}

func TestStartRunsOnStartTasks(t *testing.T) {
	s := newTestScheduler(t)

	var ran atomic.Int32
	require.NoError(t, s.RegisterTask(TaskConfig{
		ID:         "eager",
		Name:       "Eager",
		Interval:   time.Hour,
		RunOnStart: true,
		Func: func(context.Context) error {
			ran.Add(1)
			return nil
		},
	}))
	require.NoError(t, s.RegisterTask(TaskConfig{
		ID:       "lazy",
		Name:     "Lazy",
		Interval: time.Hour,
		Func: func(context.Context) error {
			ran.Add(100)
			return nil
		},
	}))

	require.NoError(t, s.Start())

	assert.Eventually(t, func() bool {
		return ran.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)
}
