package scheduler_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/chatlinkhq/chatlink/server/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTickerRunsTask(t *testing.T) {
	s := scheduler.New(zap.NewNop())
	defer s.Stop()

	var runs int64
	s.AddTicker("tick", 10*time.Millisecond, func() {
		atomic.AddInt64(&runs, 1)
	})

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&runs) >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestAddTickerReplacesSameName(t *testing.T) {
	s := scheduler.New(zap.NewNop())
	defer s.Stop()

	s.AddTicker("job", time.Hour, func() {})
	s.AddTicker("job", time.Hour, func() {})

	assert.Equal(t, []string{"job"}, s.Names())
}

func TestStopCancelsTasks(t *testing.T) {
	s := scheduler.New(zap.NewNop())

	var runs int64
	s.AddTicker("tick", 10*time.Millisecond, func() {
		atomic.AddInt64(&runs, 1)
	})
	s.Stop()

	after := atomic.LoadInt64(&runs)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt64(&runs))
	assert.Empty(t, s.Names())
}

func TestPanickingTaskKeepsTicking(t *testing.T) {
	s := scheduler.New(zap.NewNop())
	defer s.Stop()

	var runs int64
	s.AddTicker("flaky", 10*time.Millisecond, func() {
		atomic.AddInt64(&runs, 1)
		panic("boom")
	})

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&runs) >= 2
	}, time.Second, 5*time.Millisecond)
}
