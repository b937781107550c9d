package session

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"go.uber.org/atomic"
)

const settle = 20 * time.Millisecond

func TestResetTimerFires(t *testing.T) {
	mock := clock.NewMock()
	timer := NewResetTimer(mock, time.Second)
	var fired atomic.Int32

	timer.Arm(func() { fired.Inc() })
	assert.True(t, timer.Pending())

	mock.Add(999 * time.Millisecond)
	time.Sleep(settle)
	assert.Equal(t, int32(0), fired.Load())

	mock.Add(time.Millisecond)
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return !timer.Pending() }, time.Second, time.Millisecond)
}

func TestResetTimerCancel(t *testing.T) {
	mock := clock.NewMock()
	timer := NewResetTimer(mock, time.Second)
	var fired atomic.Int32

	timer.Arm(func() { fired.Inc() })
	timer.Cancel()
	assert.False(t, timer.Pending())

	mock.Add(2 * time.Second)
	time.Sleep(settle)
	assert.Equal(t, int32(0), fired.Load())
}

func TestResetTimerSupersede(t *testing.T) {
	mock := clock.NewMock()
	timer := NewResetTimer(mock, time.Second)
	var first, second atomic.Int32

	timer.Arm(func() { first.Inc() })
	mock.Add(500 * time.Millisecond)
	timer.Arm(func() { second.Inc() })

	mock.Add(600 * time.Millisecond)
	time.Sleep(settle)
	assert.Equal(t, int32(0), first.Load(), "superseded action never runs")
	assert.Equal(t, int32(0), second.Load())

	mock.Add(400 * time.Millisecond)
	assert.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
}
