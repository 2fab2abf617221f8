package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRTOEstimatorFallback(t *testing.T) {
	e := NewRTOEstimator()
	fallback := 5 * time.Second
	assert.Equal(t, fallback, e.Timeout(ClassRead, fallback))
}

func TestRTOEstimatorConverges(t *testing.T) {
	e := NewRTOEstimator()
	for i := 0; i < 50; i++ {
		e.Update(ClassLookup, 100*time.Millisecond)
	}
	timeout := e.Timeout(ClassLookup, time.Second)
	assert.Less(t, timeout, time.Second)
	assert.Greater(t, timeout, 50*time.Millisecond)
}

func TestBackoffTimeoutMonotonicity(t *testing.T) {
	base := 100 * time.Millisecond
	maxtime := 10 * time.Second

	var last time.Duration
	for count := 0; count < 12; count++ {
		cur := BackoffTimeout(base, count, maxtime)
		assert.GreaterOrEqual(t, cur, last, "backoff must be non-decreasing until capped")
		last = cur
	}
	assert.Equal(t, maxtime, last)
}

func TestBackoffTimeoutFloor(t *testing.T) {
	tiny := time.Microsecond
	got := BackoffTimeout(tiny, 0, time.Second)
	assert.Equal(t, minRTO, got)
}
