package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStepClock(t *testing.T) {
	c := NewStepClock(time.Time{}, 0)

	assert.Equal(t, Epoch, c.Now())
	assert.Equal(t, Epoch.Add(time.Second), c.Now())
	assert.Equal(t, Epoch.Add(2*time.Second), c.Peek())

	c.Reset()
	assert.Equal(t, Epoch, c.Now())
}

func TestStepClockCustomStep(t *testing.T) {
	start := time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)
	c := NewStepClock(start, time.Minute)

	c.Now()
	assert.Equal(t, start.Add(time.Minute), c.Now())
}
