package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduleDueSemantics(t *testing.T) {
	s := NewRetrySchedule()
	now := time.Now()

	// No entry means always due.
	assert.True(t, s.Due(1, now))

	s.SetRetryAt(1, now.Add(time.Minute))
	assert.False(t, s.Due(1, now))
	assert.True(t, s.Due(1, now.Add(time.Minute)))
	assert.True(t, s.Due(1, now.Add(2*time.Minute)))

	// Other groups are unaffected.
	assert.True(t, s.Due(2, now))
}

func TestScheduleClearAndReset(t *testing.T) {
	s := NewRetrySchedule()
	now := time.Now()

	s.SetRetryAt(1, now.Add(time.Minute))
	s.SetRetryAt(2, now.Add(time.Hour))
	assert.Equal(t, 2, s.Len())

	s.Clear(1)
	assert.True(t, s.Due(1, now))
	assert.Equal(t, 1, s.Len())

	s.Reset()
	assert.Equal(t, 0, s.Len())
	assert.True(t, s.Due(2, now))
}

func TestScheduleNextDue(t *testing.T) {
	s := NewRetrySchedule()
	now := time.Now()

	_, ok := s.NextDue()
	assert.False(t, ok)

	s.SetRetryAt(1, now.Add(time.Hour))
	s.SetRetryAt(2, now.Add(time.Minute))

	at, ok := s.NextDue()
	assert.True(t, ok)
	assert.Equal(t, now.Add(time.Minute), at)
}
