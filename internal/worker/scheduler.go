package worker

import (
	"sync"
	"time"
)

// RetrySchedule holds the retry-at timestamp per job group after a transient
// failure. A group with no entry is always due. The schedule is in-memory
// only: a process restart triggers an initial drain anyway, which gives every
// group a fresh attempt.
type RetrySchedule struct {
	mu  sync.Mutex
	due map[int64]time.Time
}

func NewRetrySchedule() *RetrySchedule {
	return &RetrySchedule{due: make(map[int64]time.Time)}
}

// SetRetryAt defers the job group until t.
func (s *RetrySchedule) SetRetryAt(jobID int64, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.due[jobID] = t
}

// Due reports whether the job group may be attempted at now.
func (s *RetrySchedule) Due(jobID int64, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.due[jobID]
	if !ok {
		return true
	}
	return !now.Before(at)
}

// Clear removes the deferral for a job group.
func (s *RetrySchedule) Clear(jobID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.due, jobID)
}

// Reset drops all deferrals. Called on an offline-to-online transition.
func (s *RetrySchedule) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.due = make(map[int64]time.Time)
}

// NextDue returns the earliest scheduled retry time, if any group is deferred.
func (s *RetrySchedule) NextDue() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var earliest time.Time
	found := false
	for _, at := range s.due {
		if !found || at.Before(earliest) {
			earliest = at
			found = true
		}
	}
	return earliest, found
}

// Len returns the number of deferred job groups.
func (s *RetrySchedule) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.due)
}
