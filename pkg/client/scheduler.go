package client

import "time"

// Timer is a handle to a scheduled call.
type Timer interface {
	// Stop prevents the call from happening, it reports false when the call
	// already happened or was stopped before.
	Stop() bool
}

// Scheduler runs f once after d has elapsed. The reconnection backoff is
// built on it so that tests can control time.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
