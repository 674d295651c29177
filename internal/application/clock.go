package application

import "time"

// Clock lets services be tested with a fixed time
type Clock interface {
	Now() time.Time
}

// SystemClock is the default, backed by time.Now()
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
