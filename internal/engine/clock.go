package engine

import "time"

// Clock supplies the wall-clock time stamped on records.
//
// Time only feeds bookkeeping columns (created_at, progressed_at,
// attempted_at) and the stuck threshold. Pass ordering uses the store's
// enqueue sequence, never timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
