package periodicscan

import "time"

// pollIntervalForTest overrides the poll interval for the duration of a
// test and returns a restore function.
func pollIntervalForTest(d time.Duration) func() {
	orig := pollInterval
	pollInterval = d
	return func() { pollInterval = orig }
}
