package executor

import "time"

// RetryPolicy bounds one Execute call: at most MaxAttempts write-then-read
// cycles, separated by a fixed Delay.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	Delay       time.Duration `json:"delay"`
}

// DefaultRetryPolicy returns three attempts half a second apart
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 500 * time.Millisecond}
}

// Attempts returns MaxAttempts, with anything below one counted as one
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// WorstCaseLatency is the documented upper bound of one Execute call over a
// session whose read timeout is readTimeout: Attempts × (readTimeout + Delay).
// No delay follows the final attempt, so real exhaustion takes one Delay less.
func (p RetryPolicy) WorstCaseLatency(readTimeout time.Duration) time.Duration {
	return time.Duration(p.Attempts()) * (readTimeout + p.Delay)
}
