package delivery

import "time"

// MaxBackoff caps the retry delay at 24 hours.
const MaxBackoff = 86400 * time.Second

// Backoff returns the delay before the next attempt given the subscriber's
// base interval (seconds) and the delivery's attempt count after the failed
// attempt has been counted.
//
// delay = min(interval * 2^attemptCount, 86400s). Because the exponent is
// the post-increment attempt count, the first retry waits twice the base
// interval rather than the base interval itself. Subscribers tune their
// intervals around that behavior, so it is kept.
func Backoff(retryInterval, attemptCount int) time.Duration {
	if retryInterval <= 0 {
		retryInterval = 1
	}
	if attemptCount < 0 {
		attemptCount = 0
	}
	// 2^17s already exceeds a day for any positive interval.
	if attemptCount > 17 {
		return MaxBackoff
	}

	delay := time.Duration(retryInterval) * time.Second << uint(attemptCount)
	if delay > MaxBackoff || delay <= 0 {
		return MaxBackoff
	}
	return delay
}
