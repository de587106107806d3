// Package ratelimit implements the per-trader execution cooldown.
package ratelimit

// Allowed reports whether an execution at currentTime is permitted given
// the last successful execution time and the cooldown, all in seconds.
// A trader that has never executed (lastSwapTimestamp == 0) is always
// allowed.
func Allowed(lastSwapTimestamp, currentTime, cooldownSeconds int64) bool {
	if lastSwapTimestamp == 0 {
		return true
	}
	return currentTime-lastSwapTimestamp >= cooldownSeconds
}

// Remaining returns the seconds until the next permitted execution.
// Zero means an execution is permitted now.
func Remaining(lastSwapTimestamp, currentTime, cooldownSeconds int64) int64 {
	if Allowed(lastSwapTimestamp, currentTime, cooldownSeconds) {
		return 0
	}
	return lastSwapTimestamp + cooldownSeconds - currentTime
}
