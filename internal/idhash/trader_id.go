package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTraderID computes a deterministic trader_id using SHA256.
// Formula: SHA256("trader|" + authority)
// Returns hex-encoded hash (64 characters). One config per authority.
func ComputeTraderID(authority string) string {
	hash := sha256.Sum256([]byte("trader|" + authority))
	return hex.EncodeToString(hash[:])
}

// ComputeAttemptRef computes a deterministic reference for one execution
// attempt. Formula: SHA256(trader_id|total_swaps|current_time)
// total_swaps is the post-increment counter value, so the reference is
// unique per committed attempt.
func ComputeAttemptRef(traderID string, totalSwaps uint64, currentTime int64) string {
	data := fmt.Sprintf("%s|%d|%d", traderID, totalSwaps, currentTime)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
