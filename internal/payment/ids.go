package payment

import (
	"fmt"
	"sync"
	"time"
)

// Snowflake-style ID generator used for request ids and order ids.
var (
	lastTimestamp int64
	sequence      int64
	mu            sync.Mutex

	nodeID       = int64(1) // 0-1023
	nodeBits     = 10
	sequenceBits = 12
	customEpoch  = int64(1700000000000) // milliseconds
	maxSequence  = (1 << sequenceBits) - 1
)

// NextID generates a unique 64-bit Snowflake ID
// Format: [timestamp (42 bits)][node ID (10 bits)][sequence (12 bits)]
func NextID() int64 {
	mu.Lock()
	defer mu.Unlock()

	ts := time.Now().UnixMilli() - customEpoch

	if ts < lastTimestamp {
		ts = lastTimestamp
	}

	if ts == lastTimestamp {
		sequence++
		if sequence > int64(maxSequence) {
			// Wait for next millisecond
			for ts <= lastTimestamp {
				time.Sleep(time.Millisecond)
				ts = time.Now().UnixMilli() - customEpoch
			}
			sequence = 0
		}
	} else {
		sequence = 0
	}

	lastTimestamp = ts

	id := (ts << (nodeBits + sequenceBits)) | (nodeID << sequenceBits) | sequence
	return id
}

// OrderID builds a human-traceable order id embedding the creation time and
// the purchasing user's id.
func OrderID(userID int) string {
	return fmt.Sprintf("ORDER-%d-%d", time.Now().UnixMilli(), userID)
}
