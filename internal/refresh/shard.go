// Package refresh implements time-sharded, concurrency-bounded batch refresh
// over a cached keyspace.
package refresh

import (
	"hash/fnv"
	"time"
)

// StableHash returns a pure, deterministic 32-bit FNV-1a hash of key.
func StableHash(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}

// DayCounter returns the number of whole days since the Unix epoch in UTC.
// Unlike a calendar day-of-year, this counter is monotonic across year
// boundaries, so the shard rotation never skips or repeats a shard.
func DayCounter(now time.Time) int {
	return int(now.UTC().Unix() / 86400)
}

// ShardFor returns the shard a key belongs to in a numChunks partition.
func ShardFor(key string, numChunks int) int {
	if numChunks <= 1 {
		return 0
	}
	return int(StableHash(key) % uint32(numChunks))
}

// TodayShard returns the shard scheduled for refresh at the given time.
func TodayShard(now time.Time, numChunks int) int {
	if numChunks <= 1 {
		return 0
	}
	return DayCounter(now) % numChunks
}
