// Package queuestore defines the queue/KV-store protocol this worker
// depends on (spec.md section 1's external collaborator: blocking
// multi-queue pop, list push, hash get/set, atomic integer increment, set
// add/remove/size, key expire) and a github.com/redis/go-redis/v9-backed
// implementation.
package queuestore

import (
	"context"
	"time"
)

// PopResult is the result of a blocking multi-queue pop: the queue the
// payload came from and the raw JSON bytes.
type PopResult struct {
	Queue   string
	Payload []byte
}

// Store is the KV/queue protocol every other package in this module is
// built against. Constructed once at process startup and injected into
// every collaborator that needs it (spec.md section 9's design note on
// process-wide singletons behind a small interface).
type Store interface {
	// BRPop performs a blocking pop across queues in priority order,
	// returning nil if the timeout elapses with nothing available.
	BRPop(ctx context.Context, timeout time.Duration, queues ...string) (*PopResult, error)

	// RPush appends a payload to the tail of a queue, the end BRPop takes
	// from, so a requeued job is the next one popped from that queue.
	RPush(ctx context.Context, queue string, payload []byte) error

	// LPush prepends a payload (used for DLQ pushes, append-only lists
	// read from the head by operators).
	LPush(ctx context.Context, queue string, payload []byte) error

	// HGetAll reads a full hash (the job-status record).
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// HSet writes fields into a hash atomically and refreshes its TTL.
	HSet(ctx context.Context, key string, fields map[string]any, ttl time.Duration) error

	// Incr atomically increments an integer counter and returns the new
	// value.
	Incr(ctx context.Context, key string) (int64, error)

	// SAdd adds a member to a set and sets the set's TTL.
	SAdd(ctx context.Context, key string, member string, ttl time.Duration) error

	// SRem removes a member from a set.
	SRem(ctx context.Context, key string, member string) error

	// SCard returns the cardinality of a set.
	SCard(ctx context.Context, key string) (int64, error)

	// Expire sets a TTL on an arbitrary key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Ping checks connectivity (used by the worker's readiness probe).
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}

// Reconnecter is optionally implemented by a Store backend that can
// close and reopen its underlying connection (spec.md section 4.11 step
// 1, "idle workers reconnect after the idle threshold to defeat stale
// proxies"). The worker loop type-asserts for it; backends without a
// persistent connection (e.g. none in this pack) simply don't implement
// it and the loop skips the reconnect step.
type Reconnecter interface {
	Reconnect() error
}

// InflightKey returns the KV set key tracking in-flight job ids for a
// job type (spec.md section 4.11: "worker:inflight:<TYPE>").
func InflightKey(jobType string) string {
	return "worker:inflight:" + jobType
}

// StatusKey returns the job-status hash key for a job id.
func StatusKey(jobID string) string {
	return "job_status:" + jobID
}

// StatusTTL is the 24h status-record lifetime after the last write
// (spec.md section 3).
const StatusTTL = 24 * time.Hour

// InflightTTL is the 24h expiry set on an in-flight admission set entry
// (spec.md section 4.11).
const InflightTTL = 24 * time.Hour
