// Package queuestoretest provides a hermetic queuestore.Store backed by
// github.com/alicebob/miniredis/v2, used by every package's test suite
// that needs a real (if in-memory) Redis server without a network
// dependency.
package queuestoretest

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/bobmcallan/docworker/internal/common"
	"github.com/bobmcallan/docworker/internal/queuestore"
)

// New starts a miniredis server and returns a queuestore.Store wired to
// it, along with the miniredis handle for fast-forwarding TTLs in tests.
// The server is stopped automatically via t.Cleanup.
func New(t *testing.T) (queuestore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return queuestore.NewRedisStoreFromClient(client, common.NewSilentLogger()), mr
}
