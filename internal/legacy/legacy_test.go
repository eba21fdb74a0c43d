package legacy

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/locstore"
)

// newTestStore connects to the Redis named by LOCSTORE_TEST_REDIS, skipping
// when none is available. DB 9 is flushed between tests.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("LOCSTORE_TEST_REDIS")
	if addr == "" {
		t.Skip("set LOCSTORE_TEST_REDIS to run legacy backend tests")
	}

	s, err := New(addr, 9, time.Minute, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.c.FlushDB(ctx).Err())
	t.Cleanup(func() { _ = s.Stop(ctx) })
	return s
}

func TestRegisterAndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Register(ctx, "m1", []locstore.BlobRecord{{Hash: "h1", Size: 42}}, true))
	require.NoError(t, s.Register(ctx, "m2", []locstore.BlobRecord{{Hash: "h1", Size: 42}}, true))

	locs, err := s.Lookup(ctx, []locstore.ContentHash{"h1", "missing"}, locstore.OriginGlobal)
	require.NoError(t, err)
	require.Contains(t, locs, locstore.ContentHash("h1"))
	assert.NotContains(t, locs, locstore.ContentHash("missing"))
	assert.Equal(t, int64(42), locs["h1"].Size)
	assert.ElementsMatch(t, []locstore.MachineLocation{"m1", "m2"}, locs["h1"].Machines)
}

func TestTrims(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Register(ctx, "m1", []locstore.BlobRecord{{Hash: "h1"}, {Hash: "h2"}}, true))
	require.NoError(t, s.Register(ctx, "m2", []locstore.BlobRecord{{Hash: "h2"}}, true))

	require.NoError(t, s.TrimByHashes(ctx, []locstore.ContentHash{"h1"}))
	require.NoError(t, s.TrimByMap(ctx, map[locstore.ContentHash][]locstore.MachineLocation{"h2": {"m1"}}))

	locs, err := s.Lookup(ctx, []locstore.ContentHash{"h1", "h2"}, locstore.OriginGlobal)
	require.NoError(t, err)
	assert.NotContains(t, locs, locstore.ContentHash("h1"))
	assert.Equal(t, []locstore.MachineLocation{"m2"}, locs["h2"].Machines)
}

func TestBlobRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.True(t, s.BlobsSupported())
	require.NoError(t, s.PutBlob(ctx, "b1", []byte("payload")))

	data, err := s.GetBlob(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	_, err = s.GetBlob(ctx, "absent")
	assert.ErrorIs(t, err, locstore.ErrNotFound)
}

func TestGarbageCollectRemovesOrphans(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Register(ctx, "m1", []locstore.BlobRecord{{Hash: "h1", Size: 10}}, true))
	require.NoError(t, s.PutBlob(ctx, "h1", []byte("blob")))

	// Drop the location set directly, leaving size and blob keys orphaned.
	require.NoError(t, s.c.Del(ctx, locKey+"h1").Err())

	require.NoError(t, s.GarbageCollect(ctx))

	n, err := s.c.Exists(ctx, sizeKey+"h1", blobKey+"h1").Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLiveness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Register(ctx, "m1", []locstore.BlobRecord{{Hash: "h1"}}, true))

	active, err := s.IsMachineActive(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, active)

	m, err := s.RandomMachine(ctx)
	require.NoError(t, err)
	assert.Equal(t, locstore.MachineLocation("m1"), m)
}
