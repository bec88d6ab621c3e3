//go:build integration

package mongo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/tier/memory"
)

var (
	sharedClient *mongo.Client
	dbCounter    atomic.Int64
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := mongodb.Run(ctx, "mongo:7.0")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start MongoDB container: %v\n", err)
		os.Exit(1)
	}
	uri, err := container.ConnectionString(ctx)
	if err == nil {
		sharedClient, err = mongo.Connect(ctx, options.Client().ApplyURI(uri))
	}
	if err != nil {
		_ = testcontainers.TerminateContainer(container)
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	_ = sharedClient.Disconnect(ctx)
	_ = testcontainers.TerminateContainer(container)
	os.Exit(code)
}

type user struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func u(k, name string) tiercache.Entry[user] {
	return tiercache.NewEntry(k, user{ID: k, Name: name})
}

func setupTier(t *testing.T, now func() time.Time) *Tier[user] {
	t.Helper()
	ctx := context.Background()
	db := sharedClient.Database(fmt.Sprintf("tiercache_test_%d", dbCounter.Add(1)))
	t.Cleanup(func() { _ = db.Drop(context.Background()) })

	mt, err := New(ctx, Config[user]{
		Collection:    db.Collection("entries"),
		Codec:         codec.JSON[user]{},
		EnsureIndexes: true,
		Now:           now,
	})
	require.NoError(t, err)
	return mt
}

func TestMongoTier_PutGetRemove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mt := setupTier(t, nil)

	inserted, err := mt.Put(ctx, u("1", "Ada"))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = mt.Put(ctx, u("1", "Grace"))
	require.NoError(t, err)
	assert.False(t, inserted)

	got, ok, err := mt.Get(ctx, "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Grace", got.Value.Name)

	ok, err = mt.ContainsKeyOnDisk(ctx, "1")
	require.NoError(t, err)
	assert.True(t, ok)

	old, ok, err := mt.Remove(ctx, "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Grace", old.Value.Name)

	_, ok, err = mt.Get(ctx, "1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMongoTier_ConditionalOps(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mt := setupTier(t, nil)
	eq := tiercache.ValueEqual[user]

	_, existed, err := mt.PutIfAbsent(ctx, u("k", "a"))
	require.NoError(t, err)
	assert.False(t, existed)

	prior, existed, err := mt.PutIfAbsent(ctx, u("k", "b"))
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, "a", prior.Value.Name)

	swapped, err := mt.ReplaceIfEqual(ctx, u("k", "zzz"), u("k", "c"), eq)
	require.NoError(t, err)
	assert.False(t, swapped)
	swapped, err = mt.ReplaceIfEqual(ctx, u("k", "a"), u("k", "c"), eq)
	require.NoError(t, err)
	assert.True(t, swapped)

	prior, replaced, err := mt.Replace(ctx, u("k", "d"))
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.Equal(t, "c", prior.Value.Name)

	_, replaced, err = mt.Replace(ctx, u("missing", "x"))
	require.NoError(t, err)
	assert.False(t, replaced)

	_, removed, err := mt.RemoveIfEqual(ctx, u("k", "c"), eq)
	require.NoError(t, err)
	assert.False(t, removed)
	_, removed, err = mt.RemoveIfEqual(ctx, u("k", "d"), eq)
	require.NoError(t, err)
	assert.True(t, removed)
}

type failingWriter struct{}

func (failingWriter) OnPut(context.Context, tiercache.Entry[user]) error { return errors.New("down") }
func (failingWriter) OnRemove(context.Context, string, tiercache.Entry[user], bool) error {
	return errors.New("down")
}

func TestMongoTier_WriterGatesMutation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mt := setupTier(t, nil)

	_, err := mt.PutWithWriter(ctx, u("k", "a"), failingWriter{})
	require.Error(t, err)
	ok, err := mt.ContainsKey(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = mt.Put(ctx, u("k", "a"))
	require.NoError(t, err)
	_, _, err = mt.RemoveWithWriter(ctx, "k", failingWriter{})
	require.Error(t, err)
	ok, err = mt.ContainsKey(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMongoTier_ExpiryAndSizes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var offset atomic.Int64
	now := func() time.Time { return time.Now().Add(time.Duration(offset.Load())) }
	mt := setupTier(t, now)

	short := u("short", "x")
	short.TTL = time.Minute
	_, err := mt.Put(ctx, short)
	require.NoError(t, err)

	p := u("p", "pinned")
	p.Pinned = true
	_, err = mt.Put(ctx, p)
	require.NoError(t, err)

	s, err := mt.Sizes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Logical)
	assert.Equal(t, 2, s.OnDisk)
	assert.Equal(t, 1, s.Pinned)
	assert.Positive(t, s.OnDiskBytes)

	offset.Store(int64(2 * time.Minute))
	keys, err := mt.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p"}, keys)

	require.NoError(t, mt.ExpireElements(ctx))
	_, found, err := mt.find(ctx, "short")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMongoTier_AsPassthroughAuthority(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mt := setupTier(t, nil)

	c, err := tiercache.NewPassthrough[user](mt, tiercache.Options[user]{})
	require.NoError(t, err)

	p := u("pinned", "Ada")
	p.Pinned = true
	_, err = c.Put(ctx, p)
	require.NoError(t, err)

	got, ok, err := mt.GetQuiet(ctx, "pinned")
	require.NoError(t, err)
	require.True(t, ok, "a pinning authority keeps pinned entries")
	assert.True(t, got.Pinned)

	// memory over mongo: the durable tier owns the keyspace
	acc := memory.New[user](memory.Config{MaxEntries: 1})
	ad, err := tiercache.NewAcceleratedDurable[user](acc, mt, tiercache.Options[user]{})
	require.NoError(t, err)
	_, err = ad.Put(ctx, u("a", "x"))
	require.NoError(t, err)
	_, err = ad.Put(ctx, u("b", "y"))
	require.NoError(t, err)

	keys, err := ad.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "pinned"}, keys)
}
