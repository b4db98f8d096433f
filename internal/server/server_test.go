package server_test

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternalApril/firefly/internal/config"
	"github.com/eternalApril/firefly/internal/expiry"
	"github.com/eternalApril/firefly/internal/logger"
	"github.com/eternalApril/firefly/internal/resp"
	"github.com/eternalApril/firefly/internal/server"
	"github.com/eternalApril/firefly/internal/storage"
)

// startServer boots a full in-process server on a random port and returns a
// connected client.
func startServer(t *testing.T) *redis.Client {
	t.Helper()

	store := storage.NewKeyspace()
	mgr := expiry.NewManager(store, 20)
	store.SetExpiryIndex(mgr)

	cfg := &config.Config{
		GC:       config.GCConfig{Enabled: true, Interval: 10 * time.Millisecond, SampleSize: 20},
		Snapshot: config.SnapshotConfig{Enabled: false},
	}
	log := logger.New("error", "console")
	eng := server.NewEngine(store, mgr, cfg, log)

	srv := server.NewServer(eng, resp.DefaultLimits(), log)
	require.NoError(t, srv.Start("127.0.0.1:0"))

	client := redis.NewClient(&redis.Options{
		Addr:             srv.Addr(),
		Protocol:         2,
		DisableIndentity: true,
	})

	t.Cleanup(func() {
		client.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx) //nolint:errcheck
	})
	return client
}

func TestEndToEndStrings(t *testing.T) {
	rdb := startServer(t)
	ctx := context.Background()

	require.NoError(t, rdb.Set(ctx, "greeting", "hello", 0).Err())

	val, err := rdb.Get(ctx, "greeting").Result()
	require.NoError(t, err)
	assert.Equal(t, "hello", val)

	_, err = rdb.Get(ctx, "missing").Result()
	assert.ErrorIs(t, err, redis.Nil)

	n, err := rdb.Incr(ctx, "counter").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = rdb.IncrBy(ctx, "counter", 41).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	removed, err := rdb.Del(ctx, "greeting", "counter", "missing").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
}

func TestEndToEndExpiry(t *testing.T) {
	rdb := startServer(t)
	ctx := context.Background()

	require.NoError(t, rdb.Set(ctx, "volatile", "v", 30*time.Second).Err())

	ttl, err := rdb.TTL(ctx, "volatile").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 29*time.Second)
	assert.LessOrEqual(t, ttl, 30*time.Second)

	require.NoError(t, rdb.Persist(ctx, "volatile").Err())
	ttl, err = rdb.TTL(ctx, "volatile").Result()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl)

	// A deadline short enough for the active sweeper to hit during the test.
	require.NoError(t, rdb.Set(ctx, "gone", "v", 20*time.Millisecond).Err())
	assert.Eventually(t, func() bool {
		_, err := rdb.Get(ctx, "gone").Result()
		return err == redis.Nil
	}, time.Second, 10*time.Millisecond)
}

func TestEndToEndHashes(t *testing.T) {
	rdb := startServer(t)
	ctx := context.Background()

	added, err := rdb.HSet(ctx, "h", "f1", "v1", "f2", "v2").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), added)

	all, err := rdb.HGetAll(ctx, "h").Result()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"f1": "v1", "f2": "v2"}, all)
}

func TestEndToEndTransaction(t *testing.T) {
	rdb := startServer(t)
	ctx := context.Background()

	pipe := rdb.TxPipeline()
	pipe.Set(ctx, "a", "1", 0)
	incr := pipe.Incr(ctx, "a")
	_, err := pipe.Exec(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), incr.Val())

	val, err := rdb.Get(ctx, "a").Result()
	require.NoError(t, err)
	assert.Equal(t, "2", val)
}

func TestEndToEndWatchConflict(t *testing.T) {
	rdb := startServer(t)
	ctx := context.Background()

	require.NoError(t, rdb.Set(ctx, "balance", "100", 0).Err())

	// The watcher's transaction must fail because a competing client writes
	// the key between WATCH and EXEC.
	err := rdb.Watch(ctx, func(tx *redis.Tx) error {
		if err := tx.Get(ctx, "balance").Err(); err != nil {
			return err
		}

		other := redis.NewClient(&redis.Options{
			Addr:             rdb.Options().Addr,
			Protocol:         2,
			DisableIndentity: true,
		})
		defer other.Close()
		if err := other.Set(ctx, "balance", "0", 0).Err(); err != nil {
			return err
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, "balance", "50", 0)
			return nil
		})
		return err
	}, "balance")
	assert.ErrorIs(t, err, redis.TxFailedErr)

	val, err := rdb.Get(ctx, "balance").Result()
	require.NoError(t, err)
	assert.Equal(t, "0", val, "the competing write must win")
}

func TestEndToEndPipelining(t *testing.T) {
	rdb := startServer(t)
	ctx := context.Background()

	count := 1_000
	pipe := rdb.Pipeline()
	for i := 0; i < count; i++ {
		pipe.Set(ctx, fmt.Sprintf("pipe_key_%d", i), fmt.Sprintf("val_%d", i), 0)
	}
	gets := make([]*redis.StringCmd, count)
	for i := 0; i < count; i++ {
		gets[i] = pipe.Get(ctx, fmt.Sprintf("pipe_key_%d", i))
	}

	_, err := pipe.Exec(ctx)
	require.NoError(t, err)

	for i := 0; i < count; i++ {
		val, err := gets[i].Result()
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("val_%d", i), val)
	}
}

func TestEndToEndReplyNotHeldByPartialFrame(t *testing.T) {
	rdb := startServer(t)

	conn, err := net.Dial("tcp", rdb.Options().Addr)
	require.NoError(t, err)
	defer conn.Close()

	// One complete command followed by the opening bytes of the next
	// frame: the reply must arrive even though the second frame is
	// unfinished.
	_, err = conn.Write([]byte("*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPI"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "+PONG\r\n", string(buf[:n]))

	// Completing the frame yields its reply too.
	_, err = conn.Write([]byte("NG\r\n"))
	require.NoError(t, err)
	n, err = conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "+PONG\r\n", string(buf[:n]))
}

func TestShutdownForcesIdleConnections(t *testing.T) {
	store := storage.NewKeyspace()
	mgr := expiry.NewManager(store, 20)
	store.SetExpiryIndex(mgr)

	snapPath := filepath.Join(t.TempDir(), "dump.fdb")
	cfg := &config.Config{
		GC:       config.GCConfig{Enabled: false},
		Snapshot: config.SnapshotConfig{Enabled: true, Filename: snapPath},
	}
	log := logger.New("error", "console")
	eng := server.NewEngine(store, mgr, cfg, log)
	srv := server.NewServer(eng, resp.DefaultLimits(), log)
	require.NoError(t, srv.Start("127.0.0.1:0"))

	// Park a client in the server's blocking read.
	conn, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("PING\r\n"))
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 16)
	_, err = conn.Read(buf)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Shutdown(ctx) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not return after its deadline")
	}

	// The idle connection was closed out from under the client.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, err = conn.Read(buf)
	assert.Error(t, err)

	// The final snapshot still happens on the forced path.
	_, err = os.Stat(snapPath)
	assert.NoError(t, err)
}

func TestEndToEndProtocolErrorClosesConnection(t *testing.T) {
	rdb := startServer(t)
	addr := rdb.Options().Addr

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("*abc\r\n"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "ERR protocol error")

	// After the error reply the server closes the connection.
	_, err = conn.Read(buf)
	assert.Error(t, err)
}
