package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisStreamsRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := NewRedisStreams(newRedis(t), RedisOptions{Block: 50 * time.Millisecond})

	src, err := b.Subscribe(ctx, "propagator", "product.transferred")
	require.NoError(t, err)

	msg, err := NewMessage("product.transferred", "5", map[string]int64{"product_id": 5})
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, msg))

	got, err := src.Receive(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, msg.ID, got[0].Message.ID)
	assert.JSONEq(t, `{"product_id":5}`, string(got[0].Message.Body))
	require.NoError(t, src.Ack(ctx, got[0]))

	// пусто: блок истекает без ошибки
	got, err = src.Receive(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisStreamsRedeliversUnackedAfterRestart(t *testing.T) {
	ctx := context.Background()
	rdb := newRedis(t)
	opts := RedisOptions{Block: 50 * time.Millisecond, Consumer: "node-a"}

	first, err := NewRedisStreams(rdb, opts).Subscribe(ctx, "propagator", "product.transferred")
	require.NoError(t, err)

	msg, err := NewMessage("product.transferred", "5", struct{}{})
	require.NoError(t, err)
	require.NoError(t, NewRedisStreams(rdb, opts).Publish(ctx, msg))

	got, err := first.Receive(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	// не подтверждаем: процесс упал посреди обработки

	// новый процесс с тем же именем консьюмера
	restarted, err := NewRedisStreams(rdb, opts).Subscribe(ctx, "propagator", "product.transferred")
	require.NoError(t, err)

	again, err := restarted.Receive(ctx)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, msg.ID, again[0].Message.ID)
	require.NoError(t, restarted.Ack(ctx, again[0]))

	empty, err := restarted.Receive(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRedisStreamsClaimsFromDeadConsumer(t *testing.T) {
	ctx := context.Background()
	rdb := newRedis(t)

	dead, err := NewRedisStreams(rdb, RedisOptions{Block: 50 * time.Millisecond, Consumer: "node-a"}).
		Subscribe(ctx, "propagator", "product.transferred")
	require.NoError(t, err)

	msg, err := NewMessage("product.transferred", "5", struct{}{})
	require.NoError(t, err)
	require.NoError(t, NewRedisStreams(rdb, RedisOptions{}).Publish(ctx, msg))

	got, err := dead.Receive(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// узел с другим именем забирает то, что висит дольше порога
	live, err := NewRedisStreams(rdb, RedisOptions{
		Block:     50 * time.Millisecond,
		Consumer:  "node-b",
		ClaimIdle: 20 * time.Millisecond,
	}).Subscribe(ctx, "propagator", "product.transferred")
	require.NoError(t, err)

	var claimed []Delivery
	require.Eventually(t, func() bool {
		claimed, err = live.Receive(ctx)
		return err == nil && len(claimed) == 1
	}, 2*time.Second, 30*time.Millisecond)
	assert.Equal(t, msg.ID, claimed[0].Message.ID)
	require.NoError(t, live.Ack(ctx, claimed[0]))

	// упавший узел после подъема ничего не получает повторно
	back, err := NewRedisStreams(rdb, RedisOptions{Block: 50 * time.Millisecond, Consumer: "node-a", ClaimIdle: time.Hour}).
		Subscribe(ctx, "propagator", "product.transferred")
	require.NoError(t, err)
	none, err := back.Receive(ctx)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRedisStreamsKeepsFreshForeignPending(t *testing.T) {
	ctx := context.Background()
	rdb := newRedis(t)

	busy, err := NewRedisStreams(rdb, RedisOptions{Block: 50 * time.Millisecond, Consumer: "node-a"}).
		Subscribe(ctx, "propagator", "product.transferred")
	require.NoError(t, err)
	msg, err := NewMessage("product.transferred", "5", struct{}{})
	require.NoError(t, err)
	require.NoError(t, NewRedisStreams(rdb, RedisOptions{}).Publish(ctx, msg))
	got, err := busy.Receive(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// живой сосед еще обрабатывает: порог не истек
	other, err := NewRedisStreams(rdb, RedisOptions{Block: 50 * time.Millisecond, Consumer: "node-b", ClaimIdle: time.Hour}).
		Subscribe(ctx, "propagator", "product.transferred")
	require.NoError(t, err)
	none, err := other.Receive(ctx)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRedisStreamsSubscribeTwice(t *testing.T) {
	ctx := context.Background()
	b := NewRedisStreams(newRedis(t), RedisOptions{Block: 10 * time.Millisecond})

	_, err := b.Subscribe(ctx, "g", "a.created")
	require.NoError(t, err)
	_, err = b.Subscribe(ctx, "g", "a.created")
	require.NoError(t, err, "existing group must be reused")
}
