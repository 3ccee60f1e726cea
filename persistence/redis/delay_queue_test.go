package redis

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDelayQueue(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	for scenario, fn := range map[string]func(
		t *testing.T, queue *redisDelayQueue,
	){
		"test simple push":     testPushPop,
		"test push with delay": testPushPopDelay,
	} {
		t.Run(scenario, func(t *testing.T) {
			conf := &Config{
				Addrs:     []string{addr},
				Namespace: "test",
			}
			queue := NewRedisDelayQueue(*conf)

			fn(t, queue)
		})
	}
}

func testPushPop(t *testing.T, queue *redisDelayQueue) {
	err := queue.Push("test-delay", []byte("test_msg1"))
	require.NoError(t, err)
	time.Sleep(1 * time.Second)

	res, err := queue.Pop("test-delay")
	require.NoError(t, err)
	require.Equal(t, "test_msg1", res[0])

	res, err = queue.Pop("test-delay")
	require.NoError(t, err)
	require.Empty(t, res)
}

func testPushPopDelay(t *testing.T, queue *redisDelayQueue) {
	err := queue.PushWithDelay("test-delay", 3*time.Second, []byte("test_msg2"))
	require.NoError(t, err)

	time.Sleep(1 * time.Second)
	res, err := queue.Pop("test-delay")
	require.NoError(t, err)
	require.Empty(t, res)

	time.Sleep(3 * time.Second)
	res, err = queue.Pop("test-delay")
	require.NoError(t, err)
	require.Equal(t, "test_msg2", res[0])
}
