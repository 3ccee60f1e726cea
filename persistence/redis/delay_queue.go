package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	rd "github.com/go-redis/redis/v9"
	"github.com/zapflow/zapflow/logger"
	"github.com/zapflow/zapflow/persistence"
	"go.uber.org/zap"
)

type redisDelayQueue struct {
	baseDao
}

var _ persistence.DelayQueue = new(redisDelayQueue)

func NewRedisDelayQueue(conf Config) *redisDelayQueue {
	return &redisDelayQueue{
		baseDao: *newBaseDao(conf),
	}
}

func (rq *redisDelayQueue) Push(queueName string, message []byte) error {
	return rq.PushWithDelay(queueName, 0, message)
}

// PushWithDelay scores the member with its due time so Pop can take
// everything that has matured with a single range query.
func (rq *redisDelayQueue) PushWithDelay(queueName string, delay time.Duration, message []byte) error {
	key := rq.getNamespaceKey(queueName)
	ctx := context.Background()
	dueTime := time.Now().Add(delay).UnixMilli()
	member := rd.Z{
		Score:  float64(dueTime),
		Member: message,
	}
	if err := rq.redisClient.ZAdd(ctx, key, member).Err(); err != nil {
		logger.Error("error while push to delay queue", zap.String("queue", key), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

// Pop removes and returns every entry whose due time has passed. Read and
// remove run in one pipeline against the same score window.
func (rq *redisDelayQueue) Pop(queueName string) ([]string, error) {
	key := rq.getNamespaceKey(queueName)
	ctx := context.Background()
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	pipe := rq.redisClient.Pipeline()

	zr := pipe.ZRangeByScore(ctx, key, &rd.ZRangeBy{
		Min: "0",
		Max: now,
	})
	pipe.ZRemRangeByScore(ctx, key, "0", now)

	if _, err := pipe.Exec(ctx); err != nil {
		logger.Error("error while pop from delay queue", zap.String("queue", key), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}

	res, err := zr.Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return []string{}, nil
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return res, nil
}
