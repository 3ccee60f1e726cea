package redis

import (
	"context"
	"errors"

	rd "github.com/go-redis/redis/v9"
	"github.com/zapflow/zapflow/logger"
	"github.com/zapflow/zapflow/model"
	"github.com/zapflow/zapflow/persistence"
	"github.com/zapflow/zapflow/util"
	"go.uber.org/zap"
)

const SESSION_KEY = "SESSION"
const SUBSCRIBER_KEY = "SUBS"

var _ persistence.SessionStore = new(redisSessionStore)

type redisSessionStore struct {
	baseDao
	encoderDecoder util.EncoderDecoder[model.Session]
}

func NewRedisSessionStore(conf Config, encoderDecoder util.EncoderDecoder[model.Session]) *redisSessionStore {
	return &redisSessionStore{
		baseDao:        *newBaseDao(conf),
		encoderDecoder: encoderDecoder,
	}
}

func (rs *redisSessionStore) Get(flowId string, conversationId string) (*model.Session, error) {
	key := rs.getNamespaceKey(SESSION_KEY, flowId, conversationId)
	ctx := context.Background()
	data, err := rs.redisClient.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, nil
		}
		logger.Error("error in getting session", zap.String("flowId", flowId), zap.String("conversationId", conversationId), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rs.encoderDecoder.Decode([]byte(data))
}

// Upsert writes the session only if the stored version still matches the
// version the caller read. WATCH aborts the transaction when a concurrent
// writer got there first; the caller sees SessionConflictError and drops
// its turn, which is how duplicate webhook deliveries collapse into one
// state transition.
func (rs *redisSessionStore) Upsert(session *model.Session) error {
	key := rs.getNamespaceKey(SESSION_KEY, session.FlowId, session.ConversationId)
	ctx := context.Background()
	expected := session.Version

	err := rs.redisClient.Watch(ctx, func(tx *rd.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, rd.Nil) {
			return err
		}
		if err == nil {
			stored, decErr := rs.encoderDecoder.Decode([]byte(current))
			if decErr != nil {
				return decErr
			}
			if stored.Version != expected {
				return persistence.SessionConflictError{FlowId: session.FlowId, ConversationId: session.ConversationId}
			}
		}
		session.Version = expected + 1
		data, err := rs.encoderDecoder.Encode(*session)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
			pipe.Set(ctx, key, string(data), 0)
			return nil
		})
		return err
	}, key)

	if err != nil {
		var conflict persistence.SessionConflictError
		if errors.As(err, &conflict) {
			return conflict
		}
		if errors.Is(err, rd.TxFailedErr) {
			return persistence.SessionConflictError{FlowId: session.FlowId, ConversationId: session.ConversationId}
		}
		logger.Error("error in saving session", zap.String("flowId", session.FlowId), zap.String("conversationId", session.ConversationId), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rs *redisSessionStore) Clear(flowId string, conversationId string) error {
	key := rs.getNamespaceKey(SESSION_KEY, flowId, conversationId)
	ctx := context.Background()
	if err := rs.redisClient.Del(ctx, key).Err(); err != nil {
		logger.Error("error in clearing session", zap.String("flowId", flowId), zap.String("conversationId", conversationId), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rs *redisSessionStore) AddSubscriber(flowId string, conversationId string) error {
	key := rs.getNamespaceKey(SUBSCRIBER_KEY, flowId)
	ctx := context.Background()
	if err := rs.redisClient.SAdd(ctx, key, conversationId).Err(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rs *redisSessionStore) Subscribers(flowId string) ([]string, error) {
	key := rs.getNamespaceKey(SUBSCRIBER_KEY, flowId)
	ctx := context.Background()
	members, err := rs.redisClient.SMembers(ctx, key).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return members, nil
}
