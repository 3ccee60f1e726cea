package redis

import (
	"context"
	"errors"
	"fmt"

	rd "github.com/go-redis/redis/v9"
	"github.com/zapflow/zapflow/logger"
	"github.com/zapflow/zapflow/model"
	"github.com/zapflow/zapflow/persistence"
	"github.com/zapflow/zapflow/util"
	"go.uber.org/zap"
)

const FLOW_KEY = "FLOW"
const BOT_KEY = "BOT"
const ACTIVE_FLOW_KEY = "ACTIVEFLOW"

var _ persistence.FlowRepository = new(redisFlowRepository)

type redisFlowRepository struct {
	baseDao
	flowEncDec util.EncoderDecoder[model.FlowDefinition]
	botEncDec  util.EncoderDecoder[model.Bot]
}

func NewRedisFlowRepository(conf Config, flowEncDec util.EncoderDecoder[model.FlowDefinition], botEncDec util.EncoderDecoder[model.Bot]) *redisFlowRepository {
	return &redisFlowRepository{
		baseDao:    *newBaseDao(conf),
		flowEncDec: flowEncDec,
		botEncDec:  botEncDec,
	}
}

func (rf *redisFlowRepository) SaveFlow(flow *model.FlowDefinition) error {
	key := rf.getNamespaceKey(FLOW_KEY)
	ctx := context.Background()
	data, err := rf.flowEncDec.Encode(*flow)
	if err != nil {
		return err
	}
	if err := rf.redisClient.HSet(ctx, key, flow.Id, string(data)).Err(); err != nil {
		logger.Error("error in saving flow definition", zap.String("flowId", flow.Id), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rf *redisFlowRepository) GetFlow(flowId string) (*model.FlowDefinition, error) {
	key := rf.getNamespaceKey(FLOW_KEY)
	ctx := context.Background()
	data, err := rf.redisClient.HGet(ctx, key, flowId).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, fmt.Errorf("flow %s not found", flowId)
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rf.flowEncDec.Decode([]byte(data))
}

func (rf *redisFlowRepository) GetActiveFlow(botId string) (*model.FlowDefinition, error) {
	pointerKey := rf.getNamespaceKey(ACTIVE_FLOW_KEY, botId)
	ctx := context.Background()
	flowId, err := rf.redisClient.Get(ctx, pointerKey).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, fmt.Errorf("no active flow for bot %s", botId)
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	flow, err := rf.GetFlow(flowId)
	if err != nil {
		return nil, err
	}
	flow.Active = true
	return flow, nil
}

// ActivateFlow repoints the bot's active-flow pointer and flips the Active
// flags of both definitions in one transaction, so two definitions of the
// same bot are never concurrently active.
func (rf *redisFlowRepository) ActivateFlow(botId string, flowId string) error {
	ctx := context.Background()
	newFlow, err := rf.GetFlow(flowId)
	if err != nil {
		return err
	}
	if newFlow.BotId != botId {
		return fmt.Errorf("flow %s does not belong to bot %s", flowId, botId)
	}

	pointerKey := rf.getNamespaceKey(ACTIVE_FLOW_KEY, botId)
	flowKey := rf.getNamespaceKey(FLOW_KEY)

	previousId, err := rf.redisClient.Get(ctx, pointerKey).Result()
	if err != nil && !errors.Is(err, rd.Nil) {
		return persistence.StorageLayerError{Message: err.Error()}
	}

	_, err = rf.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		if previousId != "" && previousId != flowId {
			previous, err := rf.GetFlow(previousId)
			if err == nil {
				previous.Active = false
				if data, encErr := rf.flowEncDec.Encode(*previous); encErr == nil {
					pipe.HSet(ctx, flowKey, previous.Id, string(data))
				}
			}
		}
		newFlow.Active = true
		data, err := rf.flowEncDec.Encode(*newFlow)
		if err != nil {
			return err
		}
		pipe.HSet(ctx, flowKey, newFlow.Id, string(data))
		pipe.Set(ctx, pointerKey, newFlow.Id, 0)
		return nil
	})
	if err != nil {
		logger.Error("error in activating flow", zap.String("botId", botId), zap.String("flowId", flowId), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rf *redisFlowRepository) SaveBot(bot *model.Bot) error {
	key := rf.getNamespaceKey(BOT_KEY)
	ctx := context.Background()
	data, err := rf.botEncDec.Encode(*bot)
	if err != nil {
		return err
	}
	if err := rf.redisClient.HSet(ctx, key, bot.Id, string(data)).Err(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rf *redisFlowRepository) GetBot(botId string) (*model.Bot, error) {
	key := rf.getNamespaceKey(BOT_KEY)
	ctx := context.Background()
	data, err := rf.redisClient.HGet(ctx, key, botId).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, fmt.Errorf("bot %s not found", botId)
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rf.botEncDec.Decode([]byte(data))
}
