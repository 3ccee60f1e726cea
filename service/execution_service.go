package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/zapflow/zapflow/analytics"
	"github.com/zapflow/zapflow/cache"
	"github.com/zapflow/zapflow/channel"
	"github.com/zapflow/zapflow/config"
	"github.com/zapflow/zapflow/engine"
	"github.com/zapflow/zapflow/logger"
	"github.com/zapflow/zapflow/model"
	"github.com/zapflow/zapflow/persistence"
	"go.uber.org/zap"
)

// webhookConversation is the sentinel conversation id used when a
// webhook-node call enters a flow with no chat conversation attached.
const webhookConversation = "0"

// lockStripes bounds the conversation lock set. Colliding conversations
// share a stripe and serialize against each other, which is harmless.
const lockStripes = 64

// ExecutionService processes one trigger event end to end: load the bot
// and its active flow, serialize on the conversation, run the walker,
// dispatch actions through the channel adapter and persist the session.
type ExecutionService struct {
	conf       config.Config
	flows      persistence.FlowRepository
	sessions   persistence.SessionStore
	delayQueue persistence.DelayQueue
	executor   *engine.Executor
	flowCache  *cache.FlowCache
	messageLog *analytics.MessageLog

	mu       sync.Mutex
	locks    [lockStripes]sync.Mutex
	adapters map[string]channel.Adapter
}

func NewExecutionService(
	conf config.Config,
	flows persistence.FlowRepository,
	sessions persistence.SessionStore,
	delayQueue persistence.DelayQueue,
	executor *engine.Executor,
	messageLog *analytics.MessageLog,
) *ExecutionService {
	return &ExecutionService{
		conf:       conf,
		flows:      flows,
		sessions:   sessions,
		delayQueue: delayQueue,
		executor:   executor,
		flowCache:  cache.NewFlowCache(),
		messageLog: messageLog,
		adapters:   make(map[string]channel.Adapter),
	}
}

// conversationLock serializes the read-modify-write cycle of one
// conversation inside this process. The session CAS still guards against
// other instances; this lock keeps the common single-instance case from
// burning CAS retries on every duplicate delivery. Striping keeps the
// lock set at a fixed size no matter how many conversations pass through.
func (s *ExecutionService) conversationLock(flowId string, conversationId string) *sync.Mutex {
	stripe := xxhash.Sum64String(flowId+":"+conversationId) % lockStripes
	return &s.locks[stripe]
}

// ProcessTrigger handles a normalized inbound chat event. Internal errors
// are logged and swallowed so ingress can always answer 200: platform
// webhooks retry aggressively on anything else.
func (s *ExecutionService) ProcessTrigger(ctx context.Context, botId string, conversationId string, trigger model.TriggerEvent) {
	flow, bot, err := s.activeFlow(botId)
	if err != nil {
		logger.Info("no active flow for bot", zap.String("botId", botId), zap.Error(err))
		return
	}
	adapter, err := s.adapterFor(bot)
	if err != nil {
		logger.Error("bot credentials not configured", zap.String("botId", botId), zap.Error(err))
		return
	}

	if trigger.Type == model.TRIGGER_MESSAGE || trigger.Type == model.TRIGGER_BUTTON {
		if err := s.sessions.AddSubscriber(flow.Id, conversationId); err != nil {
			logger.Warn("could not record subscriber", zap.String("flowId", flow.Id), zap.Error(err))
		}
		s.messageLog.Append(botId, flow.Id, conversationId, analytics.DIRECTION_IN, trigger.Text, "")
	}

	s.execute(ctx, bot, flow, adapter, conversationId, trigger)
}

// ResumeDelayed re-enters a conversation parked on a delay node.
func (s *ExecutionService) ResumeDelayed(ctx context.Context, rec persistence.ResumeRecord) {
	flow, bot, err := s.activeFlow(rec.BotId)
	if err != nil || flow.Id != rec.FlowId {
		// flow was swapped while the conversation slept; drop the resume
		logger.Info("dropping resume for inactive flow", zap.String("flowId", rec.FlowId), zap.String("botId", rec.BotId))
		s.clearSession(rec.FlowId, rec.ConversationId)
		return
	}
	adapter, err := s.adapterFor(bot)
	if err != nil {
		logger.Error("bot credentials not configured", zap.String("botId", rec.BotId), zap.Error(err))
		return
	}
	trigger := model.TriggerEvent{Type: model.TRIGGER_RESUME, NodeId: rec.NodeId}
	s.execute(ctx, bot, flow, adapter, rec.ConversationId, trigger)
}

// RunSchedule fires a schedule node for every subscribed conversation.
func (s *ExecutionService) RunSchedule(ctx context.Context, rec persistence.ScheduleRecord) {
	flow, bot, err := s.activeFlow(rec.BotId)
	if err != nil || flow.Id != rec.FlowId {
		logger.Info("dropping schedule tick for inactive flow", zap.String("flowId", rec.FlowId))
		return
	}
	adapter, err := s.adapterFor(bot)
	if err != nil {
		logger.Error("bot credentials not configured", zap.String("botId", rec.BotId), zap.Error(err))
		return
	}
	subscribers, err := s.sessions.Subscribers(flow.Id)
	if err != nil {
		logger.Error("could not list subscribers", zap.String("flowId", flow.Id), zap.Error(err))
		return
	}
	trigger := model.TriggerEvent{Type: model.TRIGGER_SCHEDULE, NodeId: rec.NodeId}
	for _, conversationId := range subscribers {
		s.execute(ctx, bot, flow, adapter, conversationId, trigger)
	}
	s.rescheduleNext(flow, rec)
}

// TriggerWebhookNode enters a flow at a webhook node with the flattened
// payload merged into variables. Returns the variable keys it set.
func (s *ExecutionService) TriggerWebhookNode(ctx context.Context, flowId string, nodeId string, payload []byte) ([]string, error) {
	flow, err := s.flows.GetFlow(flowId)
	if err != nil {
		return nil, err
	}
	if !flow.Active {
		if active, activeErr := s.flows.GetActiveFlow(flow.BotId); activeErr != nil || active.Id != flow.Id {
			return nil, fmt.Errorf("flow %s is not active", flowId)
		}
	}
	node := flow.NodeById(nodeId)
	if node == nil || node.Type != model.NODE_TYPE_WEBHOOK {
		return nil, fmt.Errorf("webhook node %s not found in flow %s", nodeId, flowId)
	}
	data := node.Data.(*model.WebhookData)
	prefix := data.WebhookSaveVariable
	if prefix == "" {
		prefix = "webhook"
	}
	variables, err := engine.FlattenPayload(prefix, payload)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}

	bot, err := s.flows.GetBot(flow.BotId)
	if err != nil {
		return nil, err
	}
	adapter, err := s.adapterFor(bot)
	if err != nil {
		return nil, err
	}
	trigger := model.TriggerEvent{Type: model.TRIGGER_WEBHOOK, NodeId: nodeId, Variables: variables}
	s.execute(ctx, bot, flow, adapter, webhookConversation, trigger)

	keys := make([]string, 0, len(variables))
	for k := range variables {
		keys = append(keys, k)
	}
	return keys, nil
}

// execute runs one walker invocation under the conversation lock and
// persists the outcome atomically: either the full updated session or
// nothing.
func (s *ExecutionService) execute(ctx context.Context, bot *model.Bot, flow *model.FlowDefinition, adapter channel.Adapter, conversationId string, trigger model.TriggerEvent) {
	lock := s.conversationLock(flow.Id, conversationId)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.sessions.Get(flow.Id, conversationId)
	if err != nil {
		logger.Error("could not load session", zap.String("flowId", flow.Id), zap.String("conversationId", conversationId), zap.Error(err))
		return
	}

	sink := &adapterSink{
		service:        s,
		adapter:        adapter,
		bot:            bot,
		flow:           flow,
		conversationId: conversationId,
	}
	result, err := s.executor.Execute(ctx, engine.Request{
		Flow:           flow,
		ConversationId: conversationId,
		Session:        session,
		Trigger:        trigger,
		Greetings:      greetingsFor(bot.Platform),
	}, sink)
	if err != nil {
		// graph errors leave the stored session untouched
		logger.Error("traversal aborted", zap.String("flowId", flow.Id), zap.String("conversationId", conversationId), zap.Error(err))
		return
	}
	if result.Dropped {
		if result.ClearSession {
			s.clearSession(flow.Id, conversationId)
		}
		return
	}

	if result.ClearSession {
		s.clearSession(flow.Id, conversationId)
	} else if err := s.sessions.Upsert(result.Session); err != nil {
		var conflict persistence.SessionConflictError
		if errors.As(err, &conflict) {
			logger.Info("discarding losing concurrent turn", zap.String("flowId", flow.Id), zap.String("conversationId", conversationId))
		} else {
			logger.Error("could not persist session", zap.String("flowId", flow.Id), zap.String("conversationId", conversationId), zap.Error(err))
		}
		return
	}

	if result.Suspension != nil {
		s.scheduleResume(bot, flow, conversationId, result)
	}
}

func (s *ExecutionService) scheduleResume(bot *model.Bot, flow *model.FlowDefinition, conversationId string, result *engine.Result) {
	rec := persistence.ResumeRecord{
		FlowId:         flow.Id,
		BotId:          bot.Id,
		ConversationId: conversationId,
		NodeId:         result.Suspension.NodeId,
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		logger.Error("could not encode resume record", zap.Error(err))
		return
	}
	delay := result.Suspension.ResumeAt.Sub(nowFunc())
	if err := s.delayQueue.PushWithDelay(persistence.QUEUE_DELAY, delay, payload); err != nil {
		logger.Error("could not schedule delay resume", zap.String("flowId", flow.Id), zap.String("conversationId", conversationId), zap.Error(err))
	}
}

func (s *ExecutionService) clearSession(flowId string, conversationId string) {
	if err := s.sessions.Clear(flowId, conversationId); err != nil {
		logger.Error("could not clear session", zap.String("flowId", flowId), zap.String("conversationId", conversationId), zap.Error(err))
	}
}

func (s *ExecutionService) activeFlow(botId string) (*model.FlowDefinition, *model.Bot, error) {
	if flow, bot, ok := s.flowCache.Get(botId); ok {
		return flow, bot, nil
	}
	bot, err := s.flows.GetBot(botId)
	if err != nil {
		return nil, nil, err
	}
	flow, err := s.flows.GetActiveFlow(botId)
	if err != nil {
		return nil, nil, err
	}
	s.flowCache.Put(botId, flow, bot)
	return flow, bot, nil
}

// InvalidateFlow drops the cached active flow after an activation.
func (s *ExecutionService) InvalidateFlow(botId string) {
	s.flowCache.Invalidate(botId)
}

func (s *ExecutionService) adapterFor(bot *model.Bot) (channel.Adapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if adapter, ok := s.adapters[bot.Id]; ok {
		return adapter, nil
	}
	adapter, err := buildAdapter(bot, s.conf)
	if err != nil {
		return nil, err
	}
	s.adapters[bot.Id] = adapter
	return adapter, nil
}

// RegisterAdapter pre-binds an adapter for a bot. Tests use it to plug in
// a recording adapter.
func (s *ExecutionService) RegisterAdapter(botId string, adapter channel.Adapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adapters[botId] = adapter
}

func buildAdapter(bot *model.Bot, conf config.Config) (channel.Adapter, error) {
	switch bot.Platform {
	case model.PLATFORM_TELEGRAM:
		if bot.TelegramToken == "" {
			return nil, fmt.Errorf("bot %s has no telegram token", bot.Id)
		}
		return channel.NewTelegramAdapter(bot.TelegramToken, conf.SendTimeout), nil
	case model.PLATFORM_WHATSAPP:
		if bot.WaPhoneNumberId == "" || bot.WaAccessToken == "" {
			return nil, fmt.Errorf("bot %s has no whatsapp credentials", bot.Id)
		}
		return channel.NewWhatsAppAdapter(bot.WaPhoneNumberId, bot.WaAccessToken, conf.SendTimeout), nil
	case model.PLATFORM_DISCORD:
		if bot.DiscordToken == "" {
			return nil, fmt.Errorf("bot %s has no discord token", bot.Id)
		}
		return channel.NewDiscordAdapter(bot.DiscordToken, conf.SendTimeout), nil
	}
	return nil, fmt.Errorf("unknown platform %s for bot %s", bot.Platform, bot.Id)
}

// AnswerTelegramCallback acknowledges a Telegram button click before the
// traversal runs.
func (s *ExecutionService) AnswerTelegramCallback(ctx context.Context, botId string, callbackQueryId string) {
	_, bot, err := s.activeFlow(botId)
	if err != nil {
		return
	}
	adapter, err := s.adapterFor(bot)
	if err != nil {
		return
	}
	if tg, ok := adapter.(*channel.TelegramAdapter); ok {
		if err := tg.AnswerCallbackQuery(ctx, callbackQueryId); err != nil {
			logger.Warn("could not answer callback query", zap.String("botId", botId), zap.Error(err))
		}
	}
}

// RegisterTelegramWebhook points a Telegram bot at this server's ingress.
func (s *ExecutionService) RegisterTelegramWebhook(ctx context.Context, botId string, webhookUrl string) error {
	bot, err := s.flows.GetBot(botId)
	if err != nil {
		return err
	}
	adapter, err := s.adapterFor(bot)
	if err != nil {
		return err
	}
	tg, ok := adapter.(*channel.TelegramAdapter)
	if !ok {
		return fmt.Errorf("bot %s is not a telegram bot", botId)
	}
	return tg.RegisterWebhook(ctx, webhookUrl)
}

func greetingsFor(platform model.Platform) []string {
	if platform == model.PLATFORM_WHATSAPP {
		return []string{"oi", "olá", "ola", "menu"}
	}
	return nil
}
