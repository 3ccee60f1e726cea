package service

import (
	"context"
	"time"

	"github.com/zapflow/zapflow/analytics"
	"github.com/zapflow/zapflow/channel"
	"github.com/zapflow/zapflow/logger"
	"github.com/zapflow/zapflow/model"
	"go.uber.org/zap"
)

// nowFunc is swapped in tests that assert on delay scheduling.
var nowFunc = time.Now

// adapterSink bridges the walker to one conversation's channel adapter.
// Send failures are logged and swallowed: a dead chat API must not stall
// the state machine, and the session still advances past the failed send.
type adapterSink struct {
	service        *ExecutionService
	adapter        channel.Adapter
	bot            *model.Bot
	flow           *model.FlowDefinition
	conversationId string
}

func (s *adapterSink) Send(ctx context.Context, action model.Action) {
	if _, err := s.adapter.Send(ctx, action, s.conversationId); err != nil {
		logger.Error("send failed",
			zap.String("botId", s.bot.Id),
			zap.String("conversationId", s.conversationId),
			zap.String("platform", string(s.bot.Platform)),
			zap.Error(err))
		return
	}
	if text, nodeType, ok := loggableText(action); ok {
		s.service.messageLog.Append(s.bot.Id, s.flow.Id, s.conversationId, analytics.DIRECTION_OUT, text, nodeType)
	}
}

func loggableText(action model.Action) (string, string, bool) {
	switch a := action.(type) {
	case model.SendText:
		return a.Text, string(model.NODE_TYPE_MESSAGE), true
	case model.SendButtons:
		return a.Text, string(model.NODE_TYPE_BUTTON_REPLY), true
	case model.EditMessage:
		return a.Text, string(model.NODE_TYPE_EDIT_MESSAGE), true
	}
	return "", "", false
}
