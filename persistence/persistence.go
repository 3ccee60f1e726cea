package persistence

import (
	"fmt"
	"time"

	"github.com/zapflow/zapflow/model"
)

type StorageLayerError struct {
	Message string
}

func (e StorageLayerError) Error() string {
	return fmt.Sprintf("storage layer error %s", e.Message)
}

// SessionConflictError is returned when an Upsert loses the compare-and-swap
// against a concurrent writer. Duplicate webhook deliveries surface here:
// the losing delivery observes a stale version and discards its own work.
type SessionConflictError struct {
	FlowId         string
	ConversationId string
}

func (e SessionConflictError) Error() string {
	return fmt.Sprintf("stale session write for flow %s conversation %s", e.FlowId, e.ConversationId)
}

// Queue names used on the delay queue.
const QUEUE_DELAY = "delay"
const QUEUE_SCHEDULE = "schedule"

// FlowRepository stores flow definitions and bots. Activation is atomic:
// activating a definition deactivates the previously active one of the same
// bot in the same operation.
type FlowRepository interface {
	SaveFlow(flow *model.FlowDefinition) error
	GetFlow(flowId string) (*model.FlowDefinition, error)
	GetActiveFlow(botId string) (*model.FlowDefinition, error)
	ActivateFlow(botId string, flowId string) error
	SaveBot(bot *model.Bot) error
	GetBot(botId string) (*model.Bot, error)
}

// SessionStore is the durable per-conversation state. Get returns (nil, nil)
// for a fresh conversation. Upsert performs a compare-and-swap on the
// session Version and fails with SessionConflictError when stale.
type SessionStore interface {
	Get(flowId string, conversationId string) (*model.Session, error)
	Upsert(session *model.Session) error
	Clear(flowId string, conversationId string) error
	AddSubscriber(flowId string, conversationId string) error
	Subscribers(flowId string) ([]string, error)
}

// DelayQueue parks serialized resume records until their due time.
type DelayQueue interface {
	Push(queueName string, message []byte) error
	PushWithDelay(queueName string, delay time.Duration, message []byte) error
	Pop(queueName string) ([]string, error)
}

// ResumeRecord is the delay-queue payload for a suspended conversation.
type ResumeRecord struct {
	FlowId         string `json:"flowId"`
	BotId          string `json:"botId"`
	ConversationId string `json:"conversationId"`
	NodeId         string `json:"nodeId"`
}

// ScheduleRecord is the delay-queue payload for a schedule node tick.
type ScheduleRecord struct {
	FlowId string `json:"flowId"`
	BotId  string `json:"botId"`
	NodeId string `json:"nodeId"`
}
