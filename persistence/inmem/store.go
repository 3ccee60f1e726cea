package inmem

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zapflow/zapflow/model"
	"github.com/zapflow/zapflow/persistence"
)

// Store is a single-process implementation of every persistence contract.
// It backs --storage-impl=memory and the engine/service tests. The session
// CAS honors the same version semantics as the redis store, so duplicate
// delivery tests run against it unchanged.
type Store struct {
	mu          sync.Mutex
	flows       map[string]model.FlowDefinition
	activeFlows map[string]string
	bots        map[string]model.Bot
	sessions    map[string]model.Session
	subscribers map[string]map[string]struct{}
	queues      map[string][]queueEntry
}

type queueEntry struct {
	dueTime time.Time
	message string
}

var _ persistence.FlowRepository = new(Store)
var _ persistence.SessionStore = new(Store)
var _ persistence.DelayQueue = new(Store)

func NewStore() *Store {
	return &Store{
		flows:       make(map[string]model.FlowDefinition),
		activeFlows: make(map[string]string),
		bots:        make(map[string]model.Bot),
		sessions:    make(map[string]model.Session),
		subscribers: make(map[string]map[string]struct{}),
		queues:      make(map[string][]queueEntry),
	}
}

func sessionKey(flowId string, conversationId string) string {
	return flowId + ":" + conversationId
}

func (s *Store) SaveFlow(flow *model.FlowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[flow.Id] = *flow
	return nil
}

func (s *Store) GetFlow(flowId string) (*model.FlowDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flow, ok := s.flows[flowId]
	if !ok {
		return nil, fmt.Errorf("flow %s not found", flowId)
	}
	return &flow, nil
}

func (s *Store) GetActiveFlow(botId string) (*model.FlowDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flowId, ok := s.activeFlows[botId]
	if !ok {
		return nil, fmt.Errorf("no active flow for bot %s", botId)
	}
	flow := s.flows[flowId]
	flow.Active = true
	return &flow, nil
}

func (s *Store) ActivateFlow(botId string, flowId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	flow, ok := s.flows[flowId]
	if !ok {
		return fmt.Errorf("flow %s not found", flowId)
	}
	if flow.BotId != botId {
		return fmt.Errorf("flow %s does not belong to bot %s", flowId, botId)
	}
	if previousId, ok := s.activeFlows[botId]; ok && previousId != flowId {
		previous := s.flows[previousId]
		previous.Active = false
		s.flows[previousId] = previous
	}
	flow.Active = true
	s.flows[flowId] = flow
	s.activeFlows[botId] = flowId
	return nil
}

func (s *Store) SaveBot(bot *model.Bot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bots[bot.Id] = *bot
	return nil
}

func (s *Store) GetBot(botId string) (*model.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bot, ok := s.bots[botId]
	if !ok {
		return nil, fmt.Errorf("bot %s not found", botId)
	}
	return &bot, nil
}

func (s *Store) Get(flowId string, conversationId string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionKey(flowId, conversationId)]
	if !ok {
		return nil, nil
	}
	copied := session
	copied.Variables = copyVariables(session.Variables)
	return &copied, nil
}

func (s *Store) Upsert(session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey(session.FlowId, session.ConversationId)
	if stored, ok := s.sessions[key]; ok && stored.Version != session.Version {
		return persistence.SessionConflictError{FlowId: session.FlowId, ConversationId: session.ConversationId}
	}
	session.Version++
	copied := *session
	copied.Variables = copyVariables(session.Variables)
	s.sessions[key] = copied
	return nil
}

func (s *Store) Clear(flowId string, conversationId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey(flowId, conversationId))
	return nil
}

func (s *Store) AddSubscriber(flowId string, conversationId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.subscribers[flowId]
	if !ok {
		set = make(map[string]struct{})
		s.subscribers[flowId] = set
	}
	set[conversationId] = struct{}{}
	return nil
}

func (s *Store) Subscribers(flowId string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for conversationId := range s.subscribers[flowId] {
		out = append(out, conversationId)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Push(queueName string, message []byte) error {
	return s.PushWithDelay(queueName, 0, message)
}

func (s *Store) PushWithDelay(queueName string, delay time.Duration, message []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[queueName] = append(s.queues[queueName], queueEntry{
		dueTime: time.Now().Add(delay),
		message: string(message),
	})
	return nil
}

func (s *Store) Pop(queueName string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var due []string
	var remaining []queueEntry
	for _, entry := range s.queues[queueName] {
		if !entry.dueTime.After(now) {
			due = append(due, entry.message)
		} else {
			remaining = append(remaining, entry)
		}
	}
	s.queues[queueName] = remaining
	return due, nil
}

func copyVariables(variables map[string]any) map[string]any {
	copied := make(map[string]any, len(variables))
	for k, v := range variables {
		copied[k] = v
	}
	return copied
}
