package model

import "time"

// Session is the only durable mutable entity of the engine: per-conversation
// pending node plus accumulated variables. A missing row means a fresh
// conversation. CurrentNodeId is empty unless the conversation is parked on
// a buttonReply, userInput or delay node.
type Session struct {
	FlowId         string         `json:"flowId"`
	ConversationId string         `json:"conversationId"`
	CurrentNodeId  string         `json:"currentNodeId"`
	Variables      map[string]any `json:"variables"`
	ResumeAt       *time.Time     `json:"resumeAt,omitempty"`
	Version        int64          `json:"version"`
}

func NewSession(flowId string, conversationId string) *Session {
	return &Session{
		FlowId:         flowId,
		ConversationId: conversationId,
		Variables:      make(map[string]any),
	}
}

// Pending reports whether the session is parked on a node awaiting a reply
// or a delay resume.
func (s *Session) Pending() bool {
	return s.CurrentNodeId != ""
}

func (s *Session) SetVariable(name string, value any) {
	if s.Variables == nil {
		s.Variables = make(map[string]any)
	}
	s.Variables[name] = value
}
