package channel

import (
	"context"
	"sync"

	"github.com/zapflow/zapflow/logger"
	"github.com/zapflow/zapflow/model"
	"go.uber.org/zap"
)

// Adapter realizes platform-agnostic actions on one chat API.
// Send returns the provider's message id when the platform reports one.
// Capability gaps are owned here: an action the platform cannot express is
// a logged no-op, never an error back into the walker.
type Adapter interface {
	Platform() model.Platform
	Send(ctx context.Context, action model.Action, destination string) (string, error)
}

func logUnsupported(platform model.Platform, action model.Action) {
	logger.Debug("action not supported on platform", zap.String("platform", string(platform)), zap.Any("action", action))
}

// lastMessageIds tracks the most recent provider message id per destination
// so editMessage/deleteMessage nodes have a target. Best effort and
// process-local, which matches the editor's "edit the last thing the bot
// said" semantics.
type lastMessageIds struct {
	mu  sync.Mutex
	ids map[string]string
}

func newLastMessageIds() *lastMessageIds {
	return &lastMessageIds{ids: make(map[string]string)}
}

func (l *lastMessageIds) set(destination string, id string) {
	if id == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids[destination] = id
}

func (l *lastMessageIds) get(destination string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ids[destination]
}
