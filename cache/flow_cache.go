package cache

import (
	"time"

	c "github.com/patrickmn/go-cache"
	"github.com/zapflow/zapflow/model"
)

// FlowCache keeps the active flow and bot of recently seen bots in memory
// so every webhook delivery does not round-trip to storage. Entries expire
// quickly and are invalidated on activation.
type FlowCache struct {
	cache *c.Cache
}

type cachedBot struct {
	flow *model.FlowDefinition
	bot  *model.Bot
}

func NewFlowCache() *FlowCache {
	return &FlowCache{
		cache: c.New(30*time.Second, 10*time.Minute),
	}
}

func (fc *FlowCache) Get(botId string) (*model.FlowDefinition, *model.Bot, bool) {
	entry, found := fc.cache.Get(botId)
	if !found {
		return nil, nil, false
	}
	cached := entry.(cachedBot)
	return cached.flow, cached.bot, true
}

func (fc *FlowCache) Put(botId string, flow *model.FlowDefinition, bot *model.Bot) {
	fc.cache.Set(botId, cachedBot{flow: flow, bot: bot}, c.DefaultExpiration)
}

func (fc *FlowCache) Invalidate(botId string) {
	fc.cache.Delete(botId)
}
