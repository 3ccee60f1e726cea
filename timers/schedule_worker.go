package timers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/zapflow/zapflow/logger"
	"github.com/zapflow/zapflow/persistence"
	"github.com/zapflow/zapflow/service"
	"github.com/zapflow/zapflow/util"
	"go.uber.org/zap"
)

// ScheduleWorker fires due schedule nodes against every subscribed
// conversation. Rescheduling the next firing is the service's job.
type ScheduleWorker struct {
	delayQueue persistence.DelayQueue
	executor   *service.ExecutionService
	tw         *util.TickWorker
}

func NewScheduleWorker(delayQueue persistence.DelayQueue, executor *service.ExecutionService, pollIntervalSeconds int, wg *sync.WaitGroup) *ScheduleWorker {
	sw := &ScheduleWorker{
		delayQueue: delayQueue,
		executor:   executor,
	}
	sw.tw = util.NewTickWorker("schedule", pollIntervalSeconds, sw.poll, wg)
	return sw
}

func (sw *ScheduleWorker) Start() {
	sw.tw.Start()
}

func (sw *ScheduleWorker) Stop() {
	sw.tw.Stop()
}

func (sw *ScheduleWorker) poll() {
	messages, err := sw.delayQueue.Pop(persistence.QUEUE_SCHEDULE)
	if err != nil {
		logger.Error("error polling schedule queue", zap.Error(err))
		return
	}
	for _, msg := range messages {
		var rec persistence.ScheduleRecord
		if err := json.Unmarshal([]byte(msg), &rec); err != nil {
			logger.Error("discarding malformed schedule record", zap.Error(err))
			continue
		}
		sw.executor.RunSchedule(context.Background(), rec)
	}
}
