// Package timers polls the delay queue and re-enters suspended
// conversations and due schedules into the execution service.
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

// ResumeWorker wakes conversations parked on delay nodes once their
// resume time passes.
type ResumeWorker struct {
	delayQueue persistence.DelayQueue
	executor   *service.ExecutionService
	tw         *util.TickWorker
}

func NewResumeWorker(delayQueue persistence.DelayQueue, executor *service.ExecutionService, pollIntervalSeconds int, wg *sync.WaitGroup) *ResumeWorker {
	rw := &ResumeWorker{
		delayQueue: delayQueue,
		executor:   executor,
	}
	rw.tw = util.NewTickWorker("delay-resume", pollIntervalSeconds, rw.poll, wg)
	return rw
}

func (rw *ResumeWorker) Start() {
	rw.tw.Start()
}

func (rw *ResumeWorker) Stop() {
	rw.tw.Stop()
}

func (rw *ResumeWorker) poll() {
	messages, err := rw.delayQueue.Pop(persistence.QUEUE_DELAY)
	if err != nil {
		logger.Error("error polling delay queue", zap.Error(err))
		return
	}
	for _, msg := range messages {
		var rec persistence.ResumeRecord
		if err := json.Unmarshal([]byte(msg), &rec); err != nil {
			logger.Error("discarding malformed resume record", zap.Error(err))
			continue
		}
		rw.executor.ResumeDelayed(context.Background(), rec)
	}
}
