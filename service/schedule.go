package service

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/zapflow/zapflow/logger"
	"github.com/zapflow/zapflow/model"
	"github.com/zapflow/zapflow/persistence"
	"go.uber.org/zap"
)

// SeedSchedules enqueues the first firing of every schedule node in a
// freshly activated flow. RunSchedule re-enqueues the next firing after
// each tick, so one seed per activation keeps the chain alive.
func (s *ExecutionService) SeedSchedules(flowId string) error {
	flow, err := s.flows.GetFlow(flowId)
	if err != nil {
		return err
	}
	for _, node := range flow.NodesOfType(model.NODE_TYPE_SCHEDULE) {
		data := node.Data.(*model.ScheduleData)
		s.pushSchedule(persistence.ScheduleRecord{
			FlowId: flow.Id,
			BotId:  flow.BotId,
			NodeId: node.Id,
		}, nextScheduleFire(data, nowFunc()))
	}
	return nil
}

func (s *ExecutionService) pushSchedule(rec persistence.ScheduleRecord, delay time.Duration) {
	payload, err := json.Marshal(rec)
	if err != nil {
		logger.Error("could not encode schedule record", zap.Error(err))
		return
	}
	if err := s.delayQueue.PushWithDelay(persistence.QUEUE_SCHEDULE, delay, payload); err != nil {
		logger.Error("could not enqueue schedule", zap.String("flowId", rec.FlowId), zap.String("nodeId", rec.NodeId), zap.Error(err))
	}
}

// rescheduleNext chains the following firing of a schedule node that just
// ticked. Called from RunSchedule while the flow is still active.
func (s *ExecutionService) rescheduleNext(flow *model.FlowDefinition, rec persistence.ScheduleRecord) {
	node := flow.NodeById(rec.NodeId)
	if node == nil || node.Type != model.NODE_TYPE_SCHEDULE {
		return
	}
	data := node.Data.(*model.ScheduleData)
	s.pushSchedule(rec, nextScheduleFire(data, nowFunc()))
}

// nextScheduleFire computes how long until a schedule node fires next.
// Interval schedules repeat every N units; time-of-day schedules fire at
// ScheduleTime on the listed weekdays (every day when none are listed).
func nextScheduleFire(data *model.ScheduleData, now time.Time) time.Duration {
	if data.ScheduleInterval > 0 {
		amount := time.Duration(data.ScheduleInterval)
		switch data.ScheduleIntervalUnit {
		case "hours":
			return amount * time.Hour
		case "days":
			return amount * 24 * time.Hour
		default:
			return amount * time.Minute
		}
	}

	fireTime, err := time.Parse("15:04", data.ScheduleTime)
	if err != nil {
		// unparsable schedule falls back to a daily tick
		return 24 * time.Hour
	}
	for offset := 0; offset < 8; offset++ {
		day := now.AddDate(0, 0, offset)
		candidate := time.Date(day.Year(), day.Month(), day.Day(), fireTime.Hour(), fireTime.Minute(), 0, 0, now.Location())
		if !candidate.After(now) {
			continue
		}
		if scheduleDayMatches(data.ScheduleDays, candidate.Weekday()) {
			return candidate.Sub(now)
		}
	}
	return 24 * time.Hour
}

func scheduleDayMatches(days []string, weekday time.Weekday) bool {
	if len(days) == 0 {
		return true
	}
	name := strings.ToLower(weekday.String())
	for _, d := range days {
		if strings.ToLower(d) == name {
			return true
		}
	}
	return false
}
