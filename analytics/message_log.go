package analytics

import (
	"os"
	"sync"

	"github.com/zapflow/zapflow/util"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Direction string

const DIRECTION_IN Direction = "in"
const DIRECTION_OUT Direction = "out"

type record struct {
	botId          string
	flowId         string
	conversationId string
	direction      Direction
	text           string
	nodeType       string
}

// MessageLog appends conversation traffic for the analytics pipeline.
// Strictly best effort: Append hands the record to a buffered worker and
// returns immediately; a full buffer drops the record. The main traversal
// never blocks or fails on logging.
type MessageLog struct {
	logger *zap.Logger
	worker *util.Worker
}

func NewMessageLog(fileName string, capacity int, wg *sync.WaitGroup) (*MessageLog, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.StacktraceKey = ""
	fileEncoder := zapcore.NewJSONEncoder(encoderConfig)
	logFile, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(fileEncoder, zapcore.AddSync(logFile), zapcore.InfoLevel)

	ml := &MessageLog{
		logger: zap.New(core),
	}
	ml.worker = util.NewWorker("message-log", wg, ml.write, capacity)
	ml.worker.Start()
	return ml, nil
}

func (ml *MessageLog) Append(botId string, flowId string, conversationId string, direction Direction, text string, nodeType string) {
	ml.worker.TrySend(record{
		botId:          botId,
		flowId:         flowId,
		conversationId: conversationId,
		direction:      direction,
		text:           text,
		nodeType:       nodeType,
	})
}

func (ml *MessageLog) write(task util.Task) error {
	r := task.(record)
	ml.logger.Info("message",
		zap.String("botId", r.botId),
		zap.String("flowId", r.flowId),
		zap.String("conversationId", r.conversationId),
		zap.String("direction", string(r.direction)),
		zap.String("text", r.text),
		zap.String("nodeType", r.nodeType),
	)
	return nil
}

func (ml *MessageLog) Stop() {
	ml.worker.Stop()
}
