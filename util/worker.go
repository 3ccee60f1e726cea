package util

import (
	"sync"

	"github.com/zapflow/zapflow/logger"
	"go.uber.org/zap"
)

type Task any

// Worker drains a buffered task channel on its own goroutine. Used for
// fire-and-forget work such as the message log, where the producer must
// never block on the consumer.
type Worker struct {
	name     string
	stop     chan struct{}
	wg       *sync.WaitGroup
	handler  func(Task) error
	taskChan chan Task
}

func NewWorker(name string, wg *sync.WaitGroup, handler func(Task) error, capacity int) *Worker {
	return &Worker{
		taskChan: make(chan Task, capacity),
		name:     name,
		wg:       wg,
		stop:     make(chan struct{}),
		handler:  handler,
	}
}

func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case task := <-w.taskChan:
				err := w.handler(task)
				if err != nil {
					logger.Error("error in executing task in worker", zap.String("worker", w.name), zap.Any("task", task))
				}
			case <-w.stop:
				logger.Info("stopping worker", zap.String("worker", w.name))
				return
			}
		}
	}()
}

// TrySend enqueues without blocking; the task is dropped when the buffer
// is full.
func (w *Worker) TrySend(task Task) bool {
	select {
	case w.taskChan <- task:
		return true
	default:
		return false
	}
}

func (w *Worker) Sender() chan<- Task {
	return w.taskChan
}

func (w *Worker) Stop() {
	w.stop <- struct{}{}
}
