package agent

import (
	"sync"

	"github.com/zapflow/zapflow/ai"
	"github.com/zapflow/zapflow/analytics"
	"github.com/zapflow/zapflow/config"
	"github.com/zapflow/zapflow/engine"
	"github.com/zapflow/zapflow/httpclient"
	"github.com/zapflow/zapflow/logger"
	"github.com/zapflow/zapflow/model"
	"github.com/zapflow/zapflow/persistence"
	"github.com/zapflow/zapflow/persistence/inmem"
	rd "github.com/zapflow/zapflow/persistence/redis"
	"github.com/zapflow/zapflow/rest"
	"github.com/zapflow/zapflow/service"
	"github.com/zapflow/zapflow/timers"
	"github.com/zapflow/zapflow/util"
)

type Agent struct {
	Config           config.Config
	flows            persistence.FlowRepository
	sessions         persistence.SessionStore
	delayQueue       persistence.DelayQueue
	messageLog       *analytics.MessageLog
	executionService *service.ExecutionService
	httpServer       *rest.Server
	resumeWorker     *timers.ResumeWorker
	scheduleWorker   *timers.ScheduleWorker
	shutdown         bool
	shutdownLock     sync.Mutex
	wg               sync.WaitGroup
}

func New(config config.Config) (*Agent, error) {
	a := &Agent{
		Config: config,
	}
	setup := []func() error{
		a.setupStorage,
		a.setupMessageLog,
		a.setupExecutionService,
		a.setupTimers,
		a.setupHttpServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupStorage() error {
	switch a.Config.StorageType {
	case config.STORAGE_TYPE_INMEM:
		store := inmem.NewStore()
		a.flows = store
		a.sessions = store
		a.delayQueue = store
	default:
		conf := rd.Config{
			Addrs:     a.Config.RedisConfig.Addrs,
			Namespace: a.Config.RedisConfig.Namespace,
		}
		a.flows = rd.NewRedisFlowRepository(conf,
			util.NewJsonEncoderDecoder[model.FlowDefinition](),
			util.NewJsonEncoderDecoder[model.Bot]())
		a.sessions = rd.NewRedisSessionStore(conf, util.NewJsonEncoderDecoder[model.Session]())
		a.delayQueue = rd.NewRedisDelayQueue(conf)
	}
	return nil
}

func (a *Agent) setupMessageLog() error {
	var err error
	a.messageLog, err = analytics.NewMessageLog(a.Config.MessageLogFile, a.Config.MessageLogCapacity, &a.wg)
	return err
}

func (a *Agent) setupExecutionService() error {
	completions := map[model.NodeType]engine.CompletionProvider{}
	if a.Config.OpenAIKey != "" {
		completions[model.NODE_TYPE_OPENAI] = ai.NewOpenAIProvider(a.Config.OpenAIKey, a.Config.CompletionTimeout)
	}
	if a.Config.AnthropicKey != "" {
		completions[model.NODE_TYPE_ANTHROPIC] = ai.NewAnthropicProvider(a.Config.AnthropicKey, a.Config.CompletionTimeout)
	}
	if a.Config.GeminiKey != "" {
		completions[model.NODE_TYPE_GEMINI] = ai.NewGeminiProvider(a.Config.GeminiKey, a.Config.CompletionTimeout)
	}
	executor := engine.NewExecutor(httpclient.New(a.Config.HttpNodeTimeout), completions)
	a.executionService = service.NewExecutionService(a.Config, a.flows, a.sessions, a.delayQueue, executor, a.messageLog)
	return nil
}

func (a *Agent) setupTimers() error {
	a.resumeWorker = timers.NewResumeWorker(a.delayQueue, a.executionService, a.Config.ResumePollInterval, &a.wg)
	a.scheduleWorker = timers.NewScheduleWorker(a.delayQueue, a.executionService, a.Config.SchedulePollInterval, &a.wg)
	a.resumeWorker.Start()
	a.scheduleWorker.Start()
	return nil
}

func (a *Agent) setupHttpServer() error {
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, a.flows, a.executionService)
	if err != nil {
		return err
	}
	return nil
}

func (a *Agent) Start() error {
	go func() {
		if err := a.httpServer.Start(); err != nil {
			_ = a.Shutdown()
			panic(err)
		}
	}()
	return nil
}

func (a *Agent) Shutdown() error {
	logger.Info("shutting down server")
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true

	shutdown := []func() error{
		a.httpServer.Stop,
		func() error {
			a.resumeWorker.Stop()
			a.scheduleWorker.Stop()
			a.messageLog.Stop()
			return nil
		},
	}
	for _, fn := range shutdown {
		if err := fn(); err != nil {
			return err
		}
	}
	logger.Info("waiting for all services to shutdown...")
	a.wg.Wait()
	return nil
}
