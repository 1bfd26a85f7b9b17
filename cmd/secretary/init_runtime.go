package main

import (
	"fmt"
	"log/slog"
	"time"

	"secretary-ai/internal/adapter/channel"
	"secretary-ai/internal/adapter/tool"
	"secretary-ai/internal/domain"
	"secretary-ai/internal/infra/config"
	"secretary-ai/internal/infra/logger"
	"secretary-ai/internal/usecase"
	"secretary-ai/internal/usecase/availability"
	"secretary-ai/internal/usecase/scheduling"
)

// RuntimeComponents holds the serving side of the process.
type RuntimeComponents struct {
	Tools     *tool.Registry
	Chat      *usecase.ChatService
	HTTP      *channel.HTTPChannel
	Scheduler *scheduling.Scheduler // nil when retention is disabled
}

func initRuntime(
	cfg *config.Config,
	llm domain.LLMProvider,
	stores *Stores,
	connector domain.CalendarConnector,
	log *slog.Logger,
) (*RuntimeComponents, error) {
	loc, err := cfg.Agent.Location()
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.Agent.Timezone, err)
	}

	// 1. Tools
	registry, err := initTools(loc, logger.Component(log, "tools"))
	if err != nil {
		return nil, err
	}

	// 2. Orchestrator + chat service
	orch := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		LLM:   llm,
		Tools: registry,
		ContextBuilder: usecase.NewContextBuilder(usecase.ContextBuilderConfig{
			MaxMessages: cfg.Agent.HistoryLimit,
			MaxTokens:   cfg.Agent.MaxTokens,
			Temperature: cfg.Agent.Temperature,
			Location:    loc,
		}),
		Logger: logger.Component(log, "orchestrator"),
	})
	chat := usecase.NewChatService(usecase.ChatDeps{
		Orchestrator:  orch,
		Conversations: stores.Conversations,
		Credentials:   stores.Credentials,
		Calendar:      connector,
		Prompts: usecase.PromptSet{
			General:  cfg.Agent.SystemPrompt,
			Calendar: cfg.Agent.CalendarPrompt,
		},
		TurnTimeout: cfg.Agent.TurnTimeout,
		Logger:      logger.Component(log, "chat"),
	})

	// 3. HTTP API
	httpCh := channel.NewHTTPChannel(cfg.HTTP, channel.HTTPDeps{
		Chat:          chat,
		Conversations: stores.Conversations,
		Credentials:   stores.Credentials,
		Todos:         stores.Todos,
		Logger:        logger.Component(log, "http"),
	})

	// 4. Retention scheduler
	sched, err := initScheduler(cfg.Store, stores.Conversations, logger.Component(log, "scheduler"))
	if err != nil {
		return nil, err
	}

	log.Info("tools registered", "tools", registry.Names())
	return &RuntimeComponents{
		Tools:     registry,
		Chat:      chat,
		HTTP:      httpCh,
		Scheduler: sched,
	}, nil
}

// initTools registers get_current_datetime and the calendar tools.
func initTools(loc *time.Location, log *slog.Logger) (*tool.Registry, error) {
	registry := tool.NewRegistry(log)
	if err := registry.Register(tool.NewDateTimeTool(time.Now, loc, log)); err != nil {
		return nil, fmt.Errorf("register tool: %w", err)
	}
	for _, t := range tool.NewCalendarTools(tool.CalendarToolDeps{
		Finder: availability.New(availability.WithLocation(loc)),
		Logger: log,
	}) {
		if err := registry.Register(t); err != nil {
			return nil, fmt.Errorf("register tool %s: %w", t.Name(), err)
		}
	}
	return registry, nil
}

func initScheduler(cfg config.StoreConfig, conversations domain.ConversationStore, log *slog.Logger) (*scheduling.Scheduler, error) {
	if cfg.RetentionDays <= 0 {
		return nil, nil
	}
	sched := scheduling.NewScheduler(log)
	maxAge := time.Duration(cfg.RetentionDays) * 24 * time.Hour
	sched.RegisterAction(scheduling.ActionConversationRetention,
		scheduling.RetentionAction(conversations, maxAge, nil, log))
	if err := sched.AddTask(scheduling.ScheduledTask{
		Name:     "conversation-retention",
		Schedule: cfg.RetentionSchedule,
		Action:   scheduling.ActionConversationRetention,
	}); err != nil {
		return nil, fmt.Errorf("retention task: %w", err)
	}
	return sched, nil
}
