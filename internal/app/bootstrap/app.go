package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/lab-scheduling-assistant/internal/api/router"
	"github.com/wolfman30/lab-scheduling-assistant/internal/audit"
	"github.com/wolfman30/lab-scheduling-assistant/internal/catalog"
	appconfig "github.com/wolfman30/lab-scheduling-assistant/internal/config"
	"github.com/wolfman30/lab-scheduling-assistant/internal/conversation"
	"github.com/wolfman30/lab-scheduling-assistant/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/lab-scheduling-assistant/internal/http/middleware"
	"github.com/wolfman30/lab-scheduling-assistant/internal/notify"
	"github.com/wolfman30/lab-scheduling-assistant/internal/observability/metrics"
	"github.com/wolfman30/lab-scheduling-assistant/internal/scheduling"
	"github.com/wolfman30/lab-scheduling-assistant/internal/webchat"
	"github.com/wolfman30/lab-scheduling-assistant/pkg/logging"
)

// CalendarConfig derives the clinic calendar from the environment config.
func CalendarConfig(cfg *appconfig.Config) scheduling.Config {
	cal := scheduling.DefaultConfig()
	if cfg == nil {
		return cal
	}
	cal.OpenTime = cfg.OpenTime
	cal.CloseTime = cfg.CloseTime
	cal.SlotStep = cfg.SlotStep
	cal.DefaultLocation = scheduling.Location(cfg.DefaultLocation)
	cal.HomeVisitCities = cfg.HomeVisitCities
	cal.UTCOffsetHours = cfg.UTCOffsetHours
	return cal
}

// StackDeps are the already-built collaborators of the chat pipeline.
type StackDeps struct {
	LLM      *LLMClients
	Store    scheduling.Store
	Catalog  catalog.Repository
	Cache    catalog.Cache
	Notifier scheduling.Notifier
	Auditor  scheduling.Auditor
	Metrics  *metrics.ChatMetrics
	Logger   *logging.Logger
}

// ChatStack is the assembled scheduling assistant.
type ChatStack struct {
	Service      *conversation.ChatService
	Writer       *scheduling.AppointmentWriter
	Availability *scheduling.AvailabilityResolver
}

// BuildChatStack wires writer, tools, orchestrator, intent router and chat
// service from config and deps.
func BuildChatStack(cfg *appconfig.Config, deps StackDeps) (*ChatStack, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if deps.LLM == nil {
		return nil, fmt.Errorf("bootstrap: llm clients are required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("bootstrap: scheduling store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	repo := deps.Catalog
	if repo == nil {
		repo = catalog.NewStaticRepository(catalog.DefaultStudies())
	}
	cal := CalendarConfig(cfg)

	writer, err := scheduling.NewAppointmentWriter(deps.Store, scheduling.WriterConfig{
		Calendar:      cal,
		NotifyTimeout: cfg.NotifyTimeout,
		Notifier:      deps.Notifier,
		Auditor:       deps.Auditor,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: appointment writer: %w", err)
	}

	studies := catalog.NewService(repo, deps.Cache, cfg.StudyCacheTTL, logger)
	tools, err := conversation.NewToolExecutor(studies, writer, cfg.AvailabilityTimeout, deps.Metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: tool executor: %w", err)
	}
	orchestrator, err := conversation.NewOrchestrator(deps.LLM.Chat, tools, conversation.OrchestratorConfig{
		FirstPassTimeout:  cfg.FirstPassTimeout,
		SecondPassTimeout: cfg.SecondPassTimeout,
	}, deps.Metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: orchestrator: %w", err)
	}

	service, err := conversation.NewChatService(conversation.Config{
		ClinicName:          cfg.ClinicName,
		HistoryWindow:       cfg.HistoryWindow,
		AvailabilityTimeout: cfg.AvailabilityTimeout,
		Calendar:            cal,
	}, conversation.ServiceDeps{
		Router:       conversation.NewIntentRouter(deps.LLM.Classifier, cfg.ClassifyTimeout, deps.Metrics, logger),
		Orchestrator: orchestrator,
		Availability: writer.Availability(),
		Auditor:      deps.Auditor,
		Metrics:      deps.Metrics,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: chat service: %w", err)
	}
	return &ChatStack{Service: service, Writer: writer, Availability: writer.Availability()}, nil
}

// App is the running API: its HTTP handler and what must be released on
// shutdown.
type App struct {
	Handler http.Handler
	WebChat *webchat.Handler
	closers []func()
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// BuildApp connects to the configured backends and returns the router.
// Without DATABASE_URL the API runs on in-memory stores.
func BuildApp(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	app := &App{}
	checks := map[string]router.HealthCheck{}

	db, err := BuildDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	deps := StackDeps{Logger: logger}
	if db != nil {
		app.closers = append(app.closers, db.Close)
		deps.Store = scheduling.NewPostgresStore(db.Pool)
		deps.Catalog = catalog.NewPostgresRepository(db.Pool)
		checks["postgres"] = func(ctx context.Context) error { return db.Pool.Ping(ctx) }
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory scheduling store")
		deps.Store = scheduling.NewMemoryStore(CalendarConfig(cfg))
	}
	auditLogger := audit.NewLogger(nil, logger)
	if db != nil {
		auditLogger = audit.NewLogger(db.SQL, logger)
	}
	deps.Auditor = auditLogger

	redisClient := BuildRedisClient(ctx, cfg, logger, true)
	var limiter httpmiddleware.Limiter = httpmiddleware.NewRateLimiter(cfg.ChatRateLimit, cfg.ChatRateWindow)
	if redisClient != nil {
		app.closers = append(app.closers, func() { _ = redisClient.Close() })
		deps.Cache = catalog.NewRedisCache(redisClient)
		limiter = httpmiddleware.NewRedisRateLimiter(redisClient, cfg.ChatRateLimit, cfg.ChatRateWindow)
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	llm, err := BuildLLMClients(ctx, cfg, awsCfg, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	deps.LLM = llm

	sender, provider := BuildEmailSender(cfg, awsCfg, logger)
	deps.Notifier = notify.NewService(sender, cfg.ClinicName, logger)
	logger.Info("email provider selected", "provider", provider)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	deps.Metrics = metrics.NewChatMetrics(reg)

	stack, err := BuildChatStack(cfg, deps)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.WebChat = webchat.NewHandler(stack.Service, cfg.CORSAllowedOrigins, logger)
	app.closers = append(app.closers, app.WebChat.CloseAll)
	app.Handler = router.New(&router.Config{
		Logger:             logger,
		ChatHandler:        conversation.NewHandler(stack.Service, logger),
		WebChat:            app.WebChat,
		AdminSchedule:      handlers.NewAdminScheduleHandler(deps.Store, stack.Availability, logger),
		AdminAudit:         handlers.NewAdminAuditHandler(auditLogger, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		ChatLimiter:        limiter,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		HealthChecks:       checks,
	})
	return app, nil
}
