package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/redis/go-redis/v9"

	"theater-site/config"
	"theater-site/internal/events"
	"theater-site/internal/handlers"
	"theater-site/internal/mailer"
	"theater-site/internal/services"
	"theater-site/internal/services/provider"
	"theater-site/internal/services/provider/mercadopago"
	"theater-site/internal/services/provider/stripeprovider"
	"theater-site/internal/store"
	"theater-site/internal/store/boltstore"
	"theater-site/internal/store/mongostore"
	"theater-site/internal/store/pbstore"
	"theater-site/models"
	"theater-site/monitoring"
	"theater-site/security"
	"theater-site/utils"
)

// deps is everything the HTTP routes and the CLI commands share.
type deps struct {
	cfg       *config.Config
	redis     redis.Cmdable
	store     store.Store
	providers *provider.Registry
	monitor   *monitoring.Monitor
	publisher events.Publisher

	content  *services.ContentService
	tickets  *services.TicketService
	webhooks *services.WebhookService
	checkout *services.CheckoutService
	reports  *services.ReportService
}

func Start() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	app := pocketbase.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis is optional: without it webhooks are not locked and scans are
	// not rate limited.
	var rdb redis.Cmdable
	redisClient, err := utils.NewRedisClient(ctx, utils.RedisOptions{
		URL:      cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		slog.Warn("redis unavailable, continuing without locks and rate limits", "error", err)
	} else {
		defer redisClient.Close()
		rdb = redisClient
	}

	d, err := newDeps(ctx, app, cfg, rdb)
	if err != nil {
		return err
	}
	defer d.store.Close()
	defer d.publisher.Close()

	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: !cfg.IsProduction(),
	})
	registerCommands(app, d)

	if cfg.EnableMetrics {
		go d.monitor.Run(ctx, 15*time.Second)
	}

	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		registerRoutes(se, d)
		slog.Info("server routes registered", "store", cfg.StoreDriver, "providers", d.providers.Available())
		return se.Next()
	})

	return app.Start()
}

func newDeps(ctx context.Context, app core.App, cfg *config.Config, rdb redis.Cmdable) (*deps, error) {
	s, err := newStore(ctx, app, cfg)
	if err != nil {
		return nil, err
	}

	registry, err := newProviders(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	m, err := mailer.New(mailer.Config{
		Driver: cfg.MailDriver,
		From:   mailer.Sender{Address: cfg.MailFromAddress, Name: cfg.MailFromName},
		SMTP: mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			TLS:      cfg.SMTPTLS,
		},
		SESRegion: cfg.SESRegion,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	monitor := monitoring.NewMonitor(rdb)
	publisher := newPublisher(cfg)

	var locker services.Locker
	if rdb != nil {
		locker = security.NewLocker(rdb, "webhook", cfg.WebhookLockTTL)
	}

	content := services.NewContentService(s)
	tickets := services.NewTicketService(s, m, publisher, security.NewPasswordGate(cfg.ValidationPassword), monitor, cfg.BaseURL)

	return &deps{
		cfg:       cfg,
		redis:     rdb,
		store:     s,
		providers: registry,
		monitor:   monitor,
		publisher: publisher,
		content:   content,
		tickets:   tickets,
		webhooks:  services.NewWebhookService(s, registry, tickets, locker, publisher, monitor),
		checkout:  services.NewCheckoutService(s, registry, content, monitor, cfg.BaseURL, cfg.Currency),
		reports:   services.NewReportService(s),
	}, nil
}

func newStore(ctx context.Context, app core.App, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case "pocketbase", "":
		return pbstore.New(app), nil
	case "mongo":
		return mongostore.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case "bolt":
		return boltstore.New(cfg.BoltPath)
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}
}

// newProviders registers every provider that has credentials. Unsigned
// webhooks are only accepted outside production.
func newProviders(cfg *config.Config) (*provider.Registry, error) {
	registry := provider.NewRegistry()

	if cfg.MercadoPagoAccessToken != "" {
		registry.Register(mercadopago.New(mercadopago.Config{
			BaseURL:          cfg.MercadoPagoBaseURL,
			AccessToken:      cfg.MercadoPagoAccessToken,
			WebhookSecret:    cfg.MercadoPagoWebhookSecret,
			Timeout:          cfg.ProviderTimeout,
			RequireSignature: cfg.IsProduction(),
		}))
	}
	if cfg.StripeSecretKey != "" {
		registry.Register(stripeprovider.New(stripeprovider.Config{
			SecretKey:        cfg.StripeSecretKey,
			WebhookSecret:    cfg.StripeWebhookSecret,
			RequireSignature: cfg.IsProduction(),
		}))
	}

	if len(registry.Available()) == 0 {
		slog.Warn("no payment provider configured, checkout is disabled")
		return registry, nil
	}
	if err := registry.SetPrimary(models.Provider(cfg.DefaultProvider)); err != nil {
		slog.Warn("default provider not configured, keeping the first one", "provider", cfg.DefaultProvider)
	}
	return registry, nil
}

func newPublisher(cfg *config.Config) events.Publisher {
	var fanout events.Fanout
	if cfg.PubNubPublishKey != "" {
		fanout = append(fanout, events.NewPubNub(events.PubNubConfig{
			PublishKey:   cfg.PubNubPublishKey,
			SubscribeKey: cfg.PubNubSubscribeKey,
			SecretKey:    cfg.PubNubSecretKey,
			Channel:      cfg.PubNubChannel,
		}))
	}
	if len(cfg.KafkaBrokers) > 0 {
		fanout = append(fanout, events.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic))
	}
	if len(fanout) == 0 {
		return events.Noop()
	}
	return fanout
}

func registerRoutes(se *core.ServeEvent, d *deps) {
	payments := handlers.NewPaymentHandler(d.checkout, d.webhooks, d.providers, d.monitor)
	tickets := handlers.NewTicketHandler(d.tickets)
	admin := handlers.NewAdminHandler(d.store, d.content, d.webhooks, d.tickets, d.reports)
	pages := handlers.NewPageHandler(d.content, d.cfg.StripePublishableKey)

	// Site pages
	se.Router.GET("/{$}", pages.Page("home", "Teatro"))
	se.Router.GET("/sobre", pages.Page("sobre", "Sobre nós"))
	se.Router.GET("/historia", pages.Page("historia", "Nossa história"))
	se.Router.GET("/catalogo", pages.Page("catalogo", "Catálogo"))
	se.Router.GET("/galeria", pages.Page("galeria", "Galeria"))
	se.Router.GET("/obrigado", pages.Page("obrigado", "Obrigado"))
	se.Router.GET("/validar", pages.Page("validar", "Validar ingresso"))
	se.Router.GET("/admin", pages.Page("admin", "Administração"))
	se.Router.GET("/scanner/{path...}", handlers.Scanner())
	se.Router.GET("/api/content", pages.Content)

	// Checkout and webhooks
	se.Router.POST("/api/checkout", payments.Checkout).BindFunc(security.AntiBotMiddleware())
	se.Router.GET("/api/transactions/{id}", payments.GetTransaction)
	se.Router.POST("/api/webhooks/{provider}", payments.Webhook)

	// Ticket validation
	validateQR := se.Router.POST("/api/tickets/validate-qr", tickets.ValidateQR)
	if d.redis != nil {
		validateQR.BindFunc(security.NewRateLimiter(d.redis, "scan", d.cfg.ScanRateLimit, d.cfg.ScanRateWindow).Middleware())
	}
	se.Router.POST("/api/tickets/validate", tickets.Validate)

	// Admin endpoints
	g := se.Router.Group("/api/admin")
	g.BindFunc(security.NewPasswordGate(d.cfg.AdminPassword).Middleware())
	g.GET("/content", admin.GetContent)
	g.PUT("/content", admin.PutContent)
	g.GET("/payments", admin.ListPayments)
	g.GET("/transactions", admin.ListTransactions)
	g.GET("/tickets", admin.ListTickets)
	g.GET("/report.csv", admin.ReportCSV)
	g.GET("/report.pdf", admin.ReportPDF)
	g.POST("/process-payment", admin.ProcessPayment)
	g.POST("/generate-tickets", admin.GenerateTickets)

	// Health check
	se.Router.GET("/health", func(e *core.RequestEvent) error {
		if d.redis != nil {
			if err := utils.RedisHealthCheck(e.Request.Context(), d.redis); err != nil {
				return e.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
		}
		return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	if d.cfg.EnableMetrics {
		se.Router.GET("/metrics", apis.WrapStdHandler(monitoring.Handler()))
	}
}

// handleShutdown stops the background tasks on SIGINT/SIGTERM.
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	slog.Info("shutdown signal received, cleaning up")
	cancel()
}
