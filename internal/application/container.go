package application

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"khm-membership/internal/config"
	"khm-membership/internal/domain/model"
	"khm-membership/internal/domain/ports/adapter"
	"khm-membership/internal/domain/ports/repository"
	pg "khm-membership/internal/infra/db/postgres"
	"khm-membership/internal/infra/i18n"
	"khm-membership/internal/infra/mail"
	"khm-membership/internal/infra/metrics"
	"khm-membership/internal/infra/payment"
	red "khm-membership/internal/infra/redis"
	"khm-membership/internal/infra/security"
	"khm-membership/internal/infra/templates"
	"khm-membership/internal/infra/worker"
	"khm-membership/internal/usecase"
)

// Container holds the wired dependencies shared by the server and the CLI.
type Container struct {
	Cfg    *config.Config
	Log    *zerolog.Logger
	DB     *pgxpool.Pool
	Redis  *red.Client
	Tx     *pg.TxManager
	Mutex  *red.JobMutex
	Pool   *worker.Pool
	Tr     *i18n.Translator
	Crypto *security.EncryptionService

	Users       repository.UserRepository
	Levels      repository.LevelRepository
	Orders      repository.OrderRepository
	Memberships repository.MembershipRepository

	OrderUC        usecase.OrderUseCase
	EmailUC        usecase.EmailUseCase
	WebhookUC      usecase.WebhookUseCase
	SubscriptionUC usecase.SubscriptionUseCase
	PaymentUC      usecase.PaymentMethodUseCase
	TasksUC        usecase.MembershipTasksUseCase
}

// Build connects Postgres and Redis and wires every use case. The returned
// cleanup closes both connections.
func Build(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*Container, func(), error) {
	db, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, nil, err
	}
	rc, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	cleanup := func() {
		_ = rc.Close()
		db.Close()
	}

	encKey := cfg.Security.EncryptionKey
	if encKey == "" && cfg.Runtime.Dev {
		logger.Warn().Msg("security.encryption_key not set; using insecure development key")
		encKey = "0123456789abcdef0123456789abcdef"
	}
	crypto, err := security.NewEncryptionService(encKey)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("encryption: %w", err)
	}

	tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Site.Locale)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("translations: %w", err)
	}

	c := &Container{
		Cfg:         cfg,
		Log:         logger,
		DB:          db,
		Redis:       rc,
		Tx:          pg.NewTxManager(db),
		Mutex:       red.NewJobMutex(rc),
		Pool:        worker.NewPool(cfg.Scheduler.NotifyWorkers, logger),
		Tr:          tr,
		Crypto:      crypto,
		Users:       pg.NewPostgresUserRepo(db),
		Levels:      pg.NewLevelRepo(db),
		Orders:      pg.NewOrderRepo(db),
		Memberships: pg.NewMembershipRepo(db),
	}

	site := usecase.SiteInfo{
		Name:       cfg.Site.Name,
		URL:        cfg.Site.URL,
		AdminEmail: cfg.Site.AdminEmail,
		Currency:   cfg.Site.Currency,
	}

	c.EmailUC = usecase.NewEmailUseCase(
		pg.NewEmailLogRepo(db),
		pg.NewEmailQueueRepo(db),
		pg.NewSettingsRepo(db),
		c.Tx,
		templates.New(cfg.Email.TemplateDir, cfg.Site.Locale, tr),
		mail.NewFactory(cfg.Email),
		red.NewLocker(rc),
		crypto,
		usecase.EmailOptions{
			Site:       site,
			Method:     model.DeliveryDefault,
			UseQueue:   cfg.Email.UseQueue,
			FromEmail:  cfg.Email.FromEmail,
			FromName:   cfg.Email.FromName,
			MaxRetries: cfg.Email.MaxRetries,
			RetryDelay: cfg.Email.RetryDelay,
			BatchSize:  cfg.Email.BatchSize,
			LockTTL:    cfg.Email.LockTTL,
		},
		logger,
	)

	c.OrderUC = usecase.NewOrderUseCase(c.Orders, usecase.TaxSettings{
		State: cfg.Tax.State,
		Rate:  cfg.Tax.RateDecimal(),
	}, logger)

	notifier := worker.NewAsyncNotifier(c.Pool,
		usecase.NewBillingNotifier(c.Users, c.Levels, c.Orders, c.EmailUC, site, tr, logger),
		logger)

	idem := pg.NewIdempotencyCacheDecorator(pg.NewIdempotencyRepo(db), rc, cfg.Redis.TTL)
	c.WebhookUC = usecase.NewWebhookUseCase(
		c.Tx, idem, c.Orders, c.OrderUC, c.Memberships, c.Users, c.Levels,
		payment.NewStripeWebhookVerifier(cfg.Stripe.Tolerance),
		notifier,
		usecase.WebhookConfig{Secret: cfg.Stripe.WebhookSecret, Environment: cfg.Stripe.Environment},
		logger,
	)

	// A nil interface, not a typed nil, when Stripe is not configured.
	var gateway adapter.StripeGateway
	if cfg.Stripe.SecretKey != "" {
		gateway = payment.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.PublishableKey, nil, logger)
	} else {
		logger.Warn().Msg("stripe.secret_key not set; subscription management is disabled")
	}
	c.SubscriptionUC = usecase.NewSubscriptionUseCase(c.Tx, c.Orders, c.Memberships, gateway, tr, logger)
	c.PaymentUC = usecase.NewPaymentMethodUseCase(c.Orders, gateway, tr, logger)

	c.TasksUC = usecase.NewMembershipTasksUseCase(
		c.Memberships, pg.NewNotificationLogRepo(db), c.Users, c.Levels,
		c.EmailUC, site, cfg.Scheduler.ExpiryWarningDays, logger,
	)
	return c, cleanup, nil
}

// ReportPoolStats publishes pgxpool gauges until ctx is done.
func (c *Container) ReportPoolStats(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			metrics.SetDBPoolStats(c.DB.Stat())
		}
	}
}
