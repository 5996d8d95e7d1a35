package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/linemk/event-shop/internal/config"
	"github.com/linemk/event-shop/internal/events"
	"github.com/linemk/event-shop/internal/lib/metrics"
	"github.com/linemk/event-shop/internal/payments"
	"github.com/linemk/event-shop/internal/redisx"
	"github.com/linemk/event-shop/internal/service"
	"github.com/linemk/event-shop/internal/storage"
)

type App struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *sql.DB
	Router http.Handler

	redis           *redis.Client
	publisher       events.Publisher
	metricsShutdown func(context.Context) error
}

// Services - сервисный слой, собранный поверх одного пула соединений
type Services struct {
	Users      storage.UserStorage
	Orders     service.OrderService
	Reconciler service.StatusReconciler
	Merch      service.MerchService
	Payments   service.PaymentService
}

// NewApp создаёт новый экземпляр App: БД, внешние клиенты, сервисы и роутер
func NewApp(ctx context.Context, log *slog.Logger, cfg *config.Config) (*App, error) {
	db, err := openDB(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		Logger: log,
		DB:     db,
	}

	m, metricsHandler, shutdown, err := metrics.Setup()
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	app.metricsShutdown = shutdown

	if len(cfg.Kafka.Brokers) > 0 {
		app.publisher = events.NewKafkaPublisher(log, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		log.Info("kafka publisher enabled", slog.Any("brokers", cfg.Kafka.Brokers), slog.String("topic", cfg.Kafka.Topic))
	} else {
		app.publisher = events.NopPublisher{}
		log.Info("kafka brokers not configured, domain events disabled")
	}

	// nil-интерфейс отключает дедупликацию, поэтому присваиваем только при наличии Redis
	var dedup service.Deduper
	if cfg.Redis.Addr != "" {
		rdb, err := redisx.New(ctx, cfg.Redis.Addr)
		if err != nil {
			_ = app.Close(ctx)
			return nil, err
		}
		app.redis = rdb
		dedup = redisx.NewDeduper(rdb, "stripe", cfg.Redis.DedupTTL)
	} else {
		log.Warn("redis not configured, webhook de-duplication relies on idempotent apply only")
	}

	svc := buildServices(log, db, cfg, app.publisher, m, dedup)
	app.Router = NewRouter(log, cfg.JWT.Secret, svc, metricsHandler)

	return app, nil
}

func openDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	// реализуем подключение к БД через DSN
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func buildServices(
	log *slog.Logger,
	db *sql.DB,
	cfg *config.Config,
	publisher events.Publisher,
	m *metrics.Metrics,
	dedup service.Deduper,
) Services {
	txOpts := storage.DefaultTxOptions()
	txOpts.MaxRetries = cfg.Database.TxMaxRetries

	// реализация слоев по работе с БД по каждому направлению
	userRepo := storage.NewUserRepository(db)
	merchRepo := storage.NewMerchRepository(db)
	orderRepo := storage.NewOrderRepository(db)
	paymentRepo := storage.NewPaymentRepository(db)
	registrationRepo := storage.NewRegistrationRepository(db)
	ledger := storage.NewInventoryLedger(db)

	reconciler := service.NewStatusReconciler(log, db, txOpts, orderRepo, ledger, publisher, m)

	return Services{
		Users:      userRepo,
		Orders:     service.NewOrderService(log, db, txOpts, orderRepo, merchRepo, ledger, publisher, m),
		Reconciler: reconciler,
		Merch:      service.NewMerchService(log, merchRepo),
		Payments: service.NewPaymentService(log, service.PaymentDeps{
			DB:            db,
			TxOptions:     txOpts,
			Payments:      paymentRepo,
			Orders:        orderRepo,
			Registrations: registrationRepo,
			Reconciler:    reconciler,
			Gateway:       payments.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, nil),
			Dedup:         dedup,
			Currency:      cfg.Stripe.Currency,
			Publisher:     publisher,
			Metrics:       m,
		}),
	}
}

// Close освобождает внешние ресурсы в обратном порядке
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.metricsShutdown != nil {
		errs = append(errs, a.metricsShutdown(ctx))
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
