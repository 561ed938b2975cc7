// README: Composition root: builds infra clients, module services and the HTTP router from config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"fooddash/internal/config"
	"fooddash/internal/events"
	httptransport "fooddash/internal/http"
	"fooddash/internal/http/handlers"
	"fooddash/internal/infra"
	"fooddash/internal/modules/customer"
	"fooddash/internal/modules/dispatch"
	"fooddash/internal/modules/driver"
	"fooddash/internal/modules/ledger"
	"fooddash/internal/modules/location"
	"fooddash/internal/modules/order"
	"fooddash/internal/modules/pricing"
	"fooddash/internal/notify"
	"fooddash/internal/storage"
	"fooddash/internal/types"
)

type App struct {
	log      *slog.Logger
	db       *pgxpool.Pool
	redis    *redis.Client
	rabbit   *infra.Rabbit
	shutdown func(context.Context) error

	server   *httptransport.Server
	dispatch *dispatch.Service
	presence *location.Service
}

// New connects to every backing service and wires the modules. Callers must Close it.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	a := &App{log: log}
	var err error

	if a.shutdown, err = infra.InitTracing(cfg.Tracing.JaegerEndpoint, cfg.Tracing.ServiceName); err != nil {
		return nil, fmt.Errorf("tracing init: %w", err)
	}
	if a.db, err = infra.NewDB(ctx, cfg.DB.DSN); err != nil {
		a.Close()
		return nil, err
	}
	if err := storage.Migrate(a.db); err != nil {
		a.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	if a.redis, err = infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
		a.Close()
		return nil, err
	}
	fb, err := infra.NewFirebase(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("firebase init: %w", err)
	}

	var notifier notify.Notifier = notify.LogNotifier{Log: log}
	if fcm, err := fb.Messaging(ctx); err != nil {
		log.Warn("firebase messaging unavailable; push notifications are logged only", "error", err)
	} else {
		notifier = notify.NewFCMNotifier(fcm, log)
	}

	var mirror events.Handler
	if cfg.AMQP.URL != "" {
		if a.rabbit, err = infra.NewRabbit(cfg.AMQP.URL); err != nil {
			a.Close()
			return nil, err
		}
		m, err := events.NewAMQPMirror(a.rabbit.Channel(), cfg.AMQP.Exchange)
		if err != nil {
			a.Close()
			return nil, err
		}
		mirror = m.Handle
	}

	customers := customer.NewService(customer.NewStore(a.db), log)
	drivers := driver.NewService(driver.NewStore(a.db), log)
	catalog := pricing.NewStore(a.db)
	validator := pricing.NewService(catalog, customers, pricingConfig(cfg), log)
	cash := ledger.NewService(ledger.NewStore(a.db), log, nil)

	bus := events.NewBus(log)
	orders := order.NewService(order.NewStore(a.db),
		order.WithValidator(validator),
		order.WithClaimGate(drivers),
		order.WithPublisher(bus),
		order.WithLogger(log),
	)
	a.dispatch = dispatch.NewService(drivers, orders, dispatch.NewStore(a.redis), notifier, dispatchConfig(cfg), log)
	a.presence = location.NewService(location.NewStore(a.redis), drivers, location.ReaperConfig{
		Interval:  cfg.Presence.ReaperInterval,
		Threshold: cfg.Presence.StaleAfter,
	}, log)

	Register(bus, Subscribers{
		Dispatch:  a.dispatch,
		Drivers:   drivers,
		Ledger:    cash,
		Customers: customers,
		Merchants: catalog,
		Notifier:  notifier,
		Mirror:    mirror,
		Log:       log,
	})

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Orders:   handlers.NewOrderHandler(orders),
		Drivers:  handlers.NewDriverHandler(drivers, a.presence),
		Admin:    handlers.NewAdminHandler(cash, drivers, fb, types.Money(cfg.Ledger.DefaultMaxCashLimit)),
		Catalog:  handlers.NewCatalogHandler(catalog),
		Verifier: fb,
		Log:      log,
	})
	a.server = httptransport.NewServer(cfg.HTTP.Addr, router)
	return a, nil
}

// Run serves HTTP and runs the background sweeps until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Run(ctx)
	})
	g.Go(func() error {
		a.presence.RunReaper(ctx)
		return nil
	})
	g.Go(func() error {
		a.dispatch.RunStaleSweep(ctx)
		return nil
	})
	a.log.Info("fooddash api started")
	return g.Wait()
}

func (a *App) Close() error {
	var errs []error
	if a.rabbit != nil {
		errs = append(errs, a.rabbit.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(context.Background()))
	}
	return errors.Join(errs...)
}

func pricingConfig(cfg config.Config) pricing.Config {
	return pricing.Config{
		PlatformDeliveryFee: types.Money(cfg.Pricing.PlatformDeliveryFee),
		ServiceFeePercent:   cfg.Pricing.ServiceFeePercent,
		Tolerance:           types.Money(cfg.Pricing.Tolerance),
		TrustHardFloor:      cfg.Pricing.TrustHardFloor,
		TrustWarnBelow:      cfg.Pricing.TrustWarnBelow,
	}
}

func dispatchConfig(cfg config.Config) dispatch.Config {
	return dispatch.Config{
		SweepInterval:    cfg.Dispatch.SweepInterval,
		RebroadcastAfter: cfg.Dispatch.RebroadcastAfter,
		MaxBroadcasts:    cfg.Dispatch.MaxBroadcasts,
		SweepBatch:       cfg.Dispatch.SweepBatch,
	}
}
