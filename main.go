package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	appInventory "github.com/Zhima-Mochi/storefront-orders/internal/application/inventory"
	appOrder "github.com/Zhima-Mochi/storefront-orders/internal/application/order"
	appPayment "github.com/Zhima-Mochi/storefront-orders/internal/application/payment"
	"github.com/Zhima-Mochi/storefront-orders/internal/config"
	domorder "github.com/Zhima-Mochi/storefront-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/storefront-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/storefront-orders/internal/infrastructure/cache"
	"github.com/Zhima-Mochi/storefront-orders/internal/infrastructure/coupon"
	"github.com/Zhima-Mochi/storefront-orders/internal/infrastructure/id"
	"github.com/Zhima-Mochi/storefront-orders/internal/infrastructure/kafka"
	"github.com/Zhima-Mochi/storefront-orders/internal/infrastructure/notification"
	infraobs "github.com/Zhima-Mochi/storefront-orders/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/storefront-orders/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/storefront-orders/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/storefront-orders/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/storefront-orders/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/storefront-orders/internal/infrastructure/shipment"
	"github.com/Zhima-Mochi/storefront-orders/internal/observability"
	"github.com/Zhima-Mochi/storefront-orders/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/storefront-orders/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/storefront-orders/internal/presentation/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	baseLogger := logging.MustNewLogger(logging.Options{
		Service:    cfg.Service.Name,
		Env:        cfg.Service.Env,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	systemLogger := logging.WithTrace(baseLogger, logging.SystemTraceID, logging.SystemSpanID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Endpoint != "" {
		shutdownTracer, err := oteltrace.InitTracerProvider(ctx, oteltrace.ProviderConfig{
			ServiceName: cfg.Service.Name,
			Env:         cfg.Service.Env,
			Endpoint:    cfg.Tracing.Endpoint,
			Insecure:    cfg.Tracing.Insecure,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			systemLogger.Fatal("tracer_init_failed", zap.Error(err))
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracer(flushCtx)
		}()
	} else {
		oteltrace.InstallPropagators()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	counters, histograms := infraobs.StandardInstruments(prometrics.New("", "", reg))
	tel := infraobs.New(
		oteltrace.New(cfg.Service.Name),
		zaplogger.New(baseLogger),
		counters,
		histograms,
	)

	store, closeStore, err := openStorage(ctx, cfg, systemLogger)
	if err != nil {
		systemLogger.Fatal("storage_init_failed", zap.Error(err))
	}
	defer closeStore()

	var listings appInventory.ListingCache
	if cfg.Redis.Addr != "" {
		client, err := cache.Connect(ctx, cache.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			systemLogger.Fatal("redis_init_failed", zap.Error(err))
		}
		defer func() { _ = client.Close() }()
		listings = cache.NewListingCache(client, cfg.Redis.TTL)
	}

	settings, err := cfg.Orders.Settings()
	if err != nil {
		systemLogger.Fatal("order_settings_invalid", zap.Error(err))
	}

	inventoryService := appInventory.NewService(store.products, listings, tel)
	ids := id.UUID{}
	deps := appOrder.Dependencies{
		Repo:    store.orders,
		Tx:      store.tx,
		Outbox:  store.outbox,
		IDs:     ids,
		Numbers: id.NewOrderNumbers(cfg.Orders.NumberPrefix),
		Stock:   inventoryService,
		Catalog: inventoryService,
		Coupons: coupon.Defaults(),
		Loyalty: store.customers,
	}

	// Side effects run from the outbox: the relay publishes to the in-process
	// bus the worker listens on, and to Kafka when brokers are configured.
	bus := outbox.NewBus(tel.Logger())
	orderWorker := appOrder.NewWorker(store.orders, store.customers, notifier(cfg, tel), shipments(cfg), bus, settings, tel)
	orderWorker.Start()

	publishers := []domoutbox.Publisher{bus}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewSyncProducer(cfg.Kafka.Brokers, cfg.Kafka.ClientID)
		if err != nil {
			systemLogger.Fatal("kafka_init_failed", zap.Error(err))
		}
		publisher := kafka.NewPublisher(producer, cfg.Kafka.Topic, tel)
		defer func() { _ = publisher.Close() }()
		publishers = append(publishers, publisher)
	}

	registry := domoutbox.NewRegistry()
	domorder.RegisterEvents(registry)
	relay := outbox.NewRelay(store.outbox, registry, outbox.RelayConfig{
		Interval:    cfg.Outbox.Interval,
		BatchSize:   cfg.Outbox.BatchSize,
		Lease:       cfg.Outbox.Lease,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	}, tel, publishers...).WithEventContext(workerpresentation.RecordContext(tel.Logger()))
	relay.Start(ctx)

	handler := httppresentation.NewHandler(httppresentation.UseCases{
		CreateOrder:   appOrder.NewCreateOrderUseCase(deps, settings, tel),
		UpdateStatus:  appOrder.NewUpdateStatusUseCase(deps, tel),
		CancelOrder:   appOrder.NewCancelOrderUseCase(deps, settings.CancelPolicy, tel),
		Queries:       appOrder.NewQueries(store.orders, tel),
		UpdatePayment: appPayment.NewUpdatePaymentStatusUseCase(store.orders, store.tx, store.outbox, ids, tel),
	}, httppresentation.Options{
		CallbackRPS:   cfg.HTTP.CallbackRPS,
		CallbackBurst: cfg.HTTP.CallbackBurst,
		Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	}, tel)

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Router(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	go func() {
		systemLogger.Info("http_server_start",
			zap.String("addr", server.Addr),
			zap.String("storage", cfg.Storage.Driver),
		)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			systemLogger.Error("http_server_error",
				zap.Error(err),
			)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error",
			zap.Error(err),
		)
	} else {
		systemLogger.Info("http_server_stopped")
	}
	relay.Stop(shutdownCtx)
}

func notifier(cfg *config.Config, tel observability.Observability) appOrder.Notifier {
	if cfg.SMTP.Host == "" {
		return notification.NewLogSender(tel.Logger())
	}
	return notification.NewSMTPSender(notification.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     strconv.Itoa(cfg.SMTP.Port),
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
}

func shipments(cfg *config.Config) appOrder.ShipmentCreator {
	switch {
	case cfg.Shipment.BaseURL != "":
		return shipment.NewClient(shipment.Config{
			BaseURL:     cfg.Shipment.BaseURL,
			APIKey:      cfg.Shipment.APIKey,
			Timeout:     cfg.Shipment.Timeout,
			MaxFailures: cfg.Shipment.MaxFailures,
			OpenTimeout: cfg.Shipment.OpenTimeout,
		}, nil)
	case cfg.Shipment.Stub:
		return shipment.Stub{}
	default:
		return nil
	}
}
