// cmd/inventory-service/main.go
package main

import (
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"stockgate/internal/pkg/bootstrap"
	"stockgate/internal/pkg/logger"
	"stockgate/internal/pkg/metrics"
	"stockgate/internal/pkg/mq"
	"stockgate/internal/pkg/redis"
	"stockgate/internal/service/stock/application"
	"stockgate/internal/service/stock/domain/port"
	"stockgate/internal/service/stock/infrastructure"
	"stockgate/internal/service/stock/infrastructure/adapter"
	"stockgate/internal/service/stock/infrastructure/memory"
	"stockgate/internal/service/stock/infrastructure/rule"
	"stockgate/internal/service/stock/interfaces"
	"stockgate/internal/zookeeper"
)

// main 是应用的组装根：加载配置，创建并组装所有依赖，然后启动服务
func main() {
	cfg, err := bootstrap.LoadConfig(os.Getenv(bootstrap.ConfigEnv))
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to load config")
	}
	if err := logger.Init(logger.Config{Service: cfg.App.Name, Level: cfg.Log.Level, Pretty: cfg.Log.Pretty}); err != nil {
		logger.L().Fatal().Err(err).Msg("failed to init logger")
	}

	err = bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: cfg.App.Name,
		Config:      cfg,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) ([]func(context.Context) error, error) {
			return wire(appCtx, cfg)
		},
	})
	if err != nil {
		logger.L().Fatal().Err(err).Msg("service exited with error")
	}
}

// wire 组装所有组件。出错时也返回已创建资源的 closer，由 StartService 负责释放
func wire(appCtx bootstrap.AppCtx, cfg bootstrap.Config) ([]func(context.Context) error, error) {
	ctx := appCtx.Ctx
	var closers []func(context.Context) error
	onClose := func(f func() error) {
		closers = append(closers, func(context.Context) error { return f() })
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	tracer := otel.Tracer(cfg.App.Name)

	// 快速层
	rdb, err := redis.NewClient(ctx, redis.Config{
		Addrs:    cfg.Redis.Addrs,
		DB:       cfg.Redis.DB,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
	})
	if err != nil {
		return closers, err
	}
	onClose(rdb.Close)
	store, err := adapter.NewCounterRedisAdapter(ctx, rdb, cfg.Redis.RefundMarkerTTL)
	if err != nil {
		return closers, err
	}

	// 持久层
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN()), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return closers, errors.Wrap(err, "open mysql")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return closers, errors.Wrap(err, "get sql.DB")
	}
	sqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	onClose(sqlDB.Close)
	ledger := infrastructure.NewGormLedger(db)
	if cfg.MySQL.AutoMigrate {
		if err := ledger.AutoMigrate(ctx); err != nil {
			return closers, errors.Wrap(err, "auto migrate")
		}
	}

	// 消息队列
	taskWriter := mq.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.SettlementTopic)
	onClose(taskWriter.Close)
	dltWriter := mq.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.DeadLetterTopic)
	onClose(dltWriter.Close)
	failureHandler := mq.NewFailureHandler(dltWriter)

	var outcomes port.OutcomePublisher
	if cfg.Kafka.OutcomeTopic != "" {
		outcomeWriter := mq.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.OutcomeTopic)
		onClose(outcomeWriter.Close)
		outcomes = adapter.NewOutcomeKafkaAdapter(outcomeWriter)
	}

	policy, err := rule.NewCELOrderPolicy(cfg.Policy.Expression)
	if err != nil {
		return closers, err
	}

	var locker port.ItemLocker = memory.NewItemLocker()
	if len(cfg.Infra.Zookeeper.Servers) > 0 {
		conn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, cfg.Infra.Zookeeper.SessionTimeout)
		if err != nil {
			return closers, err
		}
		closers = append(closers, func(context.Context) error { conn.Close(); return nil })
		locker = adapter.NewItemLockerZkAdapter(conn, cfg.Infra.Zookeeper.LockRoot)
	} else {
		logger.Ctx(ctx).Warn().Msg("⚠️ No ZooKeeper servers configured, stock init is only serialized within this instance")
	}

	compensator := application.NewCompensator(store, m, application.CompensatorConfig{
		MaxAttempts: cfg.Compensation.MaxAttempts,
		Backoff:     cfg.Compensation.Backoff,
	})
	gate := application.NewReservationGate(
		store, adapter.NewTaskKafkaAdapter(taskWriter), policy, compensator, tracer, m, cfg.Settlement.MaxAttempts,
	)
	worker := application.NewSettlementWorker(
		ledger, store, compensator,
		adapter.NewFailureKafkaAdapter(failureHandler, cfg.Kafka.SettlementTopic),
		outcomes, tracer, m,
		application.WorkerConfig{
			AttemptTimeout: cfg.Settlement.AttemptTimeout,
			BackoffBase:    cfg.Settlement.BackoffBase,
		},
	)

	// worker 池：同一 consumer group 下的多个 reader，按分区并行
	for i := 0; i < cfg.Settlement.Workers; i++ {
		reader := mq.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.SettlementTopic, cfg.Kafka.GroupID)
		consumer := interfaces.NewSettlementConsumerAdapter(i, reader, worker, failureHandler)
		appCtx.Group.Go(func() error {
			defer reader.Close()
			return consumer.Run(ctx)
		})
	}

	dltReader := mq.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.DeadLetterTopic, cfg.Kafka.GroupID+"-dlt")
	dltConsumer := interfaces.NewDltConsumerAdapter(dltReader)
	appCtx.Group.Go(func() error {
		defer dltReader.Close()
		return dltConsumer.Run(ctx)
	})

	stock := application.NewStockService(store, ledger, locker, tracer)
	interfaces.NewStockHandler(gate, stock, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).RegisterRoutes(appCtx.Mux)

	logger.Ctx(ctx).Info().
		Int("workers", cfg.Settlement.Workers).
		Str("topic", cfg.Kafka.SettlementTopic).
		Msg("✅ Inventory service wired")
	return closers, nil
}
