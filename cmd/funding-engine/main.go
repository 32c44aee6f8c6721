package main

import (
	"context"
	"flag"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"cinemoa/internal/pkg/bootstrap"
	"cinemoa/internal/pkg/clock"
	"cinemoa/internal/pkg/config"
	"cinemoa/internal/pkg/httpclient"
	"cinemoa/internal/pkg/mq"
	"cinemoa/internal/pkg/redis"
	"cinemoa/internal/service/funding/application"
	"cinemoa/internal/service/funding/infrastructure"
	"cinemoa/internal/service/funding/interfaces"
)

// main is the composition root: it builds every dependency once and hands
// the assembled engine to bootstrap.
func main() {
	configPath := flag.String("config", "configs/funding-engine.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()

	redisClient, err := redis.NewClient(cfg.Infra.Redis.Addr, cfg.Infra.Redis.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	db, err := infrastructure.NewMySQL(cfg.Infra.MySQL.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to mysql")
	}

	holdStore, err := infrastructure.NewRedisHoldStore(ctx, redisClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize hold store")
	}

	policy, err := infrastructure.NewCELOutcomePolicy()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize outcome policy")
	}

	eventWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.EventsTopic)
	defer eventWriter.Close()
	events := infrastructure.NewKafkaEventPublisher(eventWriter)

	tracer := otel.Tracer(cfg.App.ServiceName)
	gateway := infrastructure.NewHTTPTransferGateway(httpclient.NewClient(tracer), cfg.Infra.Banking.BaseURL)

	campaigns := infrastructure.NewGormCampaignRepository(db)
	payments := infrastructure.NewGormPaymentRepository(db)
	transfers := infrastructure.NewGormTransferRepository(db)

	clk := clock.NewSystem()

	settlement := application.NewSettlementService(transfers, payments, campaigns, gateway, events, application.SettlementConfig{
		MaxAttempts:     cfg.Funding.TransferMaxAttempts,
		TransferTimeout: cfg.Funding.TransferTimeout.Std(),
		BackoffBase:     cfg.Funding.RetryBackoffBase.Std(),
		SourceAccount:   cfg.Infra.Banking.SourceAccount,
	}, clk, tracer)
	lifecycle := application.NewLifecycleService(campaigns, payments, holdStore, policy, settlement, events, clk, tracer)
	holds := application.NewHoldService(holdStore, campaigns, payments, events, cfg.Funding.HoldTTL.Std(), clk, tracer)
	scheduler := application.NewScheduler(campaigns, lifecycle, settlement, cfg.Funding.TickInterval.Std(), clk, tracer)

	handler := interfaces.NewFundingHandler(holds, lifecycle)

	bootstrap.StartService(cfg, bootstrap.AppInfo{
		ServiceName: cfg.App.ServiceName,
		Port:        cfg.App.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		Workers: []bootstrap.Worker{
			scheduler.Run,
			holds.RunExpiryListener,
		},
	})
}
