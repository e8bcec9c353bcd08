// cmd/push-gateway/main.go
package main

import (
	"context"
	"net/http"
	"os"

	"stockgate/internal/pkg/bootstrap"
	"stockgate/internal/pkg/logger"
	"stockgate/internal/pkg/mq"
	"stockgate/internal/service/push"
)

// push-gateway 消费结算结果并通过 WebSocket 推送给在线用户
func main() {
	cfg, err := bootstrap.LoadPushGatewayConfig(os.Getenv(bootstrap.ConfigEnv))
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
			hub := push.NewHub()
			appCtx.Mux.HandleFunc("GET /ws", hub.ServeWs)
			appCtx.Mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

			// 每个网关实例独立消费全部结果，只推送给自己持有的连接
			group := cfg.Kafka.GroupID + "-push-" + hostname()
			reader := mq.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.OutcomeTopic, group)
			consumer := push.NewOutcomeConsumer(reader, hub)
			appCtx.Group.Go(func() error {
				defer reader.Close()
				return consumer.Run(appCtx.Ctx)
			})
			return nil, nil
		},
	})
	if err != nil {
		logger.L().Fatal().Err(err).Msg("service exited with error")
	}
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "local"
	}
	return name
}
