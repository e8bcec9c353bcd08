// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"stockgate/internal/pkg/logger"
	"stockgate/internal/pkg/nacos"
	"stockgate/internal/pkg/tracing"
)

// AppCtx 在注册路由时交给各服务，Group 用于挂载后台协程（如结算 worker）
type AppCtx struct {
	Ctx   context.Context
	Mux   *http.ServeMux
	Group *errgroup.Group
}

// AppInfo 包含了启动一个服务所需的所有特定信息
type AppInfo struct {
	ServiceName string
	Config      Config

	// RegisterHandlers 注册 HTTP 路由并启动后台任务，返回的 closer 在关停时按逆序执行
	RegisterHandlers func(appCtx AppCtx) ([]func(context.Context) error, error)
}

// StartService 封装了服务的通用启动和优雅关停逻辑，阻塞直到收到退出信号
func StartService(info AppInfo) error {
	cfg := info.Config
	log := logger.L()

	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint, cfg.Infra.Jaeger.SampleRatio)
	if err != nil {
		return errors.Wrap(err, "init tracer provider")
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	group, ctx := errgroup.WithContext(sigCtx)

	mux := http.NewServeMux()
	var closers []func(context.Context) error
	// release 按逆序关闭资源并关闭 TracerProvider，启动失败和正常关停共用
	release := func(ctx context.Context) {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](ctx); err != nil {
				log.Error().Err(err).Msg("Error closing resource")
			}
		}
		if err := tp.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Error shutting down tracer provider")
		}
	}
	abort := func(err error) error {
		stop()
		_ = group.Wait()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		release(shutdownCtx)
		return err
	}

	if info.RegisterHandlers != nil {
		closers, err = info.RegisterHandlers(AppCtx{Ctx: ctx, Mux: mux, Group: group})
		if err != nil {
			return abort(errors.Wrap(err, "register handlers"))
		}
	}

	var registry *nacos.Client
	var ip string
	if cfg.Infra.Nacos.Enabled {
		registry, err = nacos.NewClient(nacos.Config{
			ServerAddrs: cfg.Infra.Nacos.ServerAddrs,
			Namespace:   cfg.Infra.Nacos.Namespace,
			Group:       cfg.Infra.Nacos.Group,
		})
		if err != nil {
			return abort(errors.Wrap(err, "init nacos client"))
		}
		if ip, err = getOutboundIP(); err != nil {
			registry.Close()
			return abort(errors.Wrap(err, "get outbound ip"))
		}
		if err := registry.RegisterServiceInstance(info.ServiceName, ip, cfg.App.Port); err != nil {
			registry.Close()
			return abort(err)
		}
	}

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.App.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	group.Go(func() error {
		log.Info().Str("service", info.ServiceName).Int("port", cfg.App.Port).Msg("🚀 HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrapf(err, "listen on %s", server.Addr)
		}
		return nil
	})

	<-ctx.Done()
	log.Info().Str("service", info.ServiceName).Msg("Shutting down service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	// 先从注册中心摘除，再停止接收请求
	if registry != nil {
		if err := registry.DeregisterServiceInstance(info.ServiceName, ip, cfg.App.Port); err != nil {
			log.Error().Err(err).Msg("Error deregistering from Nacos")
		}
		registry.Close()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down http server")
	}

	runErr := group.Wait()
	release(shutdownCtx)

	log.Info().Str("service", info.ServiceName).Msg("✅ Service gracefully shut down")
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// getOutboundIP 返回本机对外通信使用的 IP，用于服务注册
func getOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
