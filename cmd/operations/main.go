package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/newplayman/exchange-operations/internal/assembler"
	"github.com/newplayman/exchange-operations/internal/clients"
	"github.com/newplayman/exchange-operations/internal/config"
	"github.com/newplayman/exchange-operations/internal/events"
	"github.com/newplayman/exchange-operations/internal/fees"
	"github.com/newplayman/exchange-operations/internal/gateway"
	"github.com/newplayman/exchange-operations/internal/httpapi"
	"github.com/newplayman/exchange-operations/internal/logging"
	"github.com/newplayman/exchange-operations/internal/metrics"
	"github.com/newplayman/exchange-operations/internal/operations"
	"github.com/newplayman/exchange-operations/internal/ratelimit"
	"github.com/newplayman/exchange-operations/internal/wallets"
	"github.com/newplayman/exchange-operations/internal/watchdog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
)

var (
	configFile = flag.String("config", "config.yaml", "配置文件路径")
	logLevel   = flag.String("log", "", "日志级别 (debug, info, warn, error)，覆盖配置文件")
)

// version 由 -ldflags "-X main.version=..." 注入
var version = "dev"

// engineClient 撮合引擎传输层（gRPC 或 WS）
type engineClient interface {
	operations.MatchingEngine
	watchdog.Pinger
	io.Closer
}

func main() {
	flag.Parse()

	// 配置加载前先用控制台日志
	_ = logging.Setup(logging.Options{Level: levelOr(*logLevel, "info")})

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("加载配置失败")
	}

	if err := logging.Setup(logging.Options{
		Level:      levelOr(*logLevel, cfg.Log.Level),
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}); err != nil {
		log.Fatal().Err(err).Msg("初始化日志失败")
	}
	defer logging.Close()

	// 只有日志级别支持热更新；命令行指定时以命令行为准
	config.OnReload(func(c *config.Config) {
		if *logLevel == "" {
			logging.SetLevel(c.Log.Level)
		}
	})

	log.Info().
		Str("version", version).
		Str("transport", cfg.MatchingEngine.Transport).
		Bool("parallel_lookups", cfg.Pipeline.ParallelLookups).
		Msg("exchange-operations 启动中...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	accounts := clients.NewAccountsClient(serviceConfig(cfg.Accounts))
	feeClient := clients.NewFeesClient(serviceConfig(cfg.Fees))

	engine, err := newEngine(ctx, cfg.MatchingEngine)
	if err != nil {
		log.Fatal().Err(err).Msg("创建撮合引擎客户端失败")
	}
	defer engine.Close()

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.EventsEnabled() {
		publisher = events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic)
		log.Info().Strs("brokers", cfg.Events.Brokers).Str("topic", cfg.Events.Topic).Msg("操作事件发布到 Kafka")
	}
	defer publisher.Close()

	svc := operations.NewService(
		wallets.NewValidator(accounts),
		fees.NewResolver(feeClient),
		assembler.New(),
		engine,
		publisher,
		operations.Config{ParallelLookups: cfg.Pipeline.ParallelLookups},
	)

	wd := watchdog.NewWatchdog(watchdog.Config{
		PingInterval:      cfg.GetPingInterval(),
		FailureThreshold:  cfg.Watchdog.FailureThreshold,
		RecoveryThreshold: cfg.Watchdog.RecoveryThreshold,
	}, nil)
	wd.Register("accounts", accounts)
	wd.Register("fees", feeClient)
	wd.Register("matching_engine", engine)
	wd.Start(ctx)
	defer wd.Stop()

	if port, err := metrics.StartMetricsServer(cfg.Metrics.Port); err != nil {
		log.Error().Err(err).Msg("启动监控服务器失败")
	} else {
		log.Info().Int("port", port).Msg("监控服务器已启动")
	}

	server := httpapi.NewServer(cfg.Server.Listen, httpapi.NewHandler(svc, wd, httpapi.Options{
		BrokerHeader: cfg.Server.BrokerHeader,
		Version:      version,
	}))
	server.Start()

	log.Info().Str("listen", cfg.Server.Listen).Msg("exchange-operations 启动完成")

	// 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("收到退出信号，正在关闭...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP 服务关闭失败")
	}
	cancel()

	log.Info().Msg("exchange-operations 已关闭")
}

func levelOr(flagValue, fallback string) string {
	if flagValue != "" {
		return flagValue
	}
	return fallback
}

func newLimiter(rate float64, burst, max10s, max60s int) ratelimit.Limiter {
	if rate <= 0 {
		return nil
	}
	return ratelimit.NewCompositeLimiter(rate, burst, max10s, max60s)
}

func serviceConfig(c config.ServiceConfig) clients.ServiceConfig {
	return clients.ServiceConfig{
		BaseURL:    c.BaseURL,
		APIKey:     c.APIKey,
		APISecret:  c.APISecret,
		Timeout:    c.Timeout(),
		RetryCount: c.RetryCount,
		Limiter:    newLimiter(c.Rate, c.Burst, 0, 0),
	}
}

func newEngine(ctx context.Context, c config.MatchingEngineConfig) (engineClient, error) {
	limiter := newLimiter(c.Rate, c.Burst, c.Max10s, c.Max60s)
	switch c.Transport {
	case config.TransportWS:
		ws := gateway.NewWSClient(gateway.WSConfig{
			URL:        c.WSURL,
			APIKey:     c.APIKey,
			SecretKey:  c.APISecret,
			AckTimeout: c.AckTimeout(),
			Dialer: &websocket.Dialer{
				Proxy:            websocket.DefaultDialer.Proxy,
				HandshakeTimeout: c.DialTimeout(),
			},
			Limiter: limiter,
		})
		ws.Start(ctx)
		return ws, nil
	default:
		client, err := gateway.NewGRPCClient(gateway.GRPCConfig{
			Target:  c.Address,
			Timeout: c.AckTimeout(),
			Limiter: limiter,
			DialOptions: []grpc.DialOption{
				grpc.WithConnectParams(grpc.ConnectParams{
					Backoff:           backoff.DefaultConfig,
					MinConnectTimeout: c.DialTimeout(),
				}),
			},
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}
