package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resume-screener/internal/api/handler"
	"resume-screener/internal/api/router"
	"resume-screener/internal/config"
	"resume-screener/internal/logger"
	"resume-screener/internal/outbox"
	"resume-screener/internal/processor"
	"resume-screener/internal/storage"
	"resume-screener/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"
)

var version = "1.0.0" //nolint:gochecknoglobals

func main() {
	var configPath string
	var writeSample string
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径（为空时在默认位置查找）")
	pflag.StringVar(&writeSample, "write-config", "", "写出示例配置文件后退出")
	pflag.Parse()

	if writeSample != "" {
		if err := config.CreateSampleConfig(writeSample); err != nil {
			fmt.Fprintf(os.Stderr, "写出示例配置失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("示例配置已写入 %s\n", writeSample)
		return
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if closer := logger.Init(logger.Config(cfg.Logger)); closer != nil {
		defer closer.Close()
	}
	hlog.SetLogger(hertzadapter.From(logger.Logger))
	log := logger.Component("main")
	log.Info().Str("version", version).Msg("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.InitProvider(ctx, cfg.Tracing)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化链路追踪失败")
	}

	store, err := storage.NewStorage(ctx, cfg, logger.Component("storage"))
	if err != nil {
		log.Fatal().Err(err).Msg("初始化存储失败")
	}
	defer store.Close(log)

	components, err := processor.NewComponents(ctx, cfg, store, logger.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化处理组件失败")
	}

	var background []<-chan struct{}
	if components.Jobs != nil {
		workers := cfg.RabbitMQ.ConsumerWorkers
		if workers <= 0 {
			workers = 1
		}
		for i := 0; i < workers; i++ {
			done, err := store.RabbitMQ.StartConsumer(ctx, cfg.RabbitMQ.BatchQueue, cfg.RabbitMQ.PrefetchCount, components.Jobs.HandleMessage)
			if err != nil {
				log.Fatal().Err(err).Msg("启动批量排名消费者失败")
			}
			background = append(background, done)
		}
		log.Info().Int("workers", workers).Str("queue", cfg.RabbitMQ.BatchQueue).Msg("批量排名消费者已启动")
	}

	if store.MySQL != nil && store.RabbitMQ != nil {
		relay := outbox.NewMessageRelay(store.MySQL.DB(), store.RabbitMQ, logger.Component("outbox"),
			outbox.WithPollingInterval(config.GetDuration(cfg.RabbitMQ.RetryInterval, 5*time.Second)),
			outbox.WithMaxRetries(cfg.RabbitMQ.MaxRetries),
		)
		background = append(background, relay.Start(ctx))
		log.Info().Msg("消息中继服务已启动")
	}

	handlerOpts := []handler.HandlerOption{
		handler.WithMaxUploadBytes(int64(cfg.Server.MaxUploadMB) << 20),
		handler.WithHandlerLogger(logger.Component("http")),
	}
	if components.Jobs != nil {
		handlerOpts = append(handlerOpts, handler.WithJobRunner(components.Jobs))
	}
	if store.MySQL != nil {
		handlerOpts = append(handlerOpts, handler.WithHistory(store.MySQL))
	}
	if store.MinIO != nil {
		handlerOpts = append(handlerOpts, handler.WithReportLinker(store.MinIO))
	}
	screeningHandler := handler.NewScreeningHandler(components.Service, cfg.Ranking.FeedbackDir, handlerOpts...)

	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		// 批量上传时请求体包含多个文件
		server.WithMaxRequestBodySize(cfg.Server.MaxUploadMB<<20*8),
		server.WithExitWaitTime(5*time.Second),
		tracer,
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))
	h.Use(requestTimeout(time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second))
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		start := time.Now()
		ctx.Next(c)
		hlog.CtxInfof(c, "%s %s -> %d (%s)", ctx.Method(), ctx.Path(), ctx.Response.StatusCode(), time.Since(start))
	})

	router.RegisterRoutes(h, screeningHandler, cfg.Server.APIKeys)
	if len(cfg.Server.APIKeys) > 0 {
		log.Info().Int("keys", len(cfg.Server.APIKeys)).Msg("API Key 鉴权已启用")
	}

	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("HTTP 服务器启动中")
		if err := h.Run(); err != nil {
			log.Error().Err(err).Msg("HTTP 服务器退出")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("接收到终止信号，正在优雅退出...")

	// 先停止消费者与中继，正在处理的任务会被中断并重新入队
	cancel()
	for _, done := range background {
		<-done
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("服务器关闭失败")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("刷新链路数据失败")
	}
	log.Info().Msg("优雅退出完成")
}

// requestTimeout 为每个请求设置处理时限
func requestTimeout(d time.Duration) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		if d <= 0 {
			ctx.Next(c)
			return
		}
		c, cancel := context.WithTimeout(c, d)
		defer cancel()
		ctx.Next(c)
	}
}
