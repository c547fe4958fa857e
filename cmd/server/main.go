package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vocaldocs/api/internal/app"
	"github.com/vocaldocs/api/internal/auth"
	"github.com/vocaldocs/api/internal/config"
	"github.com/vocaldocs/api/internal/middleware"
	"github.com/vocaldocs/api/internal/observability"
	"github.com/vocaldocs/api/internal/pipeline"
	"github.com/vocaldocs/api/internal/queue"
	"github.com/vocaldocs/api/internal/worker"
	ws "github.com/vocaldocs/api/internal/websocket"
)

// @title          VocalDocs API
// @version        1.0
// @description    Turns PDF documents and text into speech.
// @BasePath       /
// @securityDefinitions.apikey BearerAuth
// @in             header
// @name           Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("failed to load config")
	}

	log := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Server.LogLevel,
		Format:      cfg.Server.LogFormat,
		ServiceName: "vocaldocs-api",
	})

	ctx := context.Background()

	backends, err := app.NewBackends(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise backends")
	}

	hub := ws.NewHub(log)
	go hub.Run()

	// Cognito verifier (optional - falls back to HMAC dev tokens)
	var tokenVerifier auth.TokenVerifier
	if cfg.Cognito.Issuer != "" {
		verifier, err := auth.NewCognitoVerifier(&cfg.Cognito)
		if err != nil {
			log.Warn().Err(err).Msg("cognito verifier not initialised")
		} else {
			defer verifier.Close()
			tokenVerifier = verifier
		}
	}

	rateLimiter := middleware.NewRateLimiter(nil)
	var redisOpt asynq.RedisClientOpt
	var dispatcher pipeline.Dispatcher
	var inline *queue.InlineDispatcher

	switch cfg.Queue.Mode {
	case "asynq":
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis not available")
		}
		rateLimiter = middleware.NewRateLimiter(redisClient)

		redisOpt = asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
		asynqClient := asynq.NewClient(redisOpt)
		defer asynqClient.Close()
		dispatcher = queue.NewAsynqDispatcher(asynqClient)

	case "platform":
		publisher, err := backends.Publisher()
		if err != nil {
			log.Fatal().Err(err).Msg("platform mode needs AWS")
		}
		if cfg.SNS.TopicArn == "" {
			log.Fatal().Msg("platform mode needs SNS_TOPIC_ARN")
		}
		dispatcher = queue.NewSNSDispatcher(publisher, cfg.SNS.TopicArn)

	case "inline":
		inline = &queue.InlineDispatcher{Log: log}
		dispatcher = inline

	default:
		log.Fatal().Str("mode", cfg.Queue.Mode).Msg("unknown queue mode")
	}

	stages := app.NewStages(cfg, backends, dispatcher, hub, log)
	if inline != nil {
		inline.Stages = queue.Stages{
			Split:      stages.Splitter.Run,
			Extract:    stages.Extractor.Run,
			Synthesize: stages.Synthesizer.Run,
		}
	}

	fiberApp := app.NewHTTPApp(app.HTTPDeps{
		Config:      cfg,
		Backends:    backends,
		Dispatcher:  dispatcher,
		Hub:         hub,
		Verifier:    tokenVerifier,
		RateLimiter: rateLimiter,
		Log:         log,
	})

	var workerServer *asynq.Server
	if cfg.Queue.Mode == "asynq" {
		workerServer = newWorkerServer(cfg, redisOpt, log)
		pipelineWorker := worker.NewPipelineWorker(stages.Splitter, stages.Extractor, stages.Synthesizer, log)
		go func() {
			if err := runWorkerServer(workerServer, pipelineWorker); err != nil {
				log.Error().Err(err).Msg("asynq worker stopped")
			}
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("shutting down server")
		if workerServer != nil {
			workerServer.Shutdown()
		}
		if err := fiberApp.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Info().Str("addr", addr).Str("queue_mode", cfg.Queue.Mode).Msg("server starting")
	if err := fiberApp.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func newWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt, log zerolog.Logger) *asynq.Server {
	asynqLogLevel := asynq.InfoLevel
	switch observability.ParseLevel(cfg.Server.LogLevel) {
	case zerolog.TraceLevel, zerolog.DebugLevel:
		asynqLogLevel = asynq.DebugLevel
	case zerolog.WarnLevel:
		asynqLogLevel = asynq.WarnLevel
	case zerolog.ErrorLevel, zerolog.FatalLevel:
		asynqLogLevel = asynq.ErrorLevel
	}

	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Queue.Concurrency,
		Queues: map[string]int{
			queue.QueueName: 1,
		},
		LogLevel: asynqLogLevel,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
	})
}

func runWorkerServer(srv *asynq.Server, w *worker.PipelineWorker) error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskTypeSplit, w.ProcessSplit)
	mux.HandleFunc(queue.TaskTypeExtract, w.ProcessExtract)
	mux.HandleFunc(queue.TaskTypeSynthesize, w.ProcessSynthesize)

	return srv.Run(mux)
}
