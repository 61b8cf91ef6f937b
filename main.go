package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/finsight-core/server/internal/assistant/capability"
	"github.com/finsight-core/server/internal/assistant/graph"
	"github.com/finsight-core/server/internal/assistant/model"
	"github.com/finsight-core/server/internal/cache"
	"github.com/finsight-core/server/internal/core"
	"github.com/finsight-core/server/internal/finance"
	"github.com/finsight-core/server/internal/ratelimit"
	"github.com/finsight-core/server/internal/server"
	logx "github.com/finsight-core/server/pkg/logger"
	pkgredis "github.com/finsight-core/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the service, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`

	// Infrastructure
	Redis    pkgredis.Config
	Postgres finance.PostgresConfig

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Pipeline configs
	Classifier model.ClassifierModelConfig
	Response   model.ResponseModelConfig
	Prompt     model.ResponsePromptConfig
	Pipeline   model.PipelineConfig
	Cache      cache.Config
	RateLimit  ratelimit.Config
	Capability capability.Config
	Server     server.Config
}

func main() {
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	env := core.ParseEnvironment(envCfg.Environment)
	logx.Init(logx.LoggerOpts{Environment: env, Service: "finsight"})

	rdb, err := envCfg.Redis.New()
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to initialise Redis client")
	}
	defer rdb.Close()
	logx.Info().Msg("Connected to Redis")

	store, err := finance.NewPostgresStore(ctx, envCfg.Postgres)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to connect to Postgres")
	}
	defer store.Close()
	logx.Info().Msg("Connected to Postgres")

	exec := capability.NewExecutor(store, cache.New(rdb, envCfg.Cache), envCfg.Capability)

	runner, err := graph.BuildResponseGraph(ctx, graph.Config{
		APIKey:          envCfg.APIKey,
		BaseURL:         envCfg.BaseURL,
		ClassifierModel: envCfg.Classifier,
		ResponseModel:   envCfg.Response,
		ResponsePrompt:  envCfg.Prompt,
		Pipeline:        envCfg.Pipeline,
		Executor:        exec,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to build response graph")
	}

	auth, err := server.NewStaticTokenProvider(envCfg.Server.AuthTokens)
	if err != nil {
		logx.Fatal().Err(err).Msg("Invalid AUTH_TOKENS")
	}

	limiter := ratelimit.New(rdb, envCfg.RateLimit)
	srv := &http.Server{
		Addr:              envCfg.Server.Addr,
		Handler:           server.New(runner, limiter, auth, env),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logx.Info().Str("addr", envCfg.Server.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logx.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logx.Error().Err(err).Msg("Graceful shutdown failed")
	}
}
