package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	config "github.com/assistanttechnology55/hackathon-phase3-backend/app/configs"
	"github.com/assistanttechnology55/hackathon-phase3-backend/app/core/interaction/cli"
	"github.com/assistanttechnology55/hackathon-phase3-backend/app/core/interaction/gateway"
	httpchannel "github.com/assistanttechnology55/hackathon-phase3-backend/app/core/interaction/http"
	"github.com/assistanttechnology55/hackathon-phase3-backend/app/core/metrics"
	"github.com/assistanttechnology55/hackathon-phase3-backend/app/core/oracle"
	"github.com/assistanttechnology55/hackathon-phase3-backend/app/core/orchestrator"
	"github.com/assistanttechnology55/hackathon-phase3-backend/app/core/store"
	"github.com/assistanttechnology55/hackathon-phase3-backend/app/core/tools"
	"github.com/assistanttechnology55/hackathon-phase3-backend/app/pkg/logger"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	if err := logger.Init("output/logs"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.Info("Todo Assistant starting...")

	cfgManager, err := config.NewManager(config.DefaultPath())
	if err != nil {
		logger.Error("Failed to load config: %v", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()

	database, err := store.NewSQLiteDB("output/db")
	if err != nil {
		logger.Error("Failed to initialize DB: %v", err)
		os.Exit(1)
	}
	defer database.Close()
	logger.Info("Database initialized successfully")

	taskStore := store.NewTaskStore(database)
	conversations := store.NewConversationLog(database)
	registry := tools.NewRegistry(taskStore)

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		logger.Error("OPENAI_API_KEY is not set")
		os.Exit(1)
	}
	brain := oracle.NewOpenAIOracle(oracle.OpenAIOptions{
		APIKey:          apiKey,
		BaseURL:         cfg.Oracle.BaseURL,
		Model:           cfg.Oracle.Model,
		DecideTimeout:   time.Duration(cfg.Oracle.DecideTimeoutSec) * time.Second,
		FinalizeTimeout: time.Duration(cfg.Oracle.FinalizeTimeoutSec) * time.Second,
	})

	orc := orchestrator.New(cfg.Agent.Name, brain, registry, conversations, cfg.Chat)
	m := metrics.New()
	orc.SetMetrics(m)

	gw := gateway.NewGateway(orc)

	tracer, err := gateway.NewTraceRecorder("output/traces")
	if err != nil {
		logger.Warn("Trace recorder disabled: %v", err)
	} else {
		gw.SetTraceRecorder(tracer)
	}

	cliChannel := cli.NewCLIChannel(cfg.Server.CLIUserID)
	gw.RegisterChannel(cliChannel)

	httpChannel := httpchannel.NewHTTPChannel(cfg.Server.Port)
	httpChannel.SetToolRegistry(registry)
	httpChannel.SetMetricsHandler(m.Handler())
	httpChannel.SetStatusProvider(func() map[string]interface{} {
		health := gw.HealthStatus()
		return map[string]interface{}{
			"started":             health.Started,
			"started_at":          health.StartedAt,
			"registered_channels": health.RegisteredChannels,
			"handler":             health.HandlerName,
			"processed_turns":     health.ProcessedTurns,
			"failed_turns":        health.FailedTurns,
			"last_turn_at":        health.LastTurnAt,
		}
	})
	gw.RegisterChannel(httpChannel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := gw.Start(ctx); err != nil {
			logger.Error("Gateway crashed: %v", err)
			os.Exit(1)
		}
	}()

	logger.Info("Todo Assistant is ready to serve.")
	fmt.Println("- CLI Interface:  Interactive")
	fmt.Printf("- HTTP Interface: http://localhost:%d/api/chat (POST)\n", cfg.Server.Port)
	fmt.Printf("- Metrics:        http://localhost:%d/metrics\n", cfg.Server.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal: %v. Shutting down...", sig)
	cancel()
}
