// File path: cmd/auditlens/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/auditlens/auditlens/internal/api"
	"github.com/auditlens/auditlens/internal/common"
	"github.com/auditlens/auditlens/internal/jobs"
	"github.com/auditlens/auditlens/internal/llm"
	"github.com/auditlens/auditlens/internal/orchestrator"
)

func main() {
	logger := common.Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := godotenv.Load(); err != nil {
		logger.Warn("auditlens: .env file not loaded", "error", err)
	} else {
		logger.Info("auditlens: environment loaded from .env")
	}

	addr := flag.String("addr", envOr("AUDITLENS_ADDR", ":8081"), "listen address")
	dbPath := flag.String("db", envOr("JOBS_DB_PATH", defaultDBPath()), "path to the SQLite job database")
	workers := flag.Int("workers", envIntOr("AUDITLENS_WORKERS", 2), "number of evaluation workers")
	queueSize := flag.Int("queue-size", envIntOr("AUDITLENS_QUEUE_SIZE", 64), "pending job queue capacity")
	maxRefine := flag.Int("max-refine", envIntOr("AUDITLENS_MAX_REFINE", 2), "refinement attempts after each review stage")
	flag.Parse()

	logger.Info("auditlens: startup initiated", "addr", *addr, "db", *dbPath, "workers", *workers)

	provider := llm.NewProvider()
	logger.Info("auditlens: llm provider ready", "provider", provider.Name())

	engine := orchestrator.New(provider, orchestrator.Options{MaxRefine: *maxRefine})

	store, err := jobs.OpenSQLite(*dbPath)
	if err != nil {
		logger.Error("auditlens: job store initialization failed", "error", err)
		fmt.Println("job store error:", err)
		os.Exit(1)
	}
	defer store.Close()

	queue := jobs.NewMemoryQueue(*queueSize)
	worker := jobs.NewWorker(store, queue, api.NewJobRunner(engine), *workers)
	go func() {
		if err := worker.Start(ctx); err != nil {
			logger.Error("auditlens: worker pool stopped", "error", err)
		}
	}()

	cfg := api.DefaultConfig()
	cfg.Workers = *workers
	cfg.MaxRefine = *maxRefine

	server, err := api.NewServer(engine, provider, store, queue, worker, &cfg)
	if err != nil {
		logger.Error("auditlens: server construction failed", "error", err)
		fmt.Println("server error:", err)
		os.Exit(1)
	}

	logger.Info("auditlens: server listening", "addr", *addr, "health", "/healthz")
	fmt.Printf("Serving on %s\n", *addr)
	reachable := *addr
	if strings.HasPrefix(reachable, ":") {
		reachable = "localhost" + reachable
	}
	logger.Info("auditlens: verify reachability", "suggestion", fmt.Sprintf("curl http://%s/healthz", reachable))
	if err := http.ListenAndServe(*addr, server); err != nil {
		logger.Error("auditlens: server stopped", "error", err)
		fmt.Println("server stopped:", err)
	}
}

func defaultDBPath() string {
	return filepath.Join("data", "auditlens.db")
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
