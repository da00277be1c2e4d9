package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/dealerscan/ingest-be/shared/logger"
)

// ingest-cron is the external timer for the ingest service: it POSTs the
// scheduling trigger on a cron cadence so the service itself never needs an
// internal scheduler thread.
func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	triggerURL := flag.String("url", envOr("INGEST_TRIGGER_URL", "http://localhost:8080/api/v1/ingest/run"), "Trigger endpoint URL")
	secret := flag.String("secret", os.Getenv("INGEST_TRIGGER_SECRET"), "Shared trigger secret")
	spec := flag.String("spec", envOr("INGEST_CRON_SPEC", "*/10 * * * *"), "Cron schedule")
	limit := flag.Int("limit", envOrInt("INGEST_BATCH_LIMIT", 0), "Batch limit (0 uses the service default)")
	flag.Parse()

	if *secret == "" {
		return fmt.Errorf("trigger secret is required (INGEST_TRIGGER_SECRET)")
	}

	appLogger := logger.NewDefault()

	c := cron.New()
	_, err := c.AddFunc(*spec, func() {
		trigger(appLogger.Logger, *triggerURL, *secret, *limit)
	})
	if err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", *spec, err)
	}

	c.Start()
	appLogger.Info("Ingest cron started",
		slog.String("url", *triggerURL),
		slog.String("spec", *spec),
		slog.Int("limit", *limit),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx := c.Stop()
	<-ctx.Done()

	appLogger.Info("Ingest cron stopped")
	return nil
}

// trigger fires one scheduling invocation and logs the returned summary
func trigger(log *slog.Logger, url, secret string, limit int) {
	body, _ := json.Marshal(map[string]int{"limit": limit})

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Error("Failed to build trigger request", slog.String("error", err.Error()))
		return
	}
	req.Header.Set("Authorization", "Bearer "+secret)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		log.Error("Trigger request failed", slog.String("error", err.Error()))
		return
	}
	defer resp.Body.Close()

	summary, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		log.Error("Trigger returned non-OK status",
			slog.String("status", resp.Status),
			slog.String("body", string(summary)),
		)
		return
	}

	log.Info("Batch triggered",
		slog.String("summary", string(summary)),
	)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
