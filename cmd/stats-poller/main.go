// cmd/stats-poller/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"scheduler-stats/internal/common/auth"
	"scheduler-stats/internal/common/config"
	apihttp "scheduler-stats/internal/common/http"
	"scheduler-stats/internal/common/logger"
	"scheduler-stats/internal/common/observability"
	"scheduler-stats/internal/poller"
	"scheduler-stats/internal/stats"
)

// retryWithBackoff attempts to execute a function with exponential backoff.
// It gives up early when ctx is done.
func retryWithBackoff(ctx context.Context, operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s aborted: %w", operationName, ctxErr)
		}

		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s aborted after %d attempts: %w", operationName, i+1, ctx.Err())
			case <-timer.C:
			}
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).With(map[string]interface{}{
		"app":         cfg.App.Name,
		"environment": cfg.App.Environment,
	})

	zapLog.Info("Starting stats poller...", zap.String("baseUrl", cfg.API.BaseURL))

	obs := observability.New(cfg.App.Name, nil)
	tp, err := observability.NewTracerProvider(cfg.App.Name, cfg.App.Version, cfg.Tracing.JaegerEndpoint, cfg.Tracing.SampleRatio)
	if err != nil {
		zapLog.Fatal("tracer provider init failed", zap.Error(err))
	}
	obs.WithTracerProvider(tp, cfg.App.Name)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Shared API client ---
	apiClient, err := newAPIClient(cfg, log)
	if err != nil {
		zapLog.Fatal("api client init failed", zap.Error(err))
	}
	service := stats.NewService(apiClient)

	// --- Snapshot sinks ---
	sinks, err := buildSinks(ctx, cfg, zapLog, log)
	if err != nil {
		zapLog.Fatal("snapshot sinks init failed", zap.Error(err))
	}
	defer sinks.Close()
	zapLog.Info("Snapshot sinks ready", zap.Int("count", sinks.fanout.Len()))

	// --- Health & Metrics Server ---
	srv := &http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           newMetricsMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Metrics.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Poller ---
	p := poller.New(poller.Config{
		Interval:    config.GetDuration(cfg.Poller.Interval),
		Concurrency: cfg.Poller.Concurrency,
		Plan: poller.Plan{
			Endpoints:       cfg.Poller.Endpoints,
			JobIDs:          cfg.Poller.JobIDs,
			ExecutionParams: stats.Params(cfg.Poller.ExecutionParams),
		},
	}, service, sinks.fanout, obs, log)

	if err := p.Run(ctx); err != nil {
		zapLog.Error("poller exited with error", zap.Error(err))
	}

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down metrics server", zap.Error(err))
	}

	zapLog.Info("Stats poller stopped gracefully")
}

func newAPIClient(cfg *config.Config, log logger.Logger) (*apihttp.Client, error) {
	opts := []apihttp.Option{
		apihttp.WithUserAgent(cfg.API.UserAgent),
		apihttp.WithLogger(log.With(map[string]interface{}{"component": "api-client"})),
	}

	switch {
	case cfg.API.Keycloak.Enabled():
		kc := cfg.API.Keycloak
		opts = append(opts, apihttp.WithTokenSource(
			auth.NewKeycloakTokenSource(kc.URL, kc.Realm, kc.ClientID, kc.ClientSecret),
		))
	case cfg.API.Token != "":
		opts = append(opts, apihttp.WithTokenSource(auth.StaticToken(cfg.API.Token)))
	}

	return apihttp.NewClient(cfg.API.BaseURL, config.GetDuration(cfg.API.Timeout), opts...)
}

func newMetricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
