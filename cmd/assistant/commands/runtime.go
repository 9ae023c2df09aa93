package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"nlu-memory-assistant/internal/assistant"
	"nlu-memory-assistant/internal/common/config"
	"nlu-memory-assistant/internal/common/database"
	"nlu-memory-assistant/internal/common/logger"
	"nlu-memory-assistant/internal/common/observability"
)

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		cfg.App.MetricsAddr = addr
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) logger.Logger {
	// Chat output goes to stdout; logs default to stderr.
	return logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
}

// retryWithBackoff attempts operation with exponential backoff.
func retryWithBackoff(ctx context.Context, operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// session is a wired runtime plus the process-level resources around it.
type session struct {
	cfg     *config.Config
	log     logger.Logger
	rt      *assistant.Runtime
	redis   *database.RedisClient
	obs     *observability.Observability
	metrics *http.Server
}

func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg)
	ctx := commandContext(cmd)

	var rc *database.RedisClient
	err = retryWithBackoff(ctx, func() error {
		var err error
		rc, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := rc.Ping(pingCtx); err != nil {
			_ = rc.Close()
			return err
		}
		return nil
	}, 5, 500*time.Millisecond, log, "Redis connection")
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, log: log, redis: rc, obs: observability.New(cfg.App.Name)}

	s.rt, err = assistant.Build(ctx, cfg, log, assistant.Dependencies{Redis: rc, Observability: s.obs})
	if err != nil {
		s.Close()
		return nil, err
	}

	if cfg.App.MetricsAddr != "" {
		s.serveMetrics(cfg.App.MetricsAddr)
	}
	return s, nil
}

func (s *session) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s.metrics = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics server stopped", map[string]interface{}{"error": err.Error()})
		}
	}()
	s.log.Info("serving metrics", map[string]interface{}{"addr": addr})
}

func (s *session) Close() {
	if s.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = s.metrics.Shutdown(ctx)
		cancel()
	}
	if s.rt != nil {
		_ = s.rt.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	s.obs.Shutdown()
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
