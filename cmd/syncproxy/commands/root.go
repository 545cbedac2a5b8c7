// Package commands implements the syncproxy CLI.
package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/plannerhq/syncproxy/pkg/config"
	"github.com/plannerhq/syncproxy/pkg/logging"
	"github.com/plannerhq/syncproxy/pkg/queue"
	"github.com/plannerhq/syncproxy/pkg/worker"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "syncproxy",
	Short: "Offline cache and mutation-sync coordinator",
	Long: `syncproxy sits between the planner application and its origin server.
It serves reads from versioned cache tiers when the network is unreliable,
queues writes that fail to send, and syncs them once connectivity returns.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
}

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func run(ctx context.Context) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	defer redisClient.Close()

	q, err := queue.Open(cfg.QueueDir, cfg.RetryCeiling, logging.NewLogger("queue"))
	if err != nil {
		return fmt.Errorf("open mutation queue: %w", err)
	}
	defer q.Close()

	coordinator, err := worker.New(cfg, redisClient, q, logger)
	if err != nil {
		return fmt.Errorf("create coordinator: %w", err)
	}

	if err := coordinator.Start(ctx); err != nil {
		return fmt.Errorf("start coordinator: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           coordinator.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.ListenAddr).
			Str("origin", cfg.OriginURL).
			Str("version", cfg.Version).
			Msg("syncproxy listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Server shutdown incomplete")
	}
	if err := coordinator.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Pending work did not settle before shutdown")
	}

	return nil
}
