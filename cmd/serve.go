package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"courtsim/internal/api"
	"courtsim/internal/auth"
	"courtsim/internal/config"
	"courtsim/internal/redis"
	"courtsim/internal/scenario"
	"courtsim/internal/service/docket"
	"courtsim/internal/storage"
	"courtsim/internal/worker"
)

const shutdownGrace = 10 * time.Second

// NewServeCmd creates the HTTP server command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the hearing API over HTTP",
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "listen address (overrides basic_config.server_address)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	dbType := os.Getenv(config.EnvDatabase)
	if dbType == "" {
		dbType = "sqlite3"
	}
	logrus.WithField("db_type", dbType).Info("opening database")
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	// Create necessary tables: hearings, messages, hearing_tokens
	if err := storage.Migrate(db, dbType); err != nil {
		return err
	}

	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	scenarios, err := openScenarios(cfg)
	if err != nil {
		return err
	}
	logrus.WithField("count", scenarios.Len()).Info("scenarios loaded")

	dk, err := docket.NewService(db)
	if err != nil {
		return err
	}
	authService := auth.NewService(db, rdb, 24*time.Hour)
	manager := worker.NewManager(dk, scenarios, worker.ConfigFrom(cfg), rdb)
	defer manager.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dk.StartExpiredHearingCleaner(ctx,
		time.Duration(cfg.BasicConfig.CleanInterval)*time.Minute,
		time.Duration(cfg.BasicConfig.HearingTTL)*time.Minute,
		manager.Purge,
	)

	handlers := api.NewHandler(scenarios, dk, authService, manager, cfg)
	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.BasicConfig.ServerAddress
	}
	if addr == "" {
		addr = ":8090"
	}
	srv := &http.Server{Addr: addr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", addr).Info("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logrus.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openScenarios(cfg *config.Config) (*scenario.Store, error) {
	if f := cfg.BasicConfig.ScenarioFile; f != "" {
		return scenario.Open(f)
	}
	return scenario.Default()
}
