package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/nikhil/creatortent/internal/app"
	"github.com/nikhil/creatortent/internal/config"
	"github.com/nikhil/creatortent/internal/database"
	"github.com/nikhil/creatortent/internal/logger"
	"github.com/nikhil/creatortent/internal/routes"
)

var log = logger.NewLogger("creatortent")

var rootCmd = &cobra.Command{
	Use:           "creatortent",
	Short:         "Shared workspace for creators and their managers",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, websocket hub and inbox sync schedule",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		return database.MigrateUp(db)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Roll back migrations, one step by default",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps := 1
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return fmt.Errorf("steps must be a positive integer, got %q", args[0])
			}
			steps = n
		}
		_, db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		return database.MigrateDown(db, steps)
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync every active mailbox once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, db, err := openDB()
		if err != nil {
			return err
		}
		c, err := app.New(ctx, cfg, db)
		if err != nil {
			db.Close()
			return err
		}
		defer c.Close()

		summary, err := c.Scheduler.RunOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "connections=%d succeeded=%d failed=%d inquiries=%d auto_replies=%d\n",
			summary.Connections, summary.Succeeded, summary.Failed, summary.Inquiries, summary.AutoReplies)
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(syncCmd)
}

func openDB() (*config.Config, *sqlx.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, db, err := openDB()
	if err != nil {
		return err
	}
	if err := database.MigrateUp(db); err != nil {
		db.Close()
		return err
	}

	c, err := app.New(ctx, cfg, db)
	if err != nil {
		db.Close()
		return err
	}
	defer c.Close()

	go c.Hub.Run(ctx)
	if err := c.Scheduler.Start(ctx, cfg.SyncSchedule); err != nil {
		return err
	}
	defer c.Scheduler.Stop()
	c.Limiter.StartCleanup(time.Minute, ctx.Done())

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           routes.RegisterAllRoutes(c),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server is running", "addr", cfg.HTTPAddr, "env", cfg.AppEnv)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
