package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/induction/app"
	"github.com/kilianp07/induction/config"
	"github.com/kilianp07/induction/infra/fleet"
	"github.com/kilianp07/induction/infra/logger"
)

var (
	cfgPath   string
	synthetic bool
)

var rootCmd = &cobra.Command{
	Use:          "induction",
	Short:        "Nightly trainset induction planner",
	RunE:         serve,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the planning API, nightly triggers and metrics",
	RunE:  serve,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	rootCmd.PersistentFlags().BoolVar(&synthetic, "synthetic", false, "plan the generated demonstration fleet")
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// loadConfig reads the configuration file. With --synthetic a missing file
// falls back to the defaults and the fleet source is replaced by the
// generated fleet.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if !synthetic || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = config.Default()
	}
	if synthetic {
		cfg.Planning.Fleet = fleet.Config{Kind: fleet.KindSynthetic}
		cfg.Planning.Fleet.SetDefaults()
	}
	return cfg, nil
}

func newService() (*app.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

// withService runs fn against a service built from the configuration.
func withService(fn func(ctx context.Context, svc *app.Service) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	svc, err := newService()
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return fn(ctx, svc)
}

func serve(cmd *cobra.Command, args []string) error {
	return withService(func(ctx context.Context, svc *app.Service) error {
		return svc.Run(ctx)
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
