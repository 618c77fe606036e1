package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"khm-membership/internal/application"
	"khm-membership/internal/config"
	"khm-membership/internal/infra/logging"
)

var Version = "dev"

var (
	cfgPath string
	devMode bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "khmctl",
		Short:        "Operate the KHM membership service from the command line",
		Version:      Version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "developer mode")

	rootCmd.AddCommand(queueCmd())
	rootCmd.AddCommand(tasksCmd())
	rootCmd.AddCommand(emailCmd())
	rootCmd.AddCommand(userCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withContainer loads config, wires the container and runs fn with a
// signal-aware context.
func withContainer(fn func(ctx context.Context, c *application.Container) error) error {
	cfg, err := config.LoadConfig(cfgPath, devMode)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, cleanup, err := application.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	// Billing notices raised by the CLI still go through the pool.
	c.Pool.Start(context.Background())
	defer c.Pool.Stop()

	return fn(ctx, c)
}
