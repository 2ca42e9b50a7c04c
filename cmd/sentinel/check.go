package main

import (
	"context"
	"fmt"
	"time"

	"github.com/hairizuanbinnoorazman/ui-sentinel/storage"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check [start-url]",
	Short: "Validate configuration and tracker credentials without opening a browser",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	cfg, err := LoadConfig(configFile, envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if len(args) == 1 {
		cfg.StartURL = args[0]
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := newLogger(cfg)
	defer log.Close()
	out := cmd.OutOrStdout()

	backend, err := newBackend(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("oracle: %w", err)
	}
	fmt.Fprintf(out, "start url: %s\n", cfg.StartURL)
	fmt.Fprintf(out, "oracle:    %s (vision: %t)\n", backend.Name(), backend.SupportsVision())

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if store == nil {
		fmt.Fprintln(out, "storage:   disabled")
	} else {
		if err := storage.Check(ctx, store); err != nil {
			return err
		}
		fmt.Fprintf(out, "storage:   %s ok\n", cfg.Storage.Type)
	}

	tracker, err := newTracker(cfg)
	if err != nil {
		return fmt.Errorf("tracker: %w", err)
	}
	if tracker == nil {
		fmt.Fprintln(out, "tracker:   disabled")
		return nil
	}
	if err := tracker.ValidateConnection(ctx); err != nil {
		return fmt.Errorf("tracker: %w", err)
	}
	fmt.Fprintf(out, "tracker:   %s ok\n", cfg.Tracker.Provider)
	return nil
}
