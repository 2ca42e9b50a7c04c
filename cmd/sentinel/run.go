package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hairizuanbinnoorazman/ui-sentinel/agent"
	"github.com/hairizuanbinnoorazman/ui-sentinel/browser"
	"github.com/hairizuanbinnoorazman/ui-sentinel/defect"
	"github.com/hairizuanbinnoorazman/ui-sentinel/executor"
	"github.com/hairizuanbinnoorazman/ui-sentinel/internal/uuidutil"
	"github.com/hairizuanbinnoorazman/ui-sentinel/observation"
	"github.com/hairizuanbinnoorazman/ui-sentinel/oracle"
	"github.com/hairizuanbinnoorazman/ui-sentinel/storage"
	"github.com/spf13/cobra"
)

var (
	runHeadless      bool
	runMaxIterations int
)

var runCmd = &cobra.Command{
	Use:   "run [start-url]",
	Short: "Explore a start page until interrupted",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAgent,
}

func init() {
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "run the browser without a window")
	runCmd.Flags().IntVarP(&runMaxIterations, "max-iterations", "n", 0, "stop after this many iterations (0 runs until interrupted)")
	rootCmd.AddCommand(runCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := LoadConfig(configFile, envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if len(args) == 1 {
		cfg.StartURL = args[0]
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = runHeadless
	}
	if cmd.Flags().Changed("max-iterations") {
		cfg.Agent.MaxIterations = runMaxIterations
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	log := newLogger(cfg)
	defer log.Close()

	runID := uuidutil.RunID()
	log.Info(ctx, "starting sentinel", map[string]interface{}{
		"version":   Version,
		"commit":    Commit,
		"date":      BuildDate,
		"run_id":    runID,
		"start_url": cfg.StartURL,
		"oracle":    cfg.Oracle.Provider,
		"tracker":   cfg.Tracker.Provider,
		"storage":   cfg.Storage.Type,
	})

	backend, err := newBackend(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create oracle backend: %w", err)
	}
	decider := oracle.NewClient(backend, cfg.Oracle.MinInterval, log)

	tracker, err := newTracker(cfg)
	if err != nil {
		return fmt.Errorf("failed to create issue tracker: %w", err)
	}
	if tracker == nil {
		log.Warn(ctx, "no issue tracker configured, defects will only be logged", nil)
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to create evidence storage: %w", err)
	}

	session, err := browser.New(browser.Options{
		Headless:          cfg.Browser.Headless,
		Width:             cfg.Browser.Width,
		Height:            cfg.Browser.Height,
		UserDataDir:       cfg.Browser.UserDataDir,
		ExecPath:          cfg.Browser.ExecPath,
		IgnoreCertErrors:  cfg.Browser.IgnoreCertErrors,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		OverlayIgnore:     cfg.Browser.OverlayIgnore,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn(context.Background(), "browser did not close cleanly", map[string]interface{}{"error": err.Error()})
		}
	}()

	reporter := defect.NewReporter(tracker, store, cfg.Noise, defect.Options{
		RunID:         runID,
		StartURL:      cfg.StartURL,
		Backend:       backend.Name(),
		SummaryPrefix: cfg.Tracker.SummaryPrefix,
		ProjectKey:    cfg.Tracker.Jira.ProjectKey,
		IssueType:     cfg.Tracker.Jira.IssueType,
		Repository:    cfg.Tracker.GitHub.Repository,
		Labels:        cfg.Tracker.Labels,
	}, log)
	if cfg.Agent.ConfirmDefects {
		reporter.WithConfirmer(decider)
	}

	loop := agent.NewLoop(agent.Config{
		StartURL:       cfg.StartURL,
		IterationDelay: cfg.Agent.IterationDelay,
		MaxIterations:  cfg.Agent.MaxIterations,
		StepTimeout:    cfg.Agent.StepTimeout,
		DecideTimeout:  cfg.Agent.DecideTimeout,
		Screenshot:     backend.SupportsVision() || store != nil,
		Rules:          cfg.Noise,
		HistorySteps:   cfg.Agent.HistorySteps,
		TestedLimit:    cfg.Agent.TestedLimit,
	}, agent.Deps{
		Page:     session,
		Observer: observation.NewCollector(session, cfg.Agent.CollectTimeout, observationLimits(cfg.Agent), log),
		Decider:  decider,
		Executor: executor.NewVisible(session, executor.Options{
			StartURL:    cfg.StartURL,
			Highlight:   cfg.Browser.HighlightDuration,
			SlowMo:      cfg.Browser.SlowMo,
			SettleDelay: cfg.Browser.SettleDelay,
		}, log),
		Reporter: reporter,
	}, log)

	return loop.Run(ctx)
}
