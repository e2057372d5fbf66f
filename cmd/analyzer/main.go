package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roost-sandbox/roost/internal/analyzer"
	"github.com/roost-sandbox/roost/internal/log"
	"github.com/roost-sandbox/roost/internal/model"
	"github.com/roost-sandbox/roost/internal/plugin"
	"github.com/roost-sandbox/roost/internal/report"
	"github.com/roost-sandbox/roost/internal/reputation"

	// analysis packages register themselves into plugin.Default
	_ "github.com/roost-sandbox/roost/internal/packages/apk"
	_ "github.com/roost-sandbox/roost/internal/packages/browser"
	_ "github.com/roost-sandbox/roost/internal/packages/shell"

	// auxiliary modules register themselves into plugin.Default
	_ "github.com/roost-sandbox/roost/internal/auxiliary/evidence"
	_ "github.com/roost-sandbox/roost/internal/auxiliary/logcat"
	_ "github.com/roost-sandbox/roost/internal/auxiliary/screenshots"
)

var (
	configPath string // actual config file used
	config     model.Config

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
)

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is analysis.yaml in the working directory")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse the config, setup logging
	rootCmd.PersistentPreRunE = initAnalyzer

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(enrichCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("analyzer failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "analyzer",
	Short:        "In-guest supervisor running one analysis and reporting back to the host",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run command reads the configuration and supervises the analysis",
	RunE:  doRun,
}

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "enrich command fetches the VirusTotal reputation of the target",
	RunE:  doEnrich,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of the analyzer",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("analyzer: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config:   %s\n", configPath)
		}
		fmt.Printf("analyzer: %s\n", info.Main.Version)
		fmt.Printf("go:       %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:   %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:     %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:    %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func doRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	attrs := slog.Group("analyzer",
		slog.String("cmd", "run"),
		slog.String("run", uuid.New().String()),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	client, err := report.NewClient(config.Agent.URL)
	if err != nil {
		return err
	}

	a, err := analyzer.New(config, plugin.Default)
	if err != nil {
		return err
	}

	done := make(chan model.Outcome, 1)
	go func() {
		done <- a.Run(ctx)
	}()

	var outcome model.Outcome
	select {
	case outcome = <-done:
	case <-ctx.Done():
		// the host decided to end the run, report what we know
		outcome = model.Failure(ctx.Err(), config.Results)
	}

	// the completion report must go out even when ctx is already gone
	return client.Complete(context.WithoutCancel(ctx), outcome)
}

func doEnrich(cmd *cobra.Command, args []string) error {
	ctx := log.ContextAttrs(cmd.Context(), slog.Group("analyzer",
		slog.String("cmd", "enrich"),
		slog.Int("pid", os.Getpid()),
	))

	if config.VirusTotal == nil || !config.VirusTotal.Enabled {
		slog.InfoContext(ctx, "virustotal lookup is not enabled, nothing to do")
		return nil
	}

	client := reputation.New(*config.VirusTotal)

	var (
		rep reputation.Report
		err error
	)
	switch config.Category {
	case model.CategoryFile:
		sample := filepath.Join(config.Work, config.FileName)
		rep, err = client.FileReport(ctx, sample)
		if errors.Is(err, reputation.ErrNotScanned) {
			slog.InfoContext(ctx, "sample unknown to virustotal, submitting it")
			rep, err = client.FileScan(ctx, sample)
		}
	case model.CategoryURL:
		rep, err = client.URLReport(ctx, config.Target)
		if errors.Is(err, reputation.ErrNotScanned) {
			slog.InfoContext(ctx, "url unknown to virustotal, submitting it")
			rep, err = client.URLScan(ctx, config.Target)
		}
	default:
		return fmt.Errorf("unsupported category %q", config.Category)
	}
	if err != nil {
		return err
	}

	path := filepath.Join(config.Results, "reputation.json")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating reputation report: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("storing reputation report: %w", err)
	}

	slog.InfoContext(ctx, "reputation report stored",
		"path", path,
		"positives", rep.Summary.Positives,
	)
	return nil
}

func initAnalyzer(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("ANALYZERCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		configPath = "analysis.yaml"
	}

	var err error
	config, err = model.LoadConfigFile(configPath)
	if err != nil {
		for _, d := range model.CueErrDetails(err) {
			slog.Error(d)
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// --verbose has a precedence over config file
	if flagVerbose {
		config.Verbose = true
	}

	slog.SetDefault(log.New(config.Verbose))

	slog.Debug("analyzer run", "configPath", configPath)
	slog.Debug("analyzer run", "config", config)
	return nil
}
