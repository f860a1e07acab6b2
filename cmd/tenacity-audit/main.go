// Command tenacity-audit runs one license lifecycle audit and writes the
// dashboard and exports to disk.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/celerix-dev/tenacity-audit/internal/audit"
	"github.com/celerix-dev/tenacity-audit/internal/config"
	"github.com/celerix-dev/tenacity-audit/internal/graph"
	"github.com/celerix-dev/tenacity-audit/internal/history"
	"github.com/celerix-dev/tenacity-audit/internal/i18n"
	"github.com/celerix-dev/tenacity-audit/internal/report"
	"github.com/celerix-dev/tenacity-audit/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	threshold := flag.Int("threshold", 0, "Inactivity threshold in days (1-3650, default 90)")
	overrides := flag.String("overrides", "", "Path to decision override CSV")
	skipSignIn := flag.Bool("skip-signin", false, "Skip sign-in lookup; all users satisfy recency")
	lang := flag.String("lang", "", "Report language (e.g. en, de)")
	htmlOut := flag.String("out", "", "HTML dashboard output path")
	jsonOut := flag.String("json", "", "Optional JSON report output path")
	csvOut := flag.String("csv", "", "Optional decision CSV output path")
	archiveDir := flag.String("archive-dir", "", "Optional directory for run snapshots")
	dbEnabled := flag.Bool("db", false, "Store the run in Postgres (requires TENACITY_DATABASE_URL or DATABASE_URL)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		exitWithError(err)
	}
	applyFlags(cfg, *threshold, *overrides, *skipSignIn, *lang, *htmlOut, *jsonOut, *csvOut, *archiveDir)
	if err := cfg.Validate(); err != nil {
		exitWithError(err)
	}

	logger := telemetry.NewLogger(os.Stderr, cfg.Logging.Level)
	ctx := context.Background()

	client := graph.NewClient(graph.Config{
		TenantID:     cfg.Graph.TenantID,
		ClientID:     cfg.Graph.ClientID,
		ClientSecret: cfg.Graph.ClientSecret,
		BaseURL:      cfg.Graph.BaseURL,
		LoginURL:     cfg.Graph.LoginURL,
		Timeout:      cfg.Graph.Timeout,
	}, logger)

	result, err := audit.Run(ctx, cfg, client, logger)
	if err != nil {
		logger.Error("audit failed, no report produced", slog.Any("err", err))
		os.Exit(1)
	}

	bundle := i18n.Pick(cfg.Audit.Language)
	if err := report.WriteHTML(cfg.Output.HTMLPath, result, bundle); err != nil {
		exitWithError(err)
	}
	fmt.Printf("Dashboard saved to %s\n", cfg.Output.HTMLPath)

	if cfg.Output.JSONPath != "" {
		if err := report.WriteJSON(cfg.Output.JSONPath, result); err != nil {
			exitWithError(err)
		}
		fmt.Printf("JSON report saved to %s\n", cfg.Output.JSONPath)
	}
	if cfg.Output.CSVPath != "" {
		if err := report.WriteDecisionsCSV(cfg.Output.CSVPath, result); err != nil {
			exitWithError(err)
		}
		fmt.Printf("Decision CSV saved to %s\n", cfg.Output.CSVPath)
	}

	if cfg.Output.ArchiveDir != "" {
		archive, err := report.NewArchive(cfg.Output.ArchiveDir)
		if err != nil {
			exitWithError(err)
		}
		name, err := archive.Save(result)
		if err != nil {
			exitWithError(err)
		}
		fmt.Printf("Run snapshot archived as %s\n", name)
	}

	if *dbEnabled {
		if cfg.Database.URL == "" {
			exitWithError(fmt.Errorf("database URL missing; set TENACITY_DATABASE_URL or DATABASE_URL"))
		}
		store, err := history.Open(ctx, cfg.Database.URL, cfg.Database.Schema)
		if err != nil {
			exitWithError(err)
		}
		defer store.Close()
		runID, err := store.SaveRun(ctx, result)
		if err != nil {
			exitWithError(err)
		}
		fmt.Printf("Stored audit run in Postgres (run_id=%s)\n", runID)
	}
}

// applyFlags lets explicit CLI flags win over file/env configuration.
func applyFlags(cfg *config.Config, threshold int, overrides string, skipSignIn bool, lang, htmlOut, jsonOut, csvOut, archiveDir string) {
	if threshold != 0 {
		cfg.Audit.ThresholdDays = threshold
	}
	if overrides != "" {
		cfg.Audit.OverridesPath = overrides
	}
	if skipSignIn {
		cfg.Audit.SkipSignIn = true
	}
	if lang != "" {
		cfg.Audit.Language = lang
	}
	if htmlOut != "" {
		cfg.Output.HTMLPath = htmlOut
	}
	if jsonOut != "" {
		cfg.Output.JSONPath = jsonOut
	}
	if csvOut != "" {
		cfg.Output.CSVPath = csvOut
	}
	if archiveDir != "" {
		cfg.Output.ArchiveDir = archiveDir
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
