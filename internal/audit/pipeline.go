// Package audit wires the fetch, classification and aggregation stages into
// the single-pass pipeline both binaries run.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/celerix-dev/tenacity-audit/internal/catalog"
	"github.com/celerix-dev/tenacity-audit/internal/config"
	"github.com/celerix-dev/tenacity-audit/internal/engine"
	"github.com/celerix-dev/tenacity-audit/internal/graph"
	"github.com/celerix-dev/tenacity-audit/internal/override"
	"github.com/celerix-dev/tenacity-audit/internal/signin"
	"github.com/celerix-dev/tenacity-audit/pkg/schema"
)

// Run executes one audit. User enumeration is the only fatal stage; every
// enrichment source (SKU table, name catalog, sign-in logs, admin roles,
// overrides) independently degrades to empty data with a warning.
func Run(ctx context.Context, cfg *config.Config, source graph.DirectorySource, logger *slog.Logger) (schema.Report, error) {
	var warnings []string
	warn := func(stage string, err error) {
		logger.Warn("stage degraded, continuing with partial data",
			slog.String("stage", stage), slog.Any("err", err))
		warnings = append(warnings, fmt.Sprintf("%s unavailable: %v", stage, err))
	}

	users, err := source.ListLicensedUsers(ctx)
	if err != nil {
		return schema.Report{}, fmt.Errorf("user enumeration failed: %w", err)
	}
	logger.Info("enumerated licensed users", slog.Int("count", len(users)))

	skuParts, err := source.ListSubscribedSKUs(ctx)
	if err != nil {
		warn("subscribed SKUs", err)
		skuParts = map[string]string{}
	}

	cat, err := catalog.Fetch(ctx, cfg.Audit.CatalogURL, cfg.Audit.CatalogCache, logger)
	if err != nil {
		warn("license name catalog", err)
		cat = catalog.Empty()
	} else {
		logger.Info("loaded license catalog", slog.Int("products", cat.Len()))
	}

	adminRoles, err := source.ListAdminRoleMembers(ctx)
	if err != nil {
		warn("admin role membership", err)
		adminRoles = nil
	}

	overrides, err := override.Load(cfg.Audit.OverridesPath, logger)
	if err != nil {
		warn("decision overrides", err)
		overrides = schema.OverrideMap{}
	} else if len(overrides) > 0 {
		logger.Info("loaded decision overrides", slog.Int("count", len(overrides)))
	}

	aggregator := signin.New(source, logger)
	signins, err := aggregator.Aggregate(ctx, cfg.Audit.ThresholdDays, cfg.Audit.SkipSignIn)
	if err != nil {
		// Partial lookup data is still usable; users without an entry are
		// treated as never signed in.
		warn("sign-in activity", err)
	}

	records := engine.Classify(engine.Inputs{
		Users:      users,
		SKUParts:   skuParts,
		Catalog:    cat,
		SignIns:    signins.Lookup,
		Overrides:  overrides,
		AdminRoles: adminRoles,
	}, engine.Options{
		ThresholdDays: cfg.Audit.ThresholdDays,
		SignInSkipped: signins.Skipped,
	})

	report := schema.Report{
		GeneratedAt:   time.Now().UTC(),
		TenantID:      cfg.Graph.TenantID,
		ThresholdDays: cfg.Audit.ThresholdDays,
		SignInSkipped: signins.Skipped,
		Users:         records,
		KPIs:          engine.ComputeKPIs(records),
		Warnings:      warnings,
	}
	logger.Info("classification complete",
		slog.Int("licensed_users", report.KPIs.TotalVisible),
		slog.Int("keep", report.KPIs.KeepCount),
		slog.Int("review", report.KPIs.ReviewCount),
		slog.Int("delete", report.KPIs.DeleteCount))
	return report, nil
}
