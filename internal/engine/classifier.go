// Package engine implements the lifecycle classification core: it joins
// directory users with sign-in, override and license lookups and derives the
// aggregate KPI view the report is built from.
package engine

import (
	"sort"
	"strings"
	"time"

	"github.com/celerix-dev/tenacity-audit/internal/catalog"
	"github.com/celerix-dev/tenacity-audit/pkg/schema"
)

// Options carry the classification parameters for one run.
type Options struct {
	// Now is the classification reference time; zero means time.Now. All
	// recency math happens in UTC.
	Now time.Time
	// ThresholdDays is the inactivity boundary; the comparison is inclusive
	// (exactly threshold days ago still counts as active).
	ThresholdDays int
	// SignInSkipped marks that sign-in evaluation never ran. Every user
	// without an override is then kept.
	SignInSkipped bool
}

// Inputs bundle the read-only lookups the classifier joins against.
type Inputs struct {
	Users      []schema.DirectoryUser
	SKUParts   map[string]string // skuId (lowercase) -> part number
	Catalog    *catalog.Catalog
	SignIns    schema.SignInLookup
	Overrides  schema.OverrideMap
	AdminRoles map[string][]string // lowercase upn -> role names
}

// Classify produces the final record set. The classification is ternary:
// computed statuses are only ever keep or review; delete enters the data
// solely through overrides (or later dashboard toggles).
//
// Users whose license set resolves to nothing are excluded entirely; that is
// the "licensed users only" filter, not an error.
func Classify(in Inputs, opts Options) []schema.UserRecord {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	cutoff := now.UTC().AddDate(0, 0, -opts.ThresholdDays)

	cat := in.Catalog
	if cat == nil {
		cat = catalog.Empty()
	}

	records := make([]schema.UserRecord, 0, len(in.Users))
	for _, user := range in.Users {
		licenses := resolveLicenses(user.AssignedSKUIDs, in.SKUParts, cat)
		if len(licenses) == 0 {
			continue
		}

		record := schema.UserRecord{
			DisplayName:       user.DisplayName,
			UserPrincipalName: user.UserPrincipalName,
			Mail:              user.Mail,
			Licenses:          licenses,
			AdminRoles:        in.AdminRoles[strings.ToLower(user.UserPrincipalName)],
		}

		if at, ok := in.SignIns.Lookup(user.UserPrincipalName, user.Mail); ok {
			utc := at.UTC()
			record.LastSignIn = &utc
		}

		record.Status = classify(record.LastSignIn, cutoff, opts.SignInSkipped)
		if status, ok := in.Overrides.Lookup(user.UserPrincipalName, user.Mail); ok {
			record.Status = status
			record.Overridden = true
		}

		records = append(records, record)
	}

	// Stable output order keeps re-runs byte-identical.
	sort.Slice(records, func(i, j int) bool {
		if records[i].DisplayName != records[j].DisplayName {
			return records[i].DisplayName < records[j].DisplayName
		}
		return records[i].UserPrincipalName < records[j].UserPrincipalName
	})
	return records
}

// classify applies the recency rules; override precedence is handled by the
// caller since it wins over everything here.
func classify(lastSignIn *time.Time, cutoff time.Time, skipped bool) schema.LifecycleStatus {
	if skipped {
		return schema.StatusKeep
	}
	if lastSignIn != nil && !lastSignIn.Before(cutoff) {
		return schema.StatusKeep
	}
	return schema.StatusReview
}

// resolveLicenses maps assigned SKU IDs through the subscribed-SKU table and
// the friendly-name catalog, de-duplicating the result.
func resolveLicenses(skuIDs []string, parts map[string]string, cat *catalog.Catalog) []string {
	seen := make(map[string]struct{}, len(skuIDs))
	licenses := make([]string, 0, len(skuIDs))
	for _, id := range skuIDs {
		name := cat.Resolve(id, parts)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		licenses = append(licenses, name)
	}
	sort.Strings(licenses)
	return licenses
}
