package engine

import (
	"math"
	"strings"

	"github.com/celerix-dev/tenacity-audit/pkg/schema"
)

// ComputeKPIs derives the aggregate view over a (possibly filtered) record
// subset in one pass. An empty subset yields zeroes throughout; percentages
// never divide by zero.
func ComputeKPIs(records []schema.UserRecord) schema.KPISet {
	kpis := schema.KPISet{TotalVisible: len(records)}

	licenseUsers := map[string]int{}
	firstSeen := map[string]int{}
	order := 0

	for _, record := range records {
		switch record.Status {
		case schema.StatusKeep:
			kpis.KeepCount++
		case schema.StatusReview:
			kpis.ReviewCount++
		case schema.StatusDelete:
			kpis.DeleteCount++
		}
		if record.IsAdmin() {
			kpis.AdminCount++
		}
		if record.LastSignIn == nil {
			kpis.NeverSignedIn++
		}
		for _, license := range record.Licenses {
			if _, ok := firstSeen[license]; !ok {
				firstSeen[license] = order
				order++
			}
			licenseUsers[license]++
		}
	}

	// Top license: highest unique-user count, ties broken by whichever
	// license was encountered first.
	for license, count := range licenseUsers {
		switch {
		case count > kpis.TopLicenseUsers:
			kpis.TopLicense = license
			kpis.TopLicenseUsers = count
		case count == kpis.TopLicenseUsers && kpis.TopLicense != "" &&
			firstSeen[license] < firstSeen[kpis.TopLicense]:
			kpis.TopLicense = license
		}
	}

	if kpis.TotalVisible > 0 {
		kpis.TopLicenseShare = int(math.Round(
			100 * float64(kpis.TopLicenseUsers) / float64(kpis.TotalVisible)))
	}
	return kpis
}

// Filter selects the visible subset for the dashboard: free-text search over
// name/principal/mail, an optional status chip and the admins-only toggle.
func Filter(records []schema.UserRecord, query string, status schema.LifecycleStatus, adminsOnly bool) []schema.UserRecord {
	query = strings.ToLower(strings.TrimSpace(query))

	visible := make([]schema.UserRecord, 0, len(records))
	for _, record := range records {
		if status != "" && record.Status != status {
			continue
		}
		if adminsOnly && !record.IsAdmin() {
			continue
		}
		if query != "" && !matchesQuery(record, query) {
			continue
		}
		visible = append(visible, record)
	}
	return visible
}

func matchesQuery(record schema.UserRecord, query string) bool {
	return strings.Contains(strings.ToLower(record.DisplayName), query) ||
		strings.Contains(strings.ToLower(record.UserPrincipalName), query) ||
		strings.Contains(strings.ToLower(record.Mail), query)
}
