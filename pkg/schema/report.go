package schema

import "time"

// KPISet is a derived, single-pass view over a (possibly filtered) set of
// user records. It is never persisted on its own.
type KPISet struct {
	TotalVisible    int    `json:"total_visible"`
	KeepCount       int    `json:"keep_count"`
	ReviewCount     int    `json:"review_count"`
	DeleteCount     int    `json:"delete_count"`
	AdminCount      int    `json:"admin_count"`
	NeverSignedIn   int    `json:"never_signed_in"`
	TopLicense      string `json:"top_license,omitempty"`
	TopLicenseUsers int    `json:"top_license_users"`
	TopLicenseShare int    `json:"top_license_share"`
}

// Report bundles the classified records with their run-wide KPI view and the
// parameters that produced them.
type Report struct {
	GeneratedAt   time.Time    `json:"generated_at"`
	TenantID      string       `json:"tenant_id,omitempty"`
	ThresholdDays int          `json:"threshold_days"`
	SignInSkipped bool         `json:"sign_in_skipped"`
	Users         []UserRecord `json:"users"`
	KPIs          KPISet       `json:"kpis"`
	Warnings      []string     `json:"warnings,omitempty"`
}
