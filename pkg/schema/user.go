// Package schema defines the canonical data structures shared across the
// Tenacity audit pipeline. Every directory payload is normalized into these
// shapes at the client boundary before any classification happens.
package schema

import (
	"strings"
	"time"
)

// LifecycleStatus is the closed tri-state recommendation for a licensed user.
type LifecycleStatus string

const (
	StatusKeep   LifecycleStatus = "keep"
	StatusReview LifecycleStatus = "review"
	StatusDelete LifecycleStatus = "delete"
)

// Valid reports whether the value is one of the three permitted statuses.
func (s LifecycleStatus) Valid() bool {
	switch s {
	case StatusKeep, StatusReview, StatusDelete:
		return true
	}
	return false
}

// Cycle returns the next status in the dashboard toggle order:
// keep -> review -> delete -> keep.
func (s LifecycleStatus) Cycle() LifecycleStatus {
	switch s {
	case StatusKeep:
		return StatusReview
	case StatusReview:
		return StatusDelete
	default:
		return StatusKeep
	}
}

// DirectoryUser is the normalized shape of a directory user as returned by
// the API client. SKU IDs are raw identifiers; friendly-name resolution is
// the classifier's job.
type DirectoryUser struct {
	DisplayName       string   `json:"display_name"`
	UserPrincipalName string   `json:"user_principal_name"`
	Mail              string   `json:"mail"`
	AccountEnabled    bool     `json:"account_enabled"`
	AssignedSKUIDs    []string `json:"assigned_sku_ids"`
}

// UserRecord is one classified row of the report. A record only exists when
// the user resolved to at least one license.
type UserRecord struct {
	DisplayName       string          `json:"display_name"`
	UserPrincipalName string          `json:"user_principal_name"`
	Mail              string          `json:"mail,omitempty"`
	Licenses          []string        `json:"licenses"`
	LastSignIn        *time.Time      `json:"last_sign_in,omitempty"`
	Status            LifecycleStatus `json:"status"`
	Overridden        bool            `json:"overridden"`
	AdminRoles        []string        `json:"admin_roles,omitempty"`
}

// IsAdmin reports whether the user holds at least one directory admin role.
func (u UserRecord) IsAdmin() bool {
	return len(u.AdminRoles) > 0
}

// SignInLookup maps a lowercase identity (principal name or mail) to the most
// recent sign-in observed inside the queried window.
type SignInLookup map[string]time.Time

// Record merges a sign-in event into the lookup, keeping the newest
// timestamp per identity. Empty identities and zero timestamps are dropped.
func (l SignInLookup) Record(identity string, at time.Time) {
	identity = strings.ToLower(strings.TrimSpace(identity))
	if identity == "" || at.IsZero() {
		return
	}
	if prev, ok := l[identity]; !ok || at.After(prev) {
		l[identity] = at
	}
}

// Lookup resolves the newest sign-in for any of the given identities, in
// order. Comparison is case-insensitive.
func (l SignInLookup) Lookup(identities ...string) (time.Time, bool) {
	for _, id := range identities {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" {
			continue
		}
		if at, ok := l[id]; ok {
			return at, true
		}
	}
	return time.Time{}, false
}

// OverrideMap maps a lowercase identity to a manually supplied lifecycle
// decision. Overrides always win over computed recency.
type OverrideMap map[string]LifecycleStatus

// Lookup resolves an override for any of the given identities, in order.
func (m OverrideMap) Lookup(identities ...string) (LifecycleStatus, bool) {
	for _, id := range identities {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" {
			continue
		}
		if status, ok := m[id]; ok {
			return status, true
		}
	}
	return "", false
}
