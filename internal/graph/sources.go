package graph

import (
	"context"
	"time"

	"github.com/celerix-dev/tenacity-audit/pkg/schema"
)

// --- Functional Interfaces (Interface Segregation) ---

// UserSource enumerates licensed directory users. This is the one mandatory
// data source of the pipeline.
type UserSource interface {
	ListLicensedUsers(ctx context.Context) ([]schema.DirectoryUser, error)
}

// SKUSource maps subscribed SKU IDs to part numbers.
type SKUSource interface {
	ListSubscribedSKUs(ctx context.Context) (map[string]string, error)
}

// SignInEvent is one (identity, timestamp) pair from the audit log.
type SignInEvent struct {
	UserPrincipalName string
	CreatedAt         time.Time
}

// SignInSource yields sign-in events inside one bounded time window.
type SignInSource interface {
	ListSignIns(ctx context.Context, from, to time.Time) ([]SignInEvent, error)
}

// RoleSource yields directory admin role membership, keyed by lowercase
// principal name. Display-only; never feeds classification.
type RoleSource interface {
	ListAdminRoleMembers(ctx context.Context) (map[string][]string, error)
}

// DirectorySource is the full contract the audit pipeline consumes. The
// Client implements it; tests substitute fakes per segregated interface.
type DirectorySource interface {
	UserSource
	SKUSource
	SignInSource
	RoleSource
}
