// Package history optionally persists audit runs to Postgres so lifecycle
// decisions can be tracked across runs. It is entirely additive; the report
// itself never depends on it.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/celerix-dev/tenacity-audit/pkg/schema"
)

var schemaNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Store writes audit runs into a dedicated Postgres schema, creating its
// tables on first use.
type Store struct {
	db         *sql.DB
	schemaName string
}

// Open connects to Postgres and ensures the audit tables exist.
func Open(ctx context.Context, url, schemaName string) (*Store, error) {
	schemaName = strings.TrimSpace(schemaName)
	if schemaName == "" {
		return nil, errors.New("history schema name is required")
	}
	if !schemaNameRe.MatchString(schemaName) {
		return nil, fmt.Errorf("invalid schema name: %s", schemaName)
	}

	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 12*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, schemaName: schemaName}
	if err := s.ensureSchema(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun stores the run summary and every user record in one transaction
// and returns the new run ID.
func (s *Store) SaveRun(ctx context.Context, r schema.Report) (string, error) {
	runID := uuid.New()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s.audit_runs (
			id, generated_at, tenant_id, threshold_days, sign_in_skipped,
			total_users, keep_count, review_count, delete_count,
			admin_count, never_signed_in, top_license, top_license_share
		) VALUES (
			$1,$2,$3,$4,$5,
			$6,$7,$8,$9,
			$10,$11,$12,$13
		)`, s.schemaName),
		runID,
		r.GeneratedAt.UTC(),
		nullString(r.TenantID),
		r.ThresholdDays,
		r.SignInSkipped,
		r.KPIs.TotalVisible,
		r.KPIs.KeepCount,
		r.KPIs.ReviewCount,
		r.KPIs.DeleteCount,
		r.KPIs.AdminCount,
		r.KPIs.NeverSignedIn,
		nullString(r.KPIs.TopLicense),
		r.KPIs.TopLicenseShare,
	)
	if err != nil {
		return "", err
	}

	insertUserSQL := fmt.Sprintf(`
		INSERT INTO %s.audit_user_records (
			id, run_id, user_principal_name, display_name, mail,
			licenses, last_sign_in, status, overridden, admin_roles
		) VALUES (
			$1,$2,$3,$4,$5,
			$6,$7,$8,$9,$10
		)`, s.schemaName)

	for _, user := range r.Users {
		var lastSignIn sql.NullTime
		if user.LastSignIn != nil {
			lastSignIn = sql.NullTime{Time: user.LastSignIn.UTC(), Valid: true}
		}
		_, err = tx.ExecContext(ctx, insertUserSQL,
			uuid.New(),
			runID,
			user.UserPrincipalName,
			nullString(user.DisplayName),
			nullString(user.Mail),
			strings.Join(user.Licenses, "; "),
			lastSignIn,
			string(user.Status),
			user.Overridden,
			nullString(strings.Join(user.AdminRoles, "; ")),
		)
		if err != nil {
			return "", err
		}
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	return runID.String(), nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, s.schemaName)); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.audit_runs (
			id uuid PRIMARY KEY,
			generated_at timestamptz NOT NULL,
			tenant_id text,
			threshold_days integer NOT NULL,
			sign_in_skipped boolean NOT NULL,
			total_users integer NOT NULL,
			keep_count integer NOT NULL,
			review_count integer NOT NULL,
			delete_count integer NOT NULL,
			admin_count integer NOT NULL,
			never_signed_in integer NOT NULL,
			top_license text,
			top_license_share integer NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		)`, s.schemaName))
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.audit_user_records (
			id uuid PRIMARY KEY,
			run_id uuid NOT NULL REFERENCES %s.audit_runs(id) ON DELETE CASCADE,
			user_principal_name text NOT NULL,
			display_name text,
			mail text,
			licenses text NOT NULL,
			last_sign_in timestamptz,
			status text NOT NULL,
			overridden boolean NOT NULL,
			admin_roles text,
			created_at timestamptz NOT NULL DEFAULT now()
		)`, s.schemaName, s.schemaName))
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s_audit_user_records_run_idx ON %s.audit_user_records (run_id)`,
		s.schemaName, s.schemaName))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s_audit_user_records_status_idx ON %s.audit_user_records (status)`,
		s.schemaName, s.schemaName))
	return err
}

func nullString(value string) sql.NullString {
	if strings.TrimSpace(value) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
