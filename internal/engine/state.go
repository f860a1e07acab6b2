package engine

import (
	"errors"
	"strings"
	"sync"

	"github.com/celerix-dev/tenacity-audit/pkg/schema"
)

// ErrUserNotFound is returned when a toggle targets an unknown principal.
var ErrUserNotFound = errors.New("user not found")

// State is the thread-safe holder of a classified report for the dashboard
// daemon. Toggles mutate only this in-memory copy; the batch pipeline itself
// stays single-pass and immutable.
type State struct {
	mu     sync.RWMutex
	report schema.Report
}

// NewState wraps a finished report. The report's KPI set is recomputed so it
// is always consistent with the record set handed in.
func NewState(report schema.Report) *State {
	report.KPIs = ComputeKPIs(report.Users)
	return &State{report: report}
}

// Report returns a copy of the current report with run-wide KPIs.
func (s *State) Report() schema.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.report
	out.Users = append([]schema.UserRecord(nil), s.report.Users...)
	return out
}

// View returns the filtered visible subset plus KPIs recomputed over exactly
// that subset.
func (s *State) View(query string, status schema.LifecycleStatus, adminsOnly bool) ([]schema.UserRecord, schema.KPISet) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visible := Filter(s.report.Users, query, status, adminsOnly)
	return visible, ComputeKPIs(visible)
}

// Toggle cycles the status of one user (keep -> review -> delete -> keep)
// and refreshes the run-wide KPIs. The lookup is case-insensitive on the
// principal name.
func (s *State) Toggle(upn string) (schema.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(strings.TrimSpace(upn))
	for i := range s.report.Users {
		if strings.ToLower(s.report.Users[i].UserPrincipalName) != needle {
			continue
		}
		s.report.Users[i].Status = s.report.Users[i].Status.Cycle()
		s.report.KPIs = ComputeKPIs(s.report.Users)
		return s.report.Users[i], nil
	}
	return schema.UserRecord{}, ErrUserNotFound
}
