// Package report turns classified records into the deliverable artifacts:
// the self-contained HTML dashboard, JSON and CSV exports, and the on-disk
// run archive.
package report

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"strings"
	"time"

	"github.com/celerix-dev/tenacity-audit/internal/i18n"
	"github.com/celerix-dev/tenacity-audit/pkg/schema"
)

//go:embed dashboard.html.tmpl
var dashboardSrc string

var dashboardTmpl = template.Must(
	template.New("dashboard").Funcs(template.FuncMap{
		"joinLicenses": func(licenses []string) string {
			return strings.Join(licenses, ", ")
		},
		"joinRoles": func(roles []string) string {
			return strings.Join(roles, ", ")
		},
		"fmtTime": func(t *time.Time) string {
			if t == nil {
				return ""
			}
			return t.UTC().Format("2006-01-02 15:04")
		},
		"fmtDate": func(t time.Time) string {
			return t.UTC().Format("2006-01-02 15:04 UTC")
		},
	}).Parse(dashboardSrc))

type dashboardData struct {
	B i18n.Bundle
	R schema.Report
}

// RenderHTML writes the interactive dashboard. All interactivity (search,
// status chips, badge toggles, KPI recompute) lives in the artifact itself;
// the rendered state is never written back anywhere.
func RenderHTML(w io.Writer, r schema.Report, b i18n.Bundle) error {
	return dashboardTmpl.Execute(w, dashboardData{B: b, R: r})
}

// WriteHTML renders the dashboard to a file.
func WriteHTML(path string, r schema.Report, b i18n.Bundle) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create %s: %w", path, err)
	}
	defer file.Close()
	return RenderHTML(file, r, b)
}
