// Package api exposes the dashboard daemon's HTTP surface: the rendered
// dashboard page plus a small JSON API for filtered records, KPIs and
// status toggles.
package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/tenacity-audit/internal/engine"
	"github.com/celerix-dev/tenacity-audit/internal/i18n"
	"github.com/celerix-dev/tenacity-audit/internal/report"
	"github.com/celerix-dev/tenacity-audit/pkg/schema"
)

type Handler struct {
	State   *engine.State
	Archive *report.Archive // optional
	Bundle  i18n.Bundle
}

// Dashboard renders the interactive HTML dashboard from the current state.
func (h *Handler) Dashboard(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := report.RenderHTML(c.Writer, h.State.Report(), h.Bundle); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// GetRecords returns the filtered visible subset with KPIs over exactly
// that subset. Filters: q (search text), status (keep|review|delete),
// admins (true/1).
func (h *Handler) GetRecords(c *gin.Context) {
	status, ok := statusFilter(c.Query("status"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
		return
	}
	records, kpis := h.State.View(c.Query("q"), status, boolQuery(c.Query("admins")))
	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"kpis":    kpis,
	})
}

// GetKPIs returns only the KPI view for the filtered subset.
func (h *Handler) GetKPIs(c *gin.Context) {
	status, ok := statusFilter(c.Query("status"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
		return
	}
	_, kpis := h.State.View(c.Query("q"), status, boolQuery(c.Query("admins")))
	c.JSON(http.StatusOK, kpis)
}

// ToggleStatus cycles one user's status and returns the changed record plus
// the refreshed run-wide KPIs.
func (h *Handler) ToggleStatus(c *gin.Context) {
	record, err := h.State.Toggle(c.Param("upn"))
	if err != nil {
		if errors.Is(err, engine.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"record": record,
		"kpis":   h.State.Report().KPIs,
	})
}

// ListArchive returns archived run snapshots, newest first.
func (h *Handler) ListArchive(c *gin.Context) {
	if h.Archive == nil {
		c.JSON(http.StatusOK, []string{})
		return
	}
	names, err := h.Archive.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, names)
}

// Router assembles the gin engine with CORS headers for the API group.
func (h *Handler) Router() *gin.Engine {
	r := gin.Default()

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept-Encoding")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	r.GET("/", h.Dashboard)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/records", h.GetRecords)
		apiGroup.GET("/kpis", h.GetKPIs)
		apiGroup.POST("/records/:upn/toggle", h.ToggleStatus)
		apiGroup.GET("/archive", h.ListArchive)
	}
	return r
}

func statusFilter(raw string) (schema.LifecycleStatus, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return "", true
	}
	status := schema.LifecycleStatus(raw)
	return status, status.Valid()
}

func boolQuery(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
