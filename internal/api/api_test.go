package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/tenacity-audit/internal/engine"
	"github.com/celerix-dev/tenacity-audit/internal/i18n"
	"github.com/celerix-dev/tenacity-audit/internal/report"
	"github.com/celerix-dev/tenacity-audit/pkg/schema"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testHandler(t *testing.T) *Handler {
	t.Helper()

	signedIn := time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)
	state := engine.NewState(schema.Report{
		GeneratedAt:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		TenantID:      "tenant-1",
		ThresholdDays: 90,
		Users: []schema.UserRecord{
			{
				DisplayName:       "Alice Admin",
				UserPrincipalName: "alice@contoso.com",
				Mail:              "alice@contoso.com",
				Licenses:          []string{"Microsoft 365 E5"},
				LastSignIn:        &signedIn,
				Status:            schema.StatusKeep,
				AdminRoles:        []string{"Global Administrator"},
			},
			{
				DisplayName:       "Bob Builder",
				UserPrincipalName: "bob@contoso.com",
				Licenses:          []string{"Microsoft 365 E3"},
				Status:            schema.StatusReview,
			},
			{
				DisplayName:       "Carol Gone",
				UserPrincipalName: "carol@contoso.com",
				Licenses:          []string{"Microsoft 365 E3"},
				Status:            schema.StatusDelete,
				Overridden:        true,
			},
		},
	})
	return &Handler{State: state, Bundle: i18n.Pick("en")}
}

func doRequest(t *testing.T, h *Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	h.Router().ServeHTTP(rec, req)
	return rec
}

type recordsResponse struct {
	Records []schema.UserRecord `json:"records"`
	KPIs    schema.KPISet       `json:"kpis"`
}

func TestGetRecords_Unfiltered(t *testing.T) {
	rec := doRequest(t, testHandler(t), http.MethodGet, "/api/records")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp recordsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Records, 3)
	assert.Equal(t, 3, resp.KPIs.TotalVisible)
	assert.Equal(t, 1, resp.KPIs.KeepCount)
	assert.Equal(t, 1, resp.KPIs.AdminCount)
}

func TestGetRecords_StatusFilterScopesKPIs(t *testing.T) {
	rec := doRequest(t, testHandler(t), http.MethodGet, "/api/records?status=review")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp recordsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "bob@contoso.com", resp.Records[0].UserPrincipalName)

	// KPIs describe the visible subset, not the whole run.
	assert.Equal(t, 1, resp.KPIs.TotalVisible)
	assert.Equal(t, 0, resp.KPIs.KeepCount)
	assert.Equal(t, 1, resp.KPIs.ReviewCount)
}

func TestGetRecords_SearchAndAdminFilters(t *testing.T) {
	h := testHandler(t)

	rec := doRequest(t, h, http.MethodGet, "/api/records?q=bob")
	var resp recordsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "Bob Builder", resp.Records[0].DisplayName)

	rec = doRequest(t, h, http.MethodGet, "/api/records?admins=true")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "alice@contoso.com", resp.Records[0].UserPrincipalName)
}

func TestGetRecords_InvalidStatusIs400(t *testing.T) {
	rec := doRequest(t, testHandler(t), http.MethodGet, "/api/records?status=purge")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetKPIs(t *testing.T) {
	rec := doRequest(t, testHandler(t), http.MethodGet, "/api/kpis?status=delete")
	require.Equal(t, http.StatusOK, rec.Code)

	var kpis schema.KPISet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &kpis))
	assert.Equal(t, 1, kpis.TotalVisible)
	assert.Equal(t, 1, kpis.DeleteCount)
}

func TestToggleStatus_CyclesAndRefreshesKPIs(t *testing.T) {
	h := testHandler(t)

	rec := doRequest(t, h, http.MethodPost, "/api/records/bob@contoso.com/toggle")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Record schema.UserRecord `json:"record"`
		KPIs   schema.KPISet     `json:"kpis"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, schema.StatusDelete, resp.Record.Status)
	assert.Equal(t, 2, resp.KPIs.DeleteCount)
	assert.Equal(t, 0, resp.KPIs.ReviewCount)
}

func TestToggleStatus_UnknownUserIs404(t *testing.T) {
	rec := doRequest(t, testHandler(t), http.MethodPost, "/api/records/ghost@contoso.com/toggle")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDashboard_RendersHTML(t *testing.T) {
	rec := doRequest(t, testHandler(t), http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "License Lifecycle Report")
	assert.Contains(t, rec.Body.String(), "alice@contoso.com")
}

func TestListArchive(t *testing.T) {
	h := testHandler(t)

	// Without a configured archive the endpoint returns an empty list.
	rec := doRequest(t, h, http.MethodGet, "/api/archive")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	archive, err := report.NewArchive(t.TempDir())
	require.NoError(t, err)
	_, err = archive.Save(schema.Report{GeneratedAt: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	_, err = archive.Save(schema.Report{GeneratedAt: time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	h.Archive = archive
	rec = doRequest(t, h, http.MethodGet, "/api/archive")
	require.Equal(t, http.StatusOK, rec.Code)

	var names []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &names))
	assert.Equal(t, []string{
		"run-20240602-080000.json",
		"run-20240601-080000.json",
	}, names)
}

func TestRouter_CORSPreflight(t *testing.T) {
	rec := doRequest(t, testHandler(t), http.MethodOptions, "/api/records")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
