package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celerix-dev/tenacity-audit/internal/catalog"
	"github.com/celerix-dev/tenacity-audit/pkg/schema"
)

var testNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

const (
	skuE3  = "05e9a617-0261-4cee-bb44-138d3ef5d965"
	skuE5  = "06ebc4ee-1bb5-47dd-8120-11324bc54e06"
	skuOdd = "deadbeef-0000-0000-0000-000000000000"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Parse([]byte(
		"Product_Display_Name,String_Id,GUID\n" +
			"Microsoft 365 E3,SPE_E3," + skuE3 + "\n" +
			"Microsoft 365 E5,SPE_E5," + skuE5 + "\n"))
	require.NoError(t, err)
	return cat
}

func signedInAt(t time.Time) schema.SignInLookup {
	return schema.SignInLookup{"alice@contoso.com": t}
}

func baseInputs(cat *catalog.Catalog) Inputs {
	return Inputs{
		Users: []schema.DirectoryUser{{
			DisplayName:       "Alice Adams",
			UserPrincipalName: "alice@contoso.com",
			Mail:              "alice.adams@contoso.com",
			AssignedSKUIDs:    []string{skuE3},
		}},
		Catalog: cat,
	}
}

func TestClassify_RecencyBoundary(t *testing.T) {
	cat := testCatalog(t)

	tests := []struct {
		name       string
		lastSignIn time.Time
		want       schema.LifecycleStatus
	}{
		{"active 17 days ago", time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC), schema.StatusKeep},
		{"stale 92 days ago", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), schema.StatusReview},
		{"exactly on the boundary", testNow.AddDate(0, 0, -90), schema.StatusKeep},
		{"one second past the boundary", testNow.AddDate(0, 0, -90).Add(-time.Second), schema.StatusReview},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInputs(cat)
			in.SignIns = signedInAt(tt.lastSignIn)

			records := Classify(in, Options{Now: testNow, ThresholdDays: 90})
			require.Len(t, records, 1)
			assert.Equal(t, tt.want, records[0].Status)
		})
	}
}

func TestClassify_NeverSignedInIsReview(t *testing.T) {
	in := baseInputs(testCatalog(t))
	in.SignIns = schema.SignInLookup{}

	records := Classify(in, Options{Now: testNow, ThresholdDays: 90})
	require.Len(t, records, 1)
	assert.Equal(t, schema.StatusReview, records[0].Status)
	assert.Nil(t, records[0].LastSignIn)
}

func TestClassify_SkipKeepsEveryone(t *testing.T) {
	in := baseInputs(testCatalog(t))

	records := Classify(in, Options{Now: testNow, ThresholdDays: 90, SignInSkipped: true})
	require.Len(t, records, 1)
	assert.Equal(t, schema.StatusKeep, records[0].Status)
}

func TestClassify_OverrideWinsOverRecency(t *testing.T) {
	in := baseInputs(testCatalog(t))
	// Signed in yesterday, overridden to delete anyway.
	in.SignIns = signedInAt(testNow.AddDate(0, 0, -1))
	in.Overrides = schema.OverrideMap{"alice@contoso.com": schema.StatusDelete}

	records := Classify(in, Options{Now: testNow, ThresholdDays: 90})
	require.Len(t, records, 1)
	assert.Equal(t, schema.StatusDelete, records[0].Status)
	assert.True(t, records[0].Overridden)
}

func TestClassify_OverrideMatchesByMailSecond(t *testing.T) {
	in := baseInputs(testCatalog(t))
	in.Overrides = schema.OverrideMap{"alice.adams@contoso.com": schema.StatusKeep}

	records := Classify(in, Options{Now: testNow, ThresholdDays: 90})
	require.Len(t, records, 1)
	assert.Equal(t, schema.StatusKeep, records[0].Status)
	assert.True(t, records[0].Overridden)
}

func TestClassify_UnlicensedUserExcluded(t *testing.T) {
	in := baseInputs(testCatalog(t))
	in.Users = append(in.Users, schema.DirectoryUser{
		DisplayName:       "Bob Brown",
		UserPrincipalName: "bob@contoso.com",
	})

	records := Classify(in, Options{Now: testNow, ThresholdDays: 90})
	require.Len(t, records, 1)
	assert.Equal(t, "alice@contoso.com", records[0].UserPrincipalName)
}

func TestClassify_LicenseResolutionFallbacks(t *testing.T) {
	in := Inputs{
		Users: []schema.DirectoryUser{{
			DisplayName:       "Carol",
			UserPrincipalName: "carol@contoso.com",
			// One known product, one only in the SKU table, one unknown.
			AssignedSKUIDs: []string{skuE3, skuE5, skuOdd},
		}},
		Catalog:  testCatalog(t),
		SKUParts: map[string]string{skuE5: "SPE_E5"},
	}

	records := Classify(in, Options{Now: testNow, ThresholdDays: 90})
	require.Len(t, records, 1)
	assert.ElementsMatch(t,
		[]string{"Microsoft 365 E3", "Microsoft 365 E5", skuOdd},
		records[0].Licenses)
}

func TestClassify_EmptyCatalogFallsBackToRawIdentifiers(t *testing.T) {
	in := baseInputs(catalog.Empty())

	records := Classify(in, Options{Now: testNow, ThresholdDays: 90})
	require.Len(t, records, 1)
	assert.Equal(t, []string{skuE3}, records[0].Licenses)
}

func TestClassify_DuplicateSKUsDeduplicated(t *testing.T) {
	in := baseInputs(testCatalog(t))
	in.Users[0].AssignedSKUIDs = []string{skuE3, skuE3}

	records := Classify(in, Options{Now: testNow, ThresholdDays: 90})
	require.Len(t, records, 1)
	assert.Equal(t, []string{"Microsoft 365 E3"}, records[0].Licenses)
}

func TestClassify_Idempotent(t *testing.T) {
	cat := testCatalog(t)
	in := Inputs{
		Users: []schema.DirectoryUser{
			{DisplayName: "Alice", UserPrincipalName: "alice@contoso.com", AssignedSKUIDs: []string{skuE3}},
			{DisplayName: "Bob", UserPrincipalName: "bob@contoso.com", AssignedSKUIDs: []string{skuE5}},
			{DisplayName: "Carol", UserPrincipalName: "carol@contoso.com", AssignedSKUIDs: []string{skuE3}},
		},
		Catalog:   cat,
		SignIns:   schema.SignInLookup{"bob@contoso.com": testNow.AddDate(0, 0, -3)},
		Overrides: schema.OverrideMap{"carol@contoso.com": schema.StatusDelete},
	}
	opts := Options{Now: testNow, ThresholdDays: 90}

	first := Classify(in, opts)
	second := Classify(in, opts)
	assert.Equal(t, first, second)
}

func TestClassify_AdminRolesAttachedForDisplay(t *testing.T) {
	in := baseInputs(testCatalog(t))
	in.AdminRoles = map[string][]string{"alice@contoso.com": {"Global Administrator"}}

	records := Classify(in, Options{Now: testNow, ThresholdDays: 90})
	require.Len(t, records, 1)
	assert.True(t, records[0].IsAdmin())
	// Role membership must never change the status.
	assert.Equal(t, schema.StatusReview, records[0].Status)
}
