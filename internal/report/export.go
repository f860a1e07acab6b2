package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/celerix-dev/tenacity-audit/pkg/schema"
)

// WriteJSON writes the full report as indented JSON.
func WriteJSON(path string, r schema.Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// WriteDecisionsCSV exports one row per user with the final status. The
// column names match what the override loader accepts, so a reviewed export
// can be fed back in as the next run's override file.
func WriteDecisionsCSV(path string, r schema.Report) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{
		"UserPrincipalName",
		"Email",
		"DisplayName",
		"Licenses",
		"LastSignIn",
		"Action",
		"Overridden",
	}); err != nil {
		return err
	}

	for _, user := range r.Users {
		lastSignIn := ""
		if user.LastSignIn != nil {
			lastSignIn = user.LastSignIn.UTC().Format(time.RFC3339)
		}
		record := []string{
			user.UserPrincipalName,
			user.Mail,
			user.DisplayName,
			joinCSVList(user.Licenses),
			lastSignIn,
			string(user.Status),
			fmt.Sprintf("%t", user.Overridden),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func joinCSVList(values []string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += "; "
		}
		out += v
	}
	return out
}
