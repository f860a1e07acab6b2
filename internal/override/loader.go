// Package override loads the optional CSV of manual lifecycle decisions.
// A missing or broken override file degrades the report, it never aborts it.
package override

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/celerix-dev/tenacity-audit/pkg/schema"
)

// Accepted column names, checked in order; the first present, non-empty cell
// wins per row.
var (
	identifierColumns = []string{"upn", "email", "userprincipalname"}
	decisionColumns   = []string{"action", "decision", "status"}
)

// decisionSynonyms normalizes free-text decisions into the fixed vocabulary.
// Unrecognized text means the row is silently ignored.
var decisionSynonyms = map[string]schema.LifecycleStatus{
	"keep":   schema.StatusKeep,
	"retain": schema.StatusKeep,
	"green":  schema.StatusKeep,
	"stay":   schema.StatusKeep,

	"delete": schema.StatusDelete,
	"remove": schema.StatusDelete,
	"drop":   schema.StatusDelete,
	"red":    schema.StatusDelete,

	"review":  schema.StatusReview,
	"yellow":  schema.StatusReview,
	"pending": schema.StatusReview,
	"hold":    schema.StatusReview,
}

// Load reads the override CSV at path. An empty path or a missing file
// yields an empty map with a warning; only a structurally unreadable file is
// an error.
func Load(path string, logger *slog.Logger) (schema.OverrideMap, error) {
	if path == "" {
		return schema.OverrideMap{}, nil
	}

	file, err := os.Open(path)
	if err != nil {
		logger.Warn("override file not readable, continuing without overrides",
			slog.String("path", path), slog.Any("err", err))
		return schema.OverrideMap{}, nil
	}
	defer file.Close()

	overrides, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("override file %s: %w", path, err)
	}
	return overrides, nil
}

// Parse reads override rows from r. Later rows with the same identifier
// overwrite earlier ones.
func Parse(r io.Reader) (schema.OverrideMap, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty file: no header row found")
		}
		return nil, fmt.Errorf("unable to read header: %w", err)
	}

	colMap := normalizeHeaders(headers)
	idIndexes := columnIndexes(colMap, identifierColumns)
	decisionIndexes := columnIndexes(colMap, decisionColumns)
	if len(idIndexes) == 0 {
		return nil, errors.New("missing identifier column (UPN, Email or UserPrincipalName)")
	}
	if len(decisionIndexes) == 0 {
		return nil, errors.New("missing decision column (Action, Decision or Status)")
	}

	overrides := schema.OverrideMap{}
	for {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("unable to read CSV: %w", err)
		}
		if len(record) == 0 {
			continue
		}

		identity := firstValue(record, idIndexes)
		if identity == "" {
			continue
		}
		decision, ok := normalizeDecision(firstValue(record, decisionIndexes))
		if !ok {
			// Known soft-fail: unrecognized decision text drops the row.
			continue
		}
		overrides[strings.ToLower(identity)] = decision
	}
	return overrides, nil
}

// normalizeDecision maps free-text decision input to a lifecycle status.
func normalizeDecision(value string) (schema.LifecycleStatus, bool) {
	status, ok := decisionSynonyms[strings.ToLower(strings.TrimSpace(value))]
	return status, ok
}

func normalizeHeaders(headers []string) map[string]int {
	result := make(map[string]int, len(headers))
	for idx, header := range headers {
		normalized := normalizeHeader(header)
		if _, exists := result[normalized]; !exists {
			result[normalized] = idx
		}
	}
	return result
}

func normalizeHeader(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.TrimPrefix(value, "\ufeff")
	value = strings.ReplaceAll(value, " ", "")
	value = strings.ReplaceAll(value, "_", "")
	value = strings.ReplaceAll(value, "-", "")
	return value
}

// columnIndexes returns the record indexes of the accepted columns that are
// actually present, in acceptance order.
func columnIndexes(headers map[string]int, names []string) []int {
	var indexes []int
	for _, name := range names {
		if idx, ok := headers[name]; ok {
			indexes = append(indexes, idx)
		}
	}
	return indexes
}

// firstValue returns the first non-empty cell among the given indexes.
func firstValue(record []string, indexes []int) string {
	for _, idx := range indexes {
		if idx < 0 || idx >= len(record) {
			continue
		}
		if v := strings.TrimSpace(record[idx]); v != "" {
			return v
		}
	}
	return ""
}
