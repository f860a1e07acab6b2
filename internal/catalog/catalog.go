// Package catalog resolves raw SKU identifiers into human-readable product
// names using Microsoft's published licensing CSV. Every failure path
// degrades to raw identifiers; the catalog is never mandatory.
package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// Catalog holds the friendly-name lookups. The zero value is usable and
// resolves everything to its raw fallback.
type Catalog struct {
	byGUID       map[string]string // lowercase skuId -> display name
	byPartNumber map[string]string // uppercase part number -> display name
}

// Empty returns a catalog with no entries.
func Empty() *Catalog {
	return &Catalog{
		byGUID:       map[string]string{},
		byPartNumber: map[string]string{},
	}
}

// Len returns the number of distinct part numbers known to the catalog.
func (c *Catalog) Len() int {
	return len(c.byPartNumber)
}

// Resolve maps one assigned SKU ID to the best available name:
// display name by GUID, then display name by part number (via the tenant's
// subscribed-SKU table), then the bare part number, then the raw ID.
func (c *Catalog) Resolve(skuID string, partNumbers map[string]string) string {
	key := strings.ToLower(strings.TrimSpace(skuID))
	if key == "" {
		return ""
	}
	if name, ok := c.byGUID[key]; ok {
		return name
	}
	part := partNumbers[key]
	if part == "" {
		return skuID
	}
	if name, ok := c.byPartNumber[strings.ToUpper(part)]; ok {
		return name
	}
	return part
}

// Fetch downloads and parses the catalog CSV. When cachePath is non-empty
// the raw CSV is cached on disk after a successful download, and the cache
// is used as a fallback when the download fails.
func Fetch(ctx context.Context, rawURL, cachePath string, logger *slog.Logger) (*Catalog, error) {
	body, err := download(ctx, rawURL)
	if err != nil {
		if cachePath == "" {
			return nil, err
		}
		cached, readErr := os.ReadFile(cachePath)
		if readErr != nil {
			return nil, err
		}
		logger.Warn("catalog download failed, using cached copy",
			slog.String("cache", cachePath), slog.Any("err", err))
		return Parse(cached)
	}

	cat, err := Parse(body)
	if err != nil {
		return nil, err
	}

	if cachePath != "" {
		tmp := cachePath + ".tmp"
		if writeErr := os.WriteFile(tmp, body, 0644); writeErr == nil {
			if renameErr := os.Rename(tmp, cachePath); renameErr != nil {
				logger.Warn("could not refresh catalog cache", slog.Any("err", renameErr))
			}
		} else {
			logger.Warn("could not write catalog cache", slog.Any("err", writeErr))
		}
	}
	return cat, nil
}

func download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog download returned %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Parse reads the licensing CSV. The file repeats product rows once per
// service plan, so duplicates are expected and first-seen names win.
func Parse(data []byte) (*Catalog, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("unable to read catalog header: %w", err)
	}

	nameIdx, partIdx, guidIdx := -1, -1, -1
	for i, h := range headers {
		switch normalizeHeader(h) {
		case "productdisplayname":
			nameIdx = i
		case "stringid":
			partIdx = i
		case "guid":
			guidIdx = i
		}
	}
	if nameIdx < 0 || partIdx < 0 {
		return nil, errors.New("catalog CSV missing Product_Display_Name or String_Id column")
	}

	cat := Empty()
	for {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("unable to read catalog row: %w", err)
		}

		name := field(record, nameIdx)
		part := field(record, partIdx)
		if name == "" || part == "" {
			continue
		}
		partKey := strings.ToUpper(part)
		if _, exists := cat.byPartNumber[partKey]; !exists {
			cat.byPartNumber[partKey] = name
		}
		if guidIdx >= 0 {
			if guid := strings.ToLower(field(record, guidIdx)); guid != "" {
				if _, exists := cat.byGUID[guid]; !exists {
					cat.byGUID[guid] = name
				}
			}
		}
	}
	return cat, nil
}

func normalizeHeader(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.TrimPrefix(value, "\ufeff")
	value = strings.ReplaceAll(value, " ", "")
	value = strings.ReplaceAll(value, "_", "")
	return value
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
