package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/celerix-dev/tenacity-audit/pkg/schema"
)

// Archive keeps JSON snapshots of past audit runs on disk, one file per run.
type Archive struct {
	Dir string
	mu  sync.Mutex // Protects concurrent writes to the filesystem
}

// NewArchive initializes the archive directory.
func NewArchive(dir string) (*Archive, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Archive{Dir: dir}, nil
}

// Save writes one run snapshot atomically (temp file + rename), named by the
// run's generation timestamp. A crash mid-write leaves either the previous
// snapshot set or the new one, never a truncated file.
func (a *Archive) Save(r schema.Report) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	name := fmt.Sprintf("run-%s.json", r.GeneratedAt.UTC().Format("20060102-150405"))
	filePath := filepath.Join(a.Dir, name)
	tempPath := filePath + ".tmp"

	bytes, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(tempPath, bytes, 0644); err != nil {
		return "", err
	}
	if err := os.Rename(tempPath, filePath); err != nil {
		return "", err
	}
	return name, nil
}

// List returns archived run file names, newest first.
func (a *Archive) List() ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries, err := os.ReadDir(a.Dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "run-") && strings.HasSuffix(name, ".json") {
			names = append(names, name)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// Load reads one archived snapshot back.
func (a *Archive) Load(name string) (schema.Report, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var r schema.Report
	content, err := os.ReadFile(filepath.Join(a.Dir, filepath.Base(name)))
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(content, &r); err != nil {
		return r, fmt.Errorf("corrupt archive snapshot %s: %w", name, err)
	}
	return r, nil
}
