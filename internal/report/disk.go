package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DiskStore writes reports as JSON files to a directory. With no directory
// configured, a temp directory is created lazily on the first Save.
type DiskStore struct {
	mu  sync.Mutex
	dir string
}

// NewDiskStore creates a DiskStore writing to dir, or to a lazily created
// temp directory when dir is empty.
func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{dir: dir}
}

// Dir returns the directory reports are written to, creating it if needed.
func (s *DiskStore) Dir() (string, error) {
	return s.ensureDir()
}

// Save writes a report as a JSON file.
func (s *DiskStore) Save(r *RunReport) error {
	dir, err := s.ensureDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling report %s: %w", r.ID, err)
	}
	path := filepath.Join(dir, r.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report %s: %w", r.ID, err)
	}
	return nil
}

// Load reads a report from disk.
func (s *DiskStore) Load(runID string) (*RunReport, error) {
	if runID == "" || filepath.Base(runID) != runID {
		return nil, fmt.Errorf("invalid run ID %q", runID)
	}
	dir, err := s.ensureDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, runID+".json"))
	if err != nil {
		return nil, fmt.Errorf("reading report %s: %w", runID, err)
	}
	var r RunReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshalling report %s: %w", runID, err)
	}
	return &r, nil
}

func (s *DiskStore) ensureDir() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir != "" {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return "", fmt.Errorf("creating report directory: %w", err)
		}
		return s.dir, nil
	}
	dir, err := os.MkdirTemp("", "runharness-reports-*")
	if err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}
	s.dir = dir
	return dir, nil
}
