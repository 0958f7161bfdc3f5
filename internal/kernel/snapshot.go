package kernel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SnapshotStore persists execution state to disk so a run can be inspected
// after the process exits. One JSON file per correlation id.
type SnapshotStore struct {
	dir string
}

func NewSnapshotStore(dir string) *SnapshotStore {
	return &SnapshotStore{dir: dir}
}

// Save writes the result for a correlation id, replacing any prior snapshot.
func (s *SnapshotStore) Save(correlationID string, result *ExecutionResult) error {
	if s == nil || s.dir == "" {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	return os.WriteFile(s.path(correlationID), data, 0644)
}

// Load reads a prior snapshot by correlation id.
func (s *SnapshotStore) Load(correlationID string) (*ExecutionResult, error) {
	data, err := os.ReadFile(s.path(correlationID))
	if err != nil {
		return nil, err
	}
	var result ExecutionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", correlationID, err)
	}
	return &result, nil
}

// List returns the correlation ids with a stored snapshot, sorted.
func (s *SnapshotStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *SnapshotStore) path(correlationID string) string {
	return filepath.Join(s.dir, correlationID+".json")
}
