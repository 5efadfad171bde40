package syncer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CrashState is the sidecar file written at phase boundaries during a
// sync. If the process dies mid-sync the file survives with status
// "running", which is how a later start knows the database may be in a
// half-synced state.
type CrashState struct {
	SyncType      string `json:"sync_type"`
	Status        string `json:"status"`
	Company       string `json:"company"`
	StartedAt     string `json:"started_at"`
	CurrentTable  string `json:"current_table"`
	RowsProcessed int64  `json:"rows_processed"`
	LastUpdated   string `json:"last_updated"`
}

// saveState writes the sidecar atomically (temp file + rename) so a crash
// mid-write never leaves a torn file.
func saveState(path string, st CrashState) error {
	st.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "sync_state-*.json.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// clearState removes the sidecar after a clean finish.
func clearState(path string) {
	os.Remove(path)
}

// IncompleteSync reports whether a previous run died mid-sync, returning
// its last recorded state when so.
func IncompleteSync(path string) (*CrashState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sync state: %w", err)
	}
	var st CrashState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse sync state: %w", err)
	}
	if st.Status != "running" {
		return nil, nil
	}
	return &st, nil
}

// DismissIncomplete discards a stale crash marker.
func DismissIncomplete(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
