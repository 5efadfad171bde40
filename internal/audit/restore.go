package audit

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/marcus/erpsync/internal/decode"
	"github.com/marcus/erpsync/internal/store"
)

// ErrNotRestorable reports a restore of an unknown or already restored
// snapshot.
var ErrNotRestorable = errors.New("deleted record not found or already restored")

// Restore re-inserts a deleted row from its snapshot, marks the snapshot
// restored, and logs the re-insert as a manual-restore audit event.
func Restore(s *store.Store, deletedID int64) (*DeletedRecord, error) {
	row := s.DB().QueryRow(`
		SELECT id, table_name, record_guid, COALESCE(record_name,''), record_data, COALESCE(company,'')
		FROM deleted_records WHERE id = ? AND is_restored = 0`, deletedID)

	var d DeletedRecord
	err := row.Scan(&d.ID, &d.Table, &d.GUID, &d.Name, &d.Data, &d.Company)
	if err == sql.ErrNoRows {
		return nil, ErrNotRestorable
	}
	if err != nil {
		return nil, fmt.Errorf("load deleted record: %w", err)
	}

	var snapshot map[string]any
	if err := json.Unmarshal([]byte(d.Data), &snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot for %s/%s: %w", d.Table, d.GUID, err)
	}

	if err := s.Upsert(d.Table, decode.Row(snapshot), d.Company); err != nil {
		return nil, fmt.Errorf("restore into %s: %w", d.Table, err)
	}
	if err := s.Exec(
		"UPDATE deleted_records SET is_restored = 1, restored_at = datetime('now') WHERE id = ?",
		deletedID); err != nil {
		return nil, fmt.Errorf("mark restored: %w", err)
	}

	rec := NewRecorder(s, "manual_restore", "restore", d.Company)
	rec.LogInsert(d.Table, d.GUID, d.Name, snapshot, 0)

	slog.Info("restored deleted record", "table", d.Table, "guid", d.GUID)
	return &d, nil
}
