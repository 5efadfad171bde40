// Package audit writes and reads the change trail kept alongside the
// mirrored data: one audit_log row per insert, update, or delete applied
// during a sync, and a restorable snapshot of every deleted row.
package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/marcus/erpsync/internal/store"
)

// Recorder writes audit events for one sync session. Audit writes are
// best-effort: a failed write is logged and never fails the sync that
// triggered it.
type Recorder struct {
	store     *store.Store
	sessionID string
	syncType  string
	company   string
}

// NewRecorder binds a recorder to a session.
func NewRecorder(s *store.Store, sessionID, syncType, company string) *Recorder {
	return &Recorder{store: s, sessionID: sessionID, syncType: syncType, company: company}
}

// SessionID returns the bound session id.
func (r *Recorder) SessionID() string { return r.sessionID }

// LogInsert records a new row.
func (r *Recorder) LogInsert(table, guid, name string, newData map[string]any, alterID int64) {
	r.write(table, guid, name, "INSERT", nil, newData, nil, alterID)
}

// LogUpdate records a changed row. When no column actually differs the
// event is suppressed.
func (r *Recorder) LogUpdate(table, guid, name string, oldData, newData map[string]any, alterID int64) {
	changed := ChangedColumns(oldData, newData)
	if len(changed) == 0 {
		return
	}
	r.write(table, guid, name, "UPDATE", oldData, newData, changed, alterID)
}

// LogDelete records a removed row and snapshots it into deleted_records
// so it can be restored later.
func (r *Recorder) LogDelete(table, guid, name string, oldData map[string]any) {
	r.write(table, guid, name, "DELETE", oldData, nil, nil, 0)

	snapshot, err := json.Marshal(oldData)
	if err != nil {
		slog.Warn("audit: marshal deleted row", "table", table, "guid", guid, "err", err)
		return
	}
	err = r.exec(`
		INSERT INTO deleted_records (table_name, record_guid, record_name, record_data, company, sync_session_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		table, guid, name, string(snapshot), r.company, r.sessionID)
	if err != nil {
		slog.Warn("audit: record deletion", "table", table, "guid", guid, "err", err)
	}
}

func (r *Recorder) write(table, guid, name, action string, oldData, newData map[string]any, changed []string, alterID int64) {
	oldJSON := marshalOrNil(oldData)
	newJSON := marshalOrNil(newData)
	var changedJSON any
	if len(changed) > 0 {
		changedJSON = marshalOrNil(changed)
	}
	var alter any
	if alterID != 0 {
		alter = alterID
	}

	err := r.exec(`
		INSERT INTO audit_log (
			sync_session_id, sync_type, table_name, record_guid, record_name,
			action, old_data, new_data, changed_fields, company, tally_alter_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.sessionID, r.syncType, table, guid, name,
		action, oldJSON, newJSON, changedJSON, r.company, alter)
	if err != nil {
		slog.Warn("audit: write event", "table", table, "guid", guid, "action", action, "err", err)
	}
}

func (r *Recorder) exec(query string, args ...any) error {
	return r.store.Exec(query, args...)
}

func marshalOrNil(v any) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(b)
}

// ChangedColumns returns the sorted names of columns whose values differ
// between the stored row and the incoming one. Values are compared by
// their string rendering, so an int64 1 and a float64 1 read back from
// sqlite do not produce phantom changes.
func ChangedColumns(oldData, newData map[string]any) []string {
	var changed []string
	for col, newVal := range newData {
		oldVal, ok := oldData[col]
		if !ok {
			changed = append(changed, col)
			continue
		}
		if render(oldVal) != render(newVal) {
			changed = append(changed, col)
		}
	}
	sort.Strings(changed)
	return changed
}

func render(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return fmt.Sprintf("%g", x)
	case int64:
		return fmt.Sprintf("%g", float64(x))
	case []byte:
		return string(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
