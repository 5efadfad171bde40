package audit

import (
	"database/sql"
	"fmt"

	"github.com/marcus/erpsync/internal/store"
)

// Event is one audit_log row.
type Event struct {
	ID            int64  `json:"id"`
	SessionID     string `json:"sync_session_id"`
	SyncType      string `json:"sync_type"`
	Table         string `json:"table_name"`
	GUID          string `json:"record_guid"`
	Name          string `json:"record_name"`
	Action        string `json:"action"`
	OldData       string `json:"old_data,omitempty"`
	NewData       string `json:"new_data,omitempty"`
	ChangedFields string `json:"changed_fields,omitempty"`
	Company       string `json:"company"`
	AlterID       int64  `json:"tally_alter_id,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// DeletedRecord is one restorable snapshot from deleted_records.
type DeletedRecord struct {
	ID         int64  `json:"id"`
	Table      string `json:"table_name"`
	GUID       string `json:"record_guid"`
	Name       string `json:"record_name"`
	Data       string `json:"record_data"`
	Company    string `json:"company"`
	SessionID  string `json:"sync_session_id"`
	IsRestored bool   `json:"is_restored"`
	DeletedAt  string `json:"deleted_at"`
	RestoredAt string `json:"restored_at,omitempty"`
}

// Filter narrows History queries. Zero fields are ignored.
type Filter struct {
	Table     string
	GUID      string
	Action    string
	Company   string
	StartDate string // YYYY-MM-DD, inclusive
	EndDate   string // YYYY-MM-DD, inclusive
	Limit     int
	Offset    int
}

const eventColumns = `id, COALESCE(sync_session_id,''), COALESCE(sync_type,''),
	table_name, record_guid, COALESCE(record_name,''), action,
	COALESCE(old_data,''), COALESCE(new_data,''), COALESCE(changed_fields,''),
	COALESCE(company,''), COALESCE(tally_alter_id,0), created_at`

func scanEvent(rows *sql.Rows) (Event, error) {
	var e Event
	err := rows.Scan(&e.ID, &e.SessionID, &e.SyncType, &e.Table, &e.GUID, &e.Name,
		&e.Action, &e.OldData, &e.NewData, &e.ChangedFields, &e.Company, &e.AlterID, &e.CreatedAt)
	return e, err
}

// History returns audit events matching the filter, newest first.
func History(s *store.Store, f Filter) ([]Event, error) {
	query := "SELECT " + eventColumns + " FROM audit_log WHERE 1=1"
	var args []any
	if f.Table != "" {
		query += " AND table_name = ?"
		args = append(args, f.Table)
	}
	if f.GUID != "" {
		query += " AND record_guid = ?"
		args = append(args, f.GUID)
	}
	if f.Action != "" {
		query += " AND action = ?"
		args = append(args, f.Action)
	}
	if f.Company != "" {
		query += " AND company = ?"
		args = append(args, f.Company)
	}
	if f.StartDate != "" {
		query += " AND created_at >= ?"
		args = append(args, f.StartDate)
	}
	if f.EndDate != "" {
		query += " AND created_at <= ?"
		args = append(args, f.EndDate+" 23:59:59")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	rows, err := s.DB().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit history: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecordHistory returns every event for a single record, oldest first.
func RecordHistory(s *store.Store, table, guid string) ([]Event, error) {
	rows, err := s.DB().Query(
		"SELECT "+eventColumns+" FROM audit_log WHERE table_name = ? AND record_guid = ? ORDER BY created_at ASC, id ASC",
		table, guid)
	if err != nil {
		return nil, fmt.Errorf("record history: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SessionChanges returns every event from one sync session plus a count
// by action.
func SessionChanges(s *store.Store, sessionID string) ([]Event, map[string]int64, error) {
	rows, err := s.DB().Query(
		"SELECT "+eventColumns+" FROM audit_log WHERE sync_session_id = ? ORDER BY id ASC", sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("session changes: %w", err)
	}
	defer rows.Close()

	var out []Event
	byAction := make(map[string]int64)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, e)
		byAction[e.Action]++
	}
	return out, byAction, rows.Err()
}

// DeletedRecords lists restorable snapshots, newest first. Restored rows
// are excluded unless includeRestored is set.
func DeletedRecords(s *store.Store, table, company string, includeRestored bool, limit, offset int) ([]DeletedRecord, error) {
	query := `SELECT id, table_name, record_guid, COALESCE(record_name,''), record_data,
		COALESCE(company,''), COALESCE(sync_session_id,''), is_restored, deleted_at, COALESCE(restored_at,'')
		FROM deleted_records WHERE 1=1`
	var args []any
	if table != "" {
		query += " AND table_name = ?"
		args = append(args, table)
	}
	if company != "" {
		query += " AND company = ?"
		args = append(args, company)
	}
	if !includeRestored {
		query += " AND is_restored = 0"
	}
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY deleted_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.DB().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("deleted records: %w", err)
	}
	defer rows.Close()

	var out []DeletedRecord
	for rows.Next() {
		var d DeletedRecord
		var restored int
		if err := rows.Scan(&d.ID, &d.Table, &d.GUID, &d.Name, &d.Data,
			&d.Company, &d.SessionID, &restored, &d.DeletedAt, &d.RestoredAt); err != nil {
			return nil, err
		}
		d.IsRestored = restored != 0
		out = append(out, d)
	}
	return out, rows.Err()
}

// Stats summarizes the audit trail: counts by action, the busiest tables,
// and how many deletions are still restorable.
type Stats struct {
	ByAction       map[string]int64 `json:"by_action"`
	ByTable        map[string]int64 `json:"by_table"`
	PendingDeleted int64            `json:"pending_deleted"`
}

// GetStats computes audit statistics, optionally for one company.
func GetStats(s *store.Store, company string) (Stats, error) {
	st := Stats{ByAction: make(map[string]int64), ByTable: make(map[string]int64)}

	where, args := "", []any{}
	if company != "" {
		where = " WHERE company = ?"
		args = append(args, company)
	}

	rows, err := s.DB().Query("SELECT action, COUNT(*) FROM audit_log"+where+" GROUP BY action", args...)
	if err != nil {
		return st, fmt.Errorf("audit stats: %w", err)
	}
	for rows.Next() {
		var action string
		var n int64
		if err := rows.Scan(&action, &n); err != nil {
			rows.Close()
			return st, err
		}
		st.ByAction[action] = n
	}
	rows.Close()

	rows, err = s.DB().Query(
		"SELECT table_name, COUNT(*) FROM audit_log"+where+" GROUP BY table_name ORDER BY COUNT(*) DESC LIMIT 10", args...)
	if err != nil {
		return st, err
	}
	for rows.Next() {
		var table string
		var n int64
		if err := rows.Scan(&table, &n); err != nil {
			rows.Close()
			return st, err
		}
		st.ByTable[table] = n
	}
	rows.Close()

	query := "SELECT COUNT(*) FROM deleted_records WHERE is_restored = 0"
	dargs := []any{}
	if company != "" {
		query += " AND company = ?"
		dargs = append(dargs, company)
	}
	if err := s.DB().QueryRow(query, dargs...).Scan(&st.PendingDeleted); err != nil {
		return st, err
	}
	return st, nil
}
