package store

import (
	"database/sql"
	"fmt"
	"time"
)

// SessionRecord is one row of persisted sync history.
type SessionRecord struct {
	ID              int64  `json:"id"`
	SessionID       string `json:"session_id"`
	SyncType        string `json:"sync_type"`
	Company         string `json:"company"`
	Status          string `json:"status"`
	StartedAt       string `json:"started_at"`
	CompletedAt     string `json:"completed_at,omitempty"`
	RowsProcessed   int64  `json:"rows_processed"`
	TablesProcessed int64  `json:"tables_processed"`
	Error           string `json:"error,omitempty"`
}

// BeginSession records the start of a sync run.
func (s *Store) BeginSession(sessionID, syncType, company string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	return s.withWriteLock(func() error {
		_, err := s.db.Exec(`
			INSERT INTO sync_history (session_id, sync_type, company, status, started_at)
			VALUES (?, ?, ?, 'running', ?)`,
			sessionID, syncType, company, now)
		if err != nil {
			return fmt.Errorf("begin session: %w", err)
		}
		return nil
	})
}

// FinishSession closes out a sync run with its final status and totals.
func (s *Store) FinishSession(sessionID, status string, rows, tables int64, errMsg string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	return s.withWriteLock(func() error {
		var e sql.NullString
		if errMsg != "" {
			e = sql.NullString{String: errMsg, Valid: true}
		}
		_, err := s.db.Exec(`
			UPDATE sync_history
			SET status = ?, completed_at = ?, rows_processed = ?, tables_processed = ?, error = ?
			WHERE session_id = ?`,
			status, now, rows, tables, e, sessionID)
		if err != nil {
			return fmt.Errorf("finish session: %w", err)
		}
		return nil
	})
}

// Sessions returns recent sync runs, newest first.
func (s *Store) Sessions(limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, session_id, sync_type, company, status, started_at,
			COALESCE(completed_at,''), rows_processed, tables_processed, COALESCE(error,'')
		FROM sync_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SessionRecord
	for rows.Next() {
		var r SessionRecord
		if err := rows.Scan(&r.ID, &r.SessionID, &r.SyncType, &r.Company, &r.Status,
			&r.StartedAt, &r.CompletedAt, &r.RowsProcessed, &r.TablesProcessed, &r.Error); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
