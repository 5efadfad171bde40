package syncer

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// newSessionID builds a session id like full_20260824_063015_a1b2c3d4:
// readable in logs, unique enough to key the audit trail.
func newSessionID(kind string) string {
	buf := make([]byte, 4)
	rand.Read(buf)
	return fmt.Sprintf("%s_%s_%s", kind,
		time.Now().UTC().Format("20060102_150405"), hex.EncodeToString(buf))
}

// Status is a point-in-time snapshot of the synchronizer.
type Status struct {
	Running         bool   `json:"running"`
	SessionID       string `json:"session_id,omitempty"`
	SyncType        string `json:"sync_type,omitempty"`
	Company         string `json:"company,omitempty"`
	CurrentTable    string `json:"current_table,omitempty"`
	Progress        int    `json:"progress"`
	RowsProcessed   int64  `json:"rows_processed"`
	TablesProcessed int    `json:"tables_processed"`
	StartedAt       string `json:"started_at,omitempty"`
	BreakerState    string `json:"breaker_state,omitempty"`
	Message         string `json:"message,omitempty"`
}

// Result is the outcome of one sync run.
type Result struct {
	Status    string `json:"status"` // completed, failed, cancelled, not_running
	SessionID string `json:"session_id"`
	SyncType  string `json:"sync_type"`
	Company   string `json:"company"`
	Rows      int64  `json:"rows_processed"`
	Tables    int    `json:"tables_processed"`
	Duration  string `json:"duration"`
	Message   string `json:"message,omitempty"`
}
