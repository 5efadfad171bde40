// Package syncer orchestrates full and incremental replication runs:
// extract from the Gateway, decode, write to the store, and keep the
// audit trail, company cursor, and crash sidecar honest along the way.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marcus/erpsync/internal/config"
	"github.com/marcus/erpsync/internal/decode"
	"github.com/marcus/erpsync/internal/gateway"
	"github.com/marcus/erpsync/internal/report"
	"github.com/marcus/erpsync/internal/spec"
	"github.com/marcus/erpsync/internal/store"
)

var (
	// ErrSyncActive reports an attempt to start a sync while one is
	// already running. Only one session may exist at a time.
	ErrSyncActive = errors.New("a sync is already running")
	// ErrCancelled reports a run stopped by a cancel request.
	ErrCancelled = errors.New("sync cancelled")
)

// Synchronizer runs replication sessions. One instance is shared by the
// CLI, the queue, and the scheduler so the single-session guard holds
// across all entry points.
type Synchronizer struct {
	cfg     *config.Config
	tables  *spec.Config
	store   *store.Store
	gateway *gateway.Client

	mu       sync.Mutex
	active   bool
	status   Status
	cancelled atomic.Bool
}

// New builds a synchronizer over an opened store and gateway client.
func New(cfg *config.Config, tables *spec.Config, st *store.Store, gw *gateway.Client) *Synchronizer {
	return &Synchronizer{cfg: cfg, tables: tables, store: st, gateway: gw}
}

// Status returns a snapshot of the current or last run.
func (sy *Synchronizer) Status() Status {
	sy.mu.Lock()
	defer sy.mu.Unlock()
	st := sy.status
	st.BreakerState = sy.gateway.BreakerState()
	return st
}

// Cancel requests that the running sync stop at the next table boundary.
// Returns false when nothing is running.
func (sy *Synchronizer) Cancel() bool {
	sy.mu.Lock()
	defer sy.mu.Unlock()
	if !sy.active {
		return false
	}
	sy.cancelled.Store(true)
	return true
}

// begin claims the single session slot.
func (sy *Synchronizer) begin(kind, company string) (string, error) {
	sy.mu.Lock()
	defer sy.mu.Unlock()
	if sy.active {
		return "", ErrSyncActive
	}
	id := newSessionID(kind)
	sy.active = true
	sy.cancelled.Store(false)
	sy.status = Status{
		Running:   true,
		SessionID: id,
		SyncType:  kind,
		Company:   company,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}
	return id, nil
}

func (sy *Synchronizer) end(status, message string) {
	sy.mu.Lock()
	defer sy.mu.Unlock()
	sy.active = false
	sy.status.Running = false
	sy.status.Message = message
	if status != "" {
		sy.status.Message = status + ": " + message
	}
}

func (sy *Synchronizer) setProgress(table string, done, total int, rows int64) {
	sy.mu.Lock()
	defer sy.mu.Unlock()
	sy.status.CurrentTable = table
	sy.status.TablesProcessed = done
	sy.status.RowsProcessed = rows
	if total > 0 {
		sy.status.Progress = done * 100 / total
	}
}

func (sy *Synchronizer) checkCancel() error {
	if sy.cancelled.Load() {
		return ErrCancelled
	}
	return nil
}

// extract pulls one table's rows from the Gateway.
func (sy *Synchronizer) extract(ctx context.Context, t spec.Table, company string) ([]decode.Row, error) {
	payload := report.Build(t, sy.cfg.Gateway.FromDate, sy.cfg.Gateway.ToDate, company)
	doc, err := sy.gateway.Send(ctx, payload)
	if err != nil {
		return nil, err
	}
	rows, err := decode.Rows(decode.StripBOM(doc), t.Fields)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// resolveCompany picks the company for a run: the explicit argument, or
// the configured one, or whatever company the Gateway has active.
func (sy *Synchronizer) resolveCompany(ctx context.Context, company string) (string, gateway.CompanyInfo, error) {
	if company == "" {
		company = sy.cfg.Gateway.Company
	}
	info, err := sy.gateway.ActiveCompany(ctx)
	if err != nil {
		if company == "" {
			return "", gateway.CompanyInfo{}, fmt.Errorf("resolve company: %w", err)
		}
		// Identity report failing is not fatal when the company is named
		// explicitly; the cursor just loses guid/books metadata.
		slog.Warn("company info unavailable", "err", err)
		return company, gateway.CompanyInfo{Name: company}, nil
	}
	if company == "" {
		company = info.Name
	}
	return company, info, nil
}

// finish persists the session outcome and the run result.
func (sy *Synchronizer) finish(sessionID, kind, company string, start time.Time, rows int64, tables int, runErr error) (Result, error) {
	res := Result{
		SessionID: sessionID,
		SyncType:  kind,
		Company:   company,
		Rows:      rows,
		Tables:    tables,
		Duration:  time.Since(start).Round(time.Millisecond).String(),
	}
	switch {
	case runErr == nil:
		res.Status = "completed"
	case errors.Is(runErr, ErrCancelled):
		res.Status = "cancelled"
		res.Message = runErr.Error()
	default:
		res.Status = "failed"
		res.Message = runErr.Error()
	}

	if err := sy.store.FinishSession(sessionID, res.Status, rows, int64(tables), res.Message); err != nil {
		slog.Warn("persist session outcome", "session", sessionID, "err", err)
	}
	sy.end(res.Status, res.Message)

	if runErr != nil && !errors.Is(runErr, ErrCancelled) {
		return res, runErr
	}
	return res, nil
}

// writeCursor records a completed run in company_config and mirrors the
// headline facts into the legacy config table.
func (sy *Synchronizer) writeCursor(kind, company string, info gateway.CompanyInfo, ids gateway.AlterIDs) {
	err := sy.store.UpsertCompanyState(store.CompanyState{
		GUID:                   info.GUID,
		Name:                   company,
		BooksFrom:              info.BooksFrom,
		LastSyncType:           kind,
		LastAlterIDMaster:      ids.Master,
		LastAlterIDTransaction: ids.Transaction,
	})
	if err != nil {
		slog.Warn("write company cursor", "company", company, "err", err)
	}

	err = sy.store.WriteLegacyConfig(map[string]string{
		"Update Timestamp":         time.Now().UTC().Format("2006-01-02 15:04:05"),
		"Company Name":             company,
		"Last AlterID Master":      fmt.Sprintf("%d", ids.Master),
		"Last AlterID Transaction": fmt.Sprintf("%d", ids.Transaction),
	})
	if err != nil {
		slog.Warn("write legacy config", "err", err)
	}
}

func (sy *Synchronizer) statePath() string {
	return sy.cfg.Sync.StateFile
}
