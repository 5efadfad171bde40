package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcus/erpsync/internal/audit"
	"github.com/marcus/erpsync/internal/decode"
	"github.com/marcus/erpsync/internal/report"
	"github.com/marcus/erpsync/internal/spec"
	"github.com/marcus/erpsync/internal/store"
)

// IncrementalSync imports only rows changed since the last run, using the
// Gateway's alter-id counters as the change cursor. Rows that vanished
// from the Gateway are deleted locally with a restorable snapshot.
func (sy *Synchronizer) IncrementalSync(ctx context.Context, company string) (Result, error) {
	start := time.Now()

	company, info, err := sy.resolveCompany(ctx, company)
	if err != nil {
		return Result{Status: "failed", Message: err.Error()}, err
	}

	sessionID, err := sy.begin("incremental", company)
	if err != nil {
		return Result{Status: "not_running", Message: err.Error()}, err
	}
	if err := sy.store.BeginSession(sessionID, "incremental", company); err != nil {
		sy.end("failed", err.Error())
		return Result{Status: "failed", Message: err.Error()}, err
	}
	slog.Info("incremental sync started", "session", sessionID, "company", company)

	ids, err := sy.gateway.LastAlterIDs(ctx, company)
	if err != nil {
		return sy.finish(sessionID, "incremental", company, start, 0, 0, fmt.Errorf("read alter-ids: %w", err))
	}

	var lastMaster, lastTransaction int64
	if st, err := sy.store.CompanyStateByName(company); err != nil {
		return sy.finish(sessionID, "incremental", company, start, 0, 0, err)
	} else if st != nil {
		lastMaster = st.LastAlterIDMaster
		lastTransaction = st.LastAlterIDTransaction
	}

	if ids.Master <= lastMaster && ids.Transaction <= lastTransaction {
		slog.Info("no changes on gateway", "company", company,
			"master", ids.Master, "transaction", ids.Transaction)
		if err := sy.store.FinishSession(sessionID, "completed", 0, 0, ""); err != nil {
			slog.Warn("persist session outcome", "session", sessionID, "err", err)
		}
		sy.end("completed", "")
		return Result{
			Status: "completed", SessionID: sessionID, SyncType: "incremental",
			Company: company, Message: "no changes since last sync",
			Duration: time.Since(start).Round(time.Millisecond).String(),
		}, nil
	}

	sidecar := CrashState{SyncType: "incremental", Status: "running", Company: company, StartedAt: sy.status.StartedAt}
	if err := saveState(sy.statePath(), sidecar); err != nil {
		slog.Warn("write sync state", "err", err)
	}

	rec := audit.NewRecorder(sy.store, sessionID, "incremental", company)

	var work []incrementalTable
	if ids.Master > lastMaster {
		for _, t := range sy.tables.Master {
			work = append(work, incrementalTable{table: t, floor: lastMaster})
		}
	}
	if ids.Transaction > lastTransaction {
		for _, t := range sy.tables.Transaction {
			work = append(work, incrementalTable{table: t, floor: lastTransaction})
		}
	}

	var totalRows int64
	var done int
	for _, w := range work {
		if err := sy.checkCancel(); err != nil {
			return sy.finish(sessionID, "incremental", company, start, totalRows, done, err)
		}

		n, err := sy.syncTableIncremental(ctx, w.table, company, w.floor, rec)
		if err != nil {
			if isStoreError(err) {
				return sy.finish(sessionID, "incremental", company, start, totalRows, done, err)
			}
			slog.Error("table sync failed, skipping", "table", w.table.Name, "err", err)
			continue
		}
		totalRows += n
		done++
		sy.setProgress(w.table.Name, done, len(work), totalRows)
		sidecar.CurrentTable = w.table.Name
		sidecar.RowsProcessed = totalRows
		if err := saveState(sy.statePath(), sidecar); err != nil {
			slog.Warn("write sync state", "err", err)
		}
	}

	sy.writeCursor("incremental", company, info, ids)
	clearState(sy.statePath())
	slog.Info("incremental sync finished", "session", sessionID, "rows", totalRows, "tables", done)
	return sy.finish(sessionID, "incremental", company, start, totalRows, done, nil)
}

type incrementalTable struct {
	table spec.Table
	floor int64
}

// syncTableIncremental brings one table up to date: reconcile deletions
// for Primary tables, then import rows above the alter-id floor with
// per-row audit events.
func (sy *Synchronizer) syncTableIncremental(ctx context.Context, t spec.Table, company string, floor int64, rec *audit.Recorder) (int64, error) {
	if t.Primary() && hasField(t, "guid") {
		if err := sy.reconcileDeletions(ctx, t, company, rec); err != nil {
			return 0, err
		}
	}

	rows, err := sy.extract(ctx, report.WithAlterIDFloor(t, floor), company)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	// Per-row audit only makes sense for tables addressed by guid;
	// guid-less child tables were reconciled by their parent's cascade.
	if hasField(t, "guid") {
		for _, row := range rows {
			guid, _ := row["guid"].(string)
			if guid == "" {
				continue
			}
			name, _ := row["name"].(string)
			alterID := rowAlterID(row)
			old, err := sy.store.RowByGUID(t.Name, guid, company)
			if err != nil {
				return 0, storeErr(err)
			}
			if old == nil {
				rec.LogInsert(t.Name, guid, name, map[string]any(row), alterID)
			} else {
				rec.LogUpdate(t.Name, guid, name, old, map[string]any(row), alterID)
			}
		}
	}

	n, err := sy.store.BulkInsert(t.Name, rows, company, sy.cfg.Sync.BatchSize)
	if err != nil {
		return int64(n), storeErr(err)
	}
	return int64(n), nil
}

// reconcileDeletions compares the Gateway's current guid/alter-id pairs
// with local rows and removes rows the Gateway no longer has. Changed
// rows are staged for deletion too; the import that follows puts their
// new version back.
func (sy *Synchronizer) reconcileDeletions(ctx context.Context, t spec.Table, company string, rec *audit.Recorder) error {
	pairs, err := sy.extractDiff(ctx, t, company)
	if err != nil {
		return err
	}

	if err := sy.store.ResetStaging(); err != nil {
		return storeErr(err)
	}
	if err := sy.store.StageDiff(pairs); err != nil {
		return storeErr(err)
	}
	staged, err := sy.store.StageDeletions(t.Name, company)
	if err != nil {
		return storeErr(err)
	}
	if staged == 0 {
		return nil
	}

	guids, err := sy.store.StagedDeletions()
	if err != nil {
		return storeErr(err)
	}
	// Every staged row gets a delete event with a restorable snapshot before
	// it goes: changed rows come back from the import as fresh inserts, so
	// the trail reads delete-old then insert-new.
	for _, guid := range guids {
		old, err := sy.store.RowByGUID(t.Name, guid, company)
		if err != nil {
			return storeErr(err)
		}
		if old == nil {
			continue
		}
		name, _ := old["name"].(string)
		rec.LogDelete(t.Name, guid, name, old)
	}

	removed, err := sy.store.DeleteStaged(t.Name, company, t.Cascades)
	if err != nil {
		return storeErr(err)
	}
	slog.Info("reconciled deletions", "table", t.Name, "staged", staged, "removed", removed)
	return nil
}

// extractDiff pulls the guid/alter-id identity report for a table.
func (sy *Synchronizer) extractDiff(ctx context.Context, t spec.Table, company string) ([]store.GUIDAlterID, error) {
	diff := report.DiffTable(t)
	rows, err := sy.extract(ctx, diff, company)
	if err != nil {
		return nil, err
	}
	pairs := make([]store.GUIDAlterID, 0, len(rows))
	for _, row := range rows {
		guid, _ := row["guid"].(string)
		if guid == "" {
			continue
		}
		pairs = append(pairs, store.GUIDAlterID{GUID: guid, AlterID: rowAlterID(row)})
	}
	return pairs, nil
}

func hasField(t spec.Table, name string) bool {
	for _, f := range t.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

func rowAlterID(row decode.Row) int64 {
	switch v := row["alterid"].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	default:
		return 0
	}
}

// storeErrMarker distinguishes store failures, which abort a run, from
// gateway failures, which only skip a table.
type storeErrMarker struct{ err error }

func (e storeErrMarker) Error() string { return e.err.Error() }
func (e storeErrMarker) Unwrap() error { return e.err }

func storeErr(err error) error { return storeErrMarker{err: err} }

func isStoreError(err error) bool {
	var m storeErrMarker
	return errors.As(err, &m)
}
