package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marcus/erpsync/internal/decode"
	"github.com/marcus/erpsync/internal/gateway"
	"github.com/marcus/erpsync/internal/spec"
)

// FullSync replaces one company's rows wholesale: probe, truncate,
// re-import every table, then advance the cursor. parallel overlaps the
// Gateway fetches; writes stay sequential in table order either way.
func (sy *Synchronizer) FullSync(ctx context.Context, company string, parallel bool) (Result, error) {
	start := time.Now()

	company, info, err := sy.resolveCompany(ctx, company)
	if err != nil {
		return Result{Status: "failed", Message: err.Error()}, err
	}

	sessionID, err := sy.begin("full", company)
	if err != nil {
		return Result{Status: "not_running", Message: err.Error()}, err
	}
	if err := sy.store.BeginSession(sessionID, "full", company); err != nil {
		sy.end("failed", err.Error())
		return Result{Status: "failed", Message: err.Error()}, err
	}
	slog.Info("full sync started", "session", sessionID, "company", company, "parallel", parallel)

	tables := sy.tables.All()

	// Safety probe: pull the first table before touching local data. A
	// Gateway that answers with nothing must not cause a truncate.
	probeRows, err := sy.extract(ctx, tables[0], company)
	if err != nil {
		return sy.finish(sessionID, "full", company, start, 0, 0, fmt.Errorf("safety probe: %w", err))
	}
	if len(probeRows) == 0 {
		err := fmt.Errorf("%w: %s came back empty, refusing to truncate", gateway.ErrEmpty, tables[0].Name)
		return sy.finish(sessionID, "full", company, start, 0, 0, err)
	}

	sidecar := CrashState{SyncType: "full", Status: "running", Company: company, StartedAt: sy.status.StartedAt}
	if err := saveState(sy.statePath(), sidecar); err != nil {
		slog.Warn("write sync state", "err", err)
	}

	if err := sy.store.TruncateAll(sy.tables.TableNames(), company); err != nil {
		return sy.finish(sessionID, "full", company, start, 0, 0, err)
	}

	var totalRows int64
	var done int
	importTable := func(t spec.Table, rows []decode.Row) error {
		n, err := sy.store.BulkInsert(t.Name, rows, company, sy.cfg.Sync.BatchSize)
		totalRows += int64(n)
		if err != nil {
			return fmt.Errorf("import %s: %w", t.Name, err)
		}
		done++
		sy.setProgress(t.Name, done, len(tables), totalRows)
		sidecar.CurrentTable = t.Name
		sidecar.RowsProcessed = totalRows
		if err := saveState(sy.statePath(), sidecar); err != nil {
			slog.Warn("write sync state", "err", err)
		}
		slog.Info("table synced", "table", t.Name, "rows", n, "progress", done*100/len(tables))
		return nil
	}

	if parallel {
		err = sy.runParallel(ctx, tables, company, probeRows, importTable)
	} else {
		err = sy.runSequential(ctx, tables, company, probeRows, importTable)
	}
	if err != nil {
		return sy.finish(sessionID, "full", company, start, totalRows, done, err)
	}

	ids, err := sy.gateway.LastAlterIDs(ctx, company)
	if err != nil {
		// The data landed; a failed cursor read only costs the next
		// incremental a redundant import.
		slog.Warn("alter-id read failed after full sync", "err", err)
	}
	sy.writeCursor("full", company, info, ids)

	clearState(sy.statePath())
	slog.Info("full sync finished", "session", sessionID, "rows", totalRows, "tables", done)
	return sy.finish(sessionID, "full", company, start, totalRows, done, nil)
}

// runSequential fetches and imports one table at a time. Gateway and
// decode failures skip the table; store failures abort the run.
func (sy *Synchronizer) runSequential(ctx context.Context, tables []spec.Table, company string, probeRows []decode.Row, importTable func(spec.Table, []decode.Row) error) error {
	for i, t := range tables {
		if err := sy.checkCancel(); err != nil {
			return err
		}
		var rows []decode.Row
		if i == 0 {
			rows = probeRows
		} else {
			var err error
			rows, err = sy.extract(ctx, t, company)
			if err != nil {
				slog.Error("table extract failed, skipping", "table", t.Name, "err", err)
				continue
			}
		}
		if err := importTable(t, rows); err != nil {
			return err
		}
	}
	return nil
}

// runParallel fans the Gateway fetches out across goroutines, then
// imports in declared order so parent tables land before children.
func (sy *Synchronizer) runParallel(ctx context.Context, tables []spec.Table, company string, probeRows []decode.Row, importTable func(spec.Table, []decode.Row) error) error {
	type fetched struct {
		rows []decode.Row
		err  error
	}
	results := make([]fetched, len(tables))
	results[0] = fetched{rows: probeRows}

	var wg sync.WaitGroup
	for i := 1; i < len(tables); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rows, err := sy.extract(ctx, tables[i], company)
			results[i] = fetched{rows: rows, err: err}
		}(i)
	}
	wg.Wait()

	for i, t := range tables {
		if err := sy.checkCancel(); err != nil {
			return err
		}
		if results[i].err != nil {
			slog.Error("table extract failed, skipping", "table", t.Name, "err", results[i].err)
			continue
		}
		if err := importTable(t, results[i].rows); err != nil {
			return err
		}
	}
	return nil
}
