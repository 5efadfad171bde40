package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marcus/erpsync/internal/decode"
	"github.com/marcus/erpsync/internal/spec"
)

func testConfig() *spec.Config {
	return &spec.Config{
		Master: []spec.Table{
			{
				Name:       "mst_ledger",
				Collection: "Ledger",
				Nature:     "Primary",
				Fields: []spec.Field{
					{Name: "guid", Expr: "Guid", Kind: spec.KindText},
					{Name: "alterid", Expr: "AlterId", Kind: spec.KindNumber},
					{Name: "name", Expr: "Name", Kind: spec.KindText},
					{Name: "opening_balance", Expr: "OpeningBalance", Kind: spec.KindAmount},
					{Name: "is_revenue", Expr: "IsRevenue", Kind: spec.KindLogical},
				},
			},
		},
		Transaction: []spec.Table{
			{
				Name:       "trn_voucher",
				Collection: "Voucher",
				Nature:     "Primary",
				Fields: []spec.Field{
					{Name: "guid", Expr: "Guid", Kind: spec.KindText},
					{Name: "alterid", Expr: "AlterId", Kind: spec.KindNumber},
					{Name: "date", Expr: "Date", Kind: spec.KindDate},
				},
				Cascades: []spec.Cascade{{Table: "trn_accounting", Column: "voucher_guid"}},
			},
			{
				Name:       "trn_accounting",
				Collection: "Voucher.AllLedgerEntries",
				Fields: []spec.Field{
					{Name: "voucher_guid", Expr: "..Guid", Kind: spec.KindText},
					{Name: "ledger", Expr: "LedgerName", Kind: spec.KindText},
					{Name: "amount", Expr: "Amount", Kind: spec.KindAmount},
				},
			},
		},
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Bootstrap("", testConfig()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return s
}

func ledgerRow(guid, name string, alterid int64) decode.Row {
	return decode.Row{
		"guid":            guid,
		"alterid":         float64(alterid),
		"name":            name,
		"opening_balance": 100.5,
		"is_revenue":      int64(0),
	}
}

func TestBootstrapCreatesTables(t *testing.T) {
	s := openTestStore(t)
	for _, name := range []string{
		"mst_ledger", "trn_voucher", "trn_accounting",
		"config", "company_config", "sync_history", "audit_log",
		"deleted_records", "_diff", "_delete",
	} {
		ok, err := s.TableExists(name)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Errorf("table %s missing after bootstrap", name)
		}
	}
}

func TestBootstrapIdempotent(t *testing.T) {
	s := openTestStore(t)
	if err := s.Bootstrap("", testConfig()); err != nil {
		t.Fatalf("second Bootstrap: %v", err)
	}
}

func TestBulkInsertAndCount(t *testing.T) {
	s := openTestStore(t)
	rows := []decode.Row{
		ledgerRow("g-1", "Cash", 1),
		ledgerRow("g-2", "Sales", 2),
		ledgerRow("g-3", "Bank", 3),
	}
	n, err := s.BulkInsert("mst_ledger", rows, "Alpha", 2)
	if err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}
	if n != 3 {
		t.Errorf("written = %d, want 3", n)
	}
	count, err := s.Count("mst_ledger", "Alpha")
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestBulkInsertReplacesByGUID(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.BulkInsert("mst_ledger", []decode.Row{ledgerRow("g-1", "Cash", 1)}, "Alpha", 0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.BulkInsert("mst_ledger", []decode.Row{ledgerRow("g-1", "Petty Cash", 2)}, "Alpha", 0); err != nil {
		t.Fatal(err)
	}
	count, _ := s.Count("mst_ledger", "Alpha")
	if count != 1 {
		t.Fatalf("count = %d, want 1 after replace", count)
	}
	row, err := s.RowByGUID("mst_ledger", "g-1", "Alpha")
	if err != nil {
		t.Fatal(err)
	}
	if row["name"] != "Petty Cash" {
		t.Errorf("name = %v, want replaced value", row["name"])
	}
}

func TestBulkInsertAddsMissingColumns(t *testing.T) {
	s := openTestStore(t)
	row := ledgerRow("g-1", "Cash", 1)
	row["gst_number"] = "29ABCDE1234F1Z5"
	if _, err := s.BulkInsert("mst_ledger", []decode.Row{row}, "Alpha", 0); err != nil {
		t.Fatalf("BulkInsert with new column: %v", err)
	}
	got, err := s.RowByGUID("mst_ledger", "g-1", "Alpha")
	if err != nil {
		t.Fatal(err)
	}
	if got["gst_number"] != "29ABCDE1234F1Z5" {
		t.Errorf("gst_number = %v", got["gst_number"])
	}
}

func TestRowByGUIDCompanyScoped(t *testing.T) {
	s := openTestStore(t)
	s.BulkInsert("mst_ledger", []decode.Row{ledgerRow("g-1", "Alpha Cash", 1)}, "Alpha", 0)
	s.BulkInsert("mst_ledger", []decode.Row{ledgerRow("g-1", "Beta Cash", 1)}, "Beta", 0)

	row, err := s.RowByGUID("mst_ledger", "g-1", "Beta")
	if err != nil {
		t.Fatal(err)
	}
	if row["name"] != "Beta Cash" {
		t.Errorf("name = %v, want the Beta row", row["name"])
	}
	missing, err := s.RowByGUID("mst_ledger", "g-9", "Alpha")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Errorf("absent guid should return nil, got %v", missing)
	}
}

func TestTruncateCompanyScoped(t *testing.T) {
	s := openTestStore(t)
	s.BulkInsert("mst_ledger", []decode.Row{ledgerRow("g-1", "Cash", 1)}, "Alpha", 0)
	s.BulkInsert("mst_ledger", []decode.Row{ledgerRow("g-2", "Cash", 1)}, "Beta", 0)

	if err := s.Truncate("mst_ledger", "Alpha"); err != nil {
		t.Fatal(err)
	}
	alpha, _ := s.Count("mst_ledger", "Alpha")
	beta, _ := s.Count("mst_ledger", "Beta")
	if alpha != 0 || beta != 1 {
		t.Errorf("alpha = %d beta = %d, want 0 and 1", alpha, beta)
	}

	// Missing tables truncate as a no-op.
	if err := s.Truncate("no_such_table", "Alpha"); err != nil {
		t.Errorf("missing table: %v", err)
	}
}

func TestStagingDeletions(t *testing.T) {
	s := openTestStore(t)
	s.BulkInsert("mst_ledger", []decode.Row{
		ledgerRow("g-1", "Cash", 10),
		ledgerRow("g-2", "Sales", 20),
		ledgerRow("g-3", "Bank", 30),
	}, "Alpha", 0)

	// Gateway still has g-1 unchanged, g-2 with a new alter-id; g-3 vanished.
	if err := s.ResetStaging(); err != nil {
		t.Fatal(err)
	}
	if err := s.StageDiff([]GUIDAlterID{{"g-1", 10}, {"g-2", 25}}); err != nil {
		t.Fatal(err)
	}
	staged, err := s.StageDeletions("mst_ledger", "Alpha")
	if err != nil {
		t.Fatal(err)
	}
	if staged != 2 {
		t.Errorf("staged = %d, want 2 (one vanished, one changed)", staged)
	}

	guids, err := s.StagedDeletions()
	if err != nil {
		t.Fatal(err)
	}
	set := make(map[string]bool)
	for _, g := range guids {
		set[g] = true
	}
	if !set["g-2"] || !set["g-3"] || set["g-1"] {
		t.Errorf("staged guids = %v", guids)
	}

	removed, err := s.DeleteStaged("mst_ledger", "Alpha", nil)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	count, _ := s.Count("mst_ledger", "Alpha")
	if count != 1 {
		t.Errorf("count = %d, want only g-1 left", count)
	}
}

func TestDeleteStagedCascades(t *testing.T) {
	s := openTestStore(t)
	s.BulkInsert("trn_voucher", []decode.Row{
		{"guid": "v-1", "alterid": 1.0, "date": "2026-04-01"},
		{"guid": "v-2", "alterid": 2.0, "date": "2026-04-02"},
	}, "Alpha", 0)
	s.BulkInsert("trn_accounting", []decode.Row{
		{"voucher_guid": "v-1", "ledger": "Cash", "amount": -10.0},
		{"voucher_guid": "v-1", "ledger": "Sales", "amount": 10.0},
		{"voucher_guid": "v-2", "ledger": "Cash", "amount": -5.0},
	}, "Alpha", 0)

	s.ResetStaging()
	s.StageDiff([]GUIDAlterID{{"v-2", 2}})
	if _, err := s.StageDeletions("trn_voucher", "Alpha"); err != nil {
		t.Fatal(err)
	}
	removed, err := s.DeleteStaged("trn_voucher", "Alpha", []spec.Cascade{{Table: "trn_accounting", Column: "voucher_guid"}})
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1 voucher", removed)
	}
	acc, _ := s.Count("trn_accounting", "Alpha")
	if acc != 1 {
		t.Errorf("accounting rows = %d, want only v-2's entry", acc)
	}
}

func TestCompanyStateSyncCount(t *testing.T) {
	s := openTestStore(t)
	st := CompanyState{GUID: "co-1", Name: "Alpha", LastSyncType: "full",
		LastAlterIDMaster: 100, LastAlterIDTransaction: 200}
	if err := s.UpsertCompanyState(st); err != nil {
		t.Fatal(err)
	}
	st.LastSyncType = "incremental"
	st.LastAlterIDMaster = 150
	if err := s.UpsertCompanyState(st); err != nil {
		t.Fatal(err)
	}

	got, err := s.CompanyStateByName("Alpha")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("state row missing")
	}
	if got.SyncCount != 2 {
		t.Errorf("sync_count = %d, want 2", got.SyncCount)
	}
	if got.LastAlterIDMaster != 150 || got.LastSyncType != "incremental" {
		t.Errorf("state = %+v", got)
	}

	none, err := s.CompanyStateByName("Nobody")
	if err != nil {
		t.Fatal(err)
	}
	if none != nil {
		t.Error("unknown company should return nil state")
	}
}

func TestCompanyStateNameFallbackKey(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpsertCompanyState(CompanyState{Name: "NoGuid Co", LastSyncType: "full"}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertCompanyState(CompanyState{Name: "NoGuid Co", LastSyncType: "full"}); err != nil {
		t.Fatal(err)
	}
	companies, err := s.SyncedCompanies()
	if err != nil {
		t.Fatal(err)
	}
	if len(companies) != 1 {
		t.Errorf("got %d company rows, want 1", len(companies))
	}
}

func TestSessionsLifecycle(t *testing.T) {
	s := openTestStore(t)
	if err := s.BeginSession("full_1", "full", "Alpha"); err != nil {
		t.Fatal(err)
	}
	if err := s.FinishSession("full_1", "completed", 42, 3, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.BeginSession("inc_1", "incremental", "Alpha"); err != nil {
		t.Fatal(err)
	}
	if err := s.FinishSession("inc_1", "failed", 0, 0, "gateway unreachable"); err != nil {
		t.Fatal(err)
	}

	sessions, err := s.Sessions(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	// Newest first.
	if sessions[0].SessionID != "inc_1" || sessions[0].Status != "failed" || sessions[0].Error != "gateway unreachable" {
		t.Errorf("session 0 = %+v", sessions[0])
	}
	if sessions[1].Status != "completed" || sessions[1].RowsProcessed != 42 {
		t.Errorf("session 1 = %+v", sessions[1])
	}
}

func TestWriteLegacyConfig(t *testing.T) {
	s := openTestStore(t)
	if err := s.WriteLegacyConfig(map[string]string{"Company Name": "Alpha"}); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteLegacyConfig(map[string]string{"Company Name": "Beta"}); err != nil {
		t.Fatal(err)
	}
	var v string
	if err := s.DB().QueryRow("SELECT value FROM config WHERE name = 'Company Name'").Scan(&v); err != nil {
		t.Fatal(err)
	}
	if v != "Beta" {
		t.Errorf("value = %q, want overwritten", v)
	}
}

func TestTableCountsAndSize(t *testing.T) {
	s := openTestStore(t)
	s.BulkInsert("mst_ledger", []decode.Row{ledgerRow("g-1", "Cash", 1)}, "Alpha", 0)

	counts, err := s.TableCounts([]string{"mst_ledger", "trn_voucher", "not_created"}, "Alpha")
	if err != nil {
		t.Fatal(err)
	}
	if counts[0].Rows != 1 || counts[1].Rows != 0 || counts[2].Rows != 0 {
		t.Errorf("counts = %v", counts)
	}

	size, err := s.SizeBytes()
	if err != nil {
		t.Fatal(err)
	}
	if size <= 0 {
		t.Errorf("size = %d, want positive", size)
	}
}

func TestBootstrapFromSchemaFile(t *testing.T) {
	dir := t.TempDir()
	schema := `
CREATE TABLE mst_ledger (
	guid varchar(64) NOT NULL,
	alterid int,
	name nvarchar(1024),
	opening_balance decimal(17,2),
	is_revenue tinyint,
	created date
);
CREATE TABLE trn_voucher (guid varchar(64), alterid int, date date);
CREATE TABLE trn_accounting (voucher_guid varchar(64), ledger nvarchar(1024), amount decimal(17,4));
`
	path := filepath.Join(dir, "schema.sql")
	if err := os.WriteFile(path, []byte(schema), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Bootstrap(path, testConfig()); err != nil {
		t.Fatalf("Bootstrap from file: %v", err)
	}

	// The rewritten schema has no _company column; Bootstrap backfills it.
	if _, err := s.BulkInsert("mst_ledger", []decode.Row{ledgerRow("g-1", "Cash", 1)}, "Alpha", 0); err != nil {
		t.Fatalf("insert after schema-file bootstrap: %v", err)
	}
	n, _ := s.Count("mst_ledger", "Alpha")
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestRewriteSQL(t *testing.T) {
	in := `CREATE TABLE t (a varchar(64), b nvarchar(1024), c decimal(17,2), d tinyint, e int, f date, g datetime);
CREATE INDEX idx_t_a ON t(a);`
	out := RewriteSQL(in)

	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS t",
		"CREATE INDEX IF NOT EXISTS idx_t_a",
		"a TEXT", "b TEXT", "c REAL", "d INTEGER", "e INTEGER", "f TEXT", "g TEXT",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rewritten SQL missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(strings.ToLower(out), "varchar") || strings.Contains(strings.ToLower(out), "decimal") {
		t.Errorf("server types survived the rewrite:\n%s", out)
	}
}

func TestEnsureColumns(t *testing.T) {
	s := openTestStore(t)
	if err := s.EnsureColumns("mst_ledger", []string{"guid", "brand_new", "another_new"}); err != nil {
		t.Fatal(err)
	}
	cols, err := s.tableColumns("mst_ledger")
	if err != nil {
		t.Fatal(err)
	}
	if !cols["brand_new"] || !cols["another_new"] {
		t.Errorf("columns = %v", cols)
	}
}
