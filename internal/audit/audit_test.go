package audit

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marcus/erpsync/internal/decode"
	"github.com/marcus/erpsync/internal/spec"
	"github.com/marcus/erpsync/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cfg := &spec.Config{
		Master: []spec.Table{{
			Name:       "mst_ledger",
			Collection: "Ledger",
			Fields: []spec.Field{
				{Name: "guid", Expr: "Guid", Kind: spec.KindText},
				{Name: "name", Expr: "Name", Kind: spec.KindText},
				{Name: "opening_balance", Expr: "OpeningBalance", Kind: spec.KindAmount},
			},
		}},
	}
	if err := s.Bootstrap("", cfg); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return s
}

func TestRecorderInsertAndHistory(t *testing.T) {
	s := openTestStore(t)
	r := NewRecorder(s, "inc_1", "incremental", "Alpha")

	r.LogInsert("mst_ledger", "g-1", "Cash", map[string]any{"guid": "g-1", "name": "Cash"}, 42)

	events, err := History(s, Filter{Table: "mst_ledger"})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	e := events[0]
	if e.Action != "INSERT" || e.GUID != "g-1" || e.Name != "Cash" {
		t.Errorf("event = %+v", e)
	}
	if e.SessionID != "inc_1" || e.SyncType != "incremental" || e.Company != "Alpha" {
		t.Errorf("session fields = %+v", e)
	}
	if e.AlterID != 42 {
		t.Errorf("alter id = %d, want 42", e.AlterID)
	}
	if !strings.Contains(e.NewData, `"name":"Cash"`) {
		t.Errorf("new_data = %q", e.NewData)
	}
	if e.OldData != "" {
		t.Errorf("insert should have no old_data, got %q", e.OldData)
	}
}

func TestRecorderUpdateSuppressedWhenUnchanged(t *testing.T) {
	s := openTestStore(t)
	r := NewRecorder(s, "inc_1", "incremental", "Alpha")

	// sqlite reads numbers back as int64/float64; the incoming row carries
	// float64. Same value must not count as a change.
	old := map[string]any{"guid": "g-1", "opening_balance": int64(100)}
	niu := map[string]any{"guid": "g-1", "opening_balance": float64(100)}
	r.LogUpdate("mst_ledger", "g-1", "Cash", old, niu, 1)

	events, err := History(s, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("unchanged update should be suppressed, got %d events", len(events))
	}

	niu["opening_balance"] = float64(250)
	r.LogUpdate("mst_ledger", "g-1", "Cash", old, niu, 2)
	events, _ = History(s, Filter{})
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if !strings.Contains(events[0].ChangedFields, "opening_balance") {
		t.Errorf("changed_fields = %q", events[0].ChangedFields)
	}
}

func TestChangedColumns(t *testing.T) {
	old := map[string]any{"a": "x", "b": int64(1), "c": []byte("same"), "d": nil}
	niu := map[string]any{"a": "y", "b": float64(1), "c": "same", "d": "", "e": "new"}
	got := ChangedColumns(old, niu)
	want := []string{"a", "e"}
	if len(got) != len(want) {
		t.Fatalf("changed = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("changed = %v, want %v", got, want)
		}
	}
}

func TestDeleteAndRestore(t *testing.T) {
	s := openTestStore(t)
	row := decode.Row{"guid": "g-1", "name": "Cash", "opening_balance": 150.25}
	if err := s.Upsert("mst_ledger", row, "Alpha"); err != nil {
		t.Fatal(err)
	}
	stored, err := s.RowByGUID("mst_ledger", "g-1", "Alpha")
	if err != nil {
		t.Fatal(err)
	}

	r := NewRecorder(s, "inc_1", "incremental", "Alpha")
	r.LogDelete("mst_ledger", "g-1", "Cash", stored)
	if err := s.Truncate("mst_ledger", "Alpha"); err != nil {
		t.Fatal(err)
	}

	deleted, err := DeletedRecords(s, "", "", false, 0, 0)
	if err != nil {
		t.Fatalf("DeletedRecords: %v", err)
	}
	if len(deleted) != 1 {
		t.Fatalf("got %d snapshots, want 1", len(deleted))
	}
	d := deleted[0]
	if d.Table != "mst_ledger" || d.GUID != "g-1" || d.IsRestored {
		t.Errorf("snapshot = %+v", d)
	}

	restored, err := Restore(s, d.ID)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.GUID != "g-1" {
		t.Errorf("restored = %+v", restored)
	}

	back, err := s.RowByGUID("mst_ledger", "g-1", "Alpha")
	if err != nil {
		t.Fatal(err)
	}
	if back == nil || back["name"] != "Cash" {
		t.Errorf("row after restore = %v", back)
	}

	// Second restore of the same snapshot fails.
	if _, err := Restore(s, d.ID); !errors.Is(err, ErrNotRestorable) {
		t.Errorf("got %v, want ErrNotRestorable", err)
	}
	// Restored snapshots drop out of the default listing.
	remaining, _ := DeletedRecords(s, "", "", false, 0, 0)
	if len(remaining) != 0 {
		t.Errorf("restored snapshot still listed: %v", remaining)
	}
	all, _ := DeletedRecords(s, "", "", true, 0, 0)
	if len(all) != 1 || !all[0].IsRestored {
		t.Errorf("include_restored listing = %v", all)
	}
}

func TestRestoreUnknownID(t *testing.T) {
	s := openTestStore(t)
	if _, err := Restore(s, 999); !errors.Is(err, ErrNotRestorable) {
		t.Errorf("got %v, want ErrNotRestorable", err)
	}
}

func TestHistoryFilters(t *testing.T) {
	s := openTestStore(t)
	ra := NewRecorder(s, "s-1", "incremental", "Alpha")
	rb := NewRecorder(s, "s-2", "incremental", "Beta")

	ra.LogInsert("mst_ledger", "g-1", "Cash", map[string]any{"guid": "g-1"}, 0)
	ra.LogUpdate("mst_ledger", "g-1", "Cash",
		map[string]any{"name": "Cash"}, map[string]any{"name": "Petty Cash"}, 0)
	ra.LogDelete("mst_ledger", "g-2", "Old", map[string]any{"guid": "g-2"})
	rb.LogInsert("mst_ledger", "g-3", "Bank", map[string]any{"guid": "g-3"}, 0)

	byAction, err := History(s, Filter{Action: "INSERT"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byAction) != 2 {
		t.Errorf("INSERT filter: %d events, want 2", len(byAction))
	}

	byCompany, err := History(s, Filter{Company: "Beta"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byCompany) != 1 || byCompany[0].GUID != "g-3" {
		t.Errorf("company filter = %v", byCompany)
	}

	byGUID, err := History(s, Filter{GUID: "g-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byGUID) != 2 {
		t.Errorf("guid filter: %d events, want 2", len(byGUID))
	}

	limited, err := History(s, Filter{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("limit 1 returned %d", len(limited))
	}

	record, err := RecordHistory(s, "mst_ledger", "g-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(record) != 2 || record[0].Action != "INSERT" || record[1].Action != "UPDATE" {
		t.Errorf("record history = %v", record)
	}
}

func TestSessionChanges(t *testing.T) {
	s := openTestStore(t)
	r := NewRecorder(s, "s-1", "incremental", "Alpha")
	r.LogInsert("mst_ledger", "g-1", "Cash", map[string]any{"guid": "g-1"}, 0)
	r.LogInsert("mst_ledger", "g-2", "Bank", map[string]any{"guid": "g-2"}, 0)
	r.LogDelete("mst_ledger", "g-3", "Old", map[string]any{"guid": "g-3"})

	events, byAction, err := SessionChanges(s, "s-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Errorf("got %d events, want 3", len(events))
	}
	if byAction["INSERT"] != 2 || byAction["DELETE"] != 1 {
		t.Errorf("by action = %v", byAction)
	}
	if other, _, _ := SessionChanges(s, "s-none"); len(other) != 0 {
		t.Errorf("unknown session returned %d events", len(other))
	}
}

func TestGetStats(t *testing.T) {
	s := openTestStore(t)
	r := NewRecorder(s, "s-1", "incremental", "Alpha")
	r.LogInsert("mst_ledger", "g-1", "Cash", map[string]any{"guid": "g-1"}, 0)
	r.LogDelete("mst_ledger", "g-2", "Old", map[string]any{"guid": "g-2"})

	st, err := GetStats(s, "")
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if st.ByAction["INSERT"] != 1 || st.ByAction["DELETE"] != 1 {
		t.Errorf("by action = %v", st.ByAction)
	}
	if st.ByTable["mst_ledger"] != 2 {
		t.Errorf("by table = %v", st.ByTable)
	}
	if st.PendingDeleted != 1 {
		t.Errorf("pending deleted = %d, want 1", st.PendingDeleted)
	}

	other, err := GetStats(s, "Beta")
	if err != nil {
		t.Fatal(err)
	}
	if len(other.ByAction) != 0 || other.PendingDeleted != 0 {
		t.Errorf("Beta stats should be empty: %+v", other)
	}
}
