package decode

import (
	"testing"

	"github.com/marcus/erpsync/internal/spec"
)

var ledgerFields = []spec.Field{
	{Name: "guid", Expr: "Guid", Kind: spec.KindText},
	{Name: "name", Expr: "Name", Kind: spec.KindText},
	{Name: "opening_balance", Expr: "OpeningBalance", Kind: spec.KindAmount},
	{Name: "is_revenue", Expr: "IsRevenue", Kind: spec.KindLogical},
	{Name: "created", Expr: "Created", Kind: spec.KindDate},
}

func TestRowsSlicesOnFirstTag(t *testing.T) {
	doc := `<ENVELOPE>` +
		`<F01>g-1</F01><F02>Cash</F02><F03>150.25</F03><F04>1</F04><F05>20210401</F05>` +
		`<F01>g-2</F01><F02>Sales</F02><F03>-80</F03><F04>0</F04><F05>ñ</F05>` +
		`</ENVELOPE>`

	rows, err := Rows(doc, ledgerFields)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	if rows[0]["guid"] != "g-1" || rows[0]["name"] != "Cash" {
		t.Errorf("row 0 text fields wrong: %v", rows[0])
	}
	if rows[0]["opening_balance"] != 150.25 {
		t.Errorf("opening_balance = %v, want 150.25", rows[0]["opening_balance"])
	}
	if rows[0]["is_revenue"] != int64(1) {
		t.Errorf("is_revenue = %v, want 1", rows[0]["is_revenue"])
	}
	if rows[0]["created"] != "2021-04-01" {
		t.Errorf("created = %v, want 2021-04-01", rows[0]["created"])
	}

	if rows[1]["opening_balance"] != -80.0 {
		t.Errorf("row 1 amount = %v, want -80", rows[1]["opening_balance"])
	}
	if rows[1]["created"] != nil {
		t.Errorf("null sentinel date should decode to nil, got %v", rows[1]["created"])
	}
}

func TestRowsMissingTagIsNull(t *testing.T) {
	doc := `<F01>g-1</F01><F02>Cash</F02>`
	rows, err := Rows(doc, ledgerFields)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0]["opening_balance"] != float64(0) {
		t.Errorf("missing amount = %v, want 0", rows[0]["opening_balance"])
	}
	if rows[0]["created"] != nil {
		t.Errorf("missing date = %v, want nil", rows[0]["created"])
	}
}

func TestRowsEmptyResponse(t *testing.T) {
	rows, err := Rows("<ENVELOPE></ENVELOPE>", ledgerFields)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("got %d rows from empty response, want 0", len(rows))
	}
}

func TestRowsNoFields(t *testing.T) {
	if _, err := Rows("<F01>x</F01>", nil); err == nil {
		t.Fatal("expected error for empty field list")
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		raw  string
		kind spec.Kind
		want any
	}{
		{"hello", spec.KindText, "hello"},
		{"ñ", spec.KindText, ""},
		{"Yes", spec.KindLogical, int64(1)},
		{"0", spec.KindLogical, int64(0)},
		{"ñ", spec.KindLogical, int64(0)},
		{"1,234.50", spec.KindAmount, 1234.5},
		{"(-)12", spec.KindQuantity, -12.0},
		{"garbage", spec.KindNumber, 0.0},
		{"ñ", spec.KindRate, 0.0},
		{"20260815", spec.KindDate, "2026-08-15"},
		{"bogus", spec.KindDate, nil},
	}
	for _, tt := range tests {
		if got := Coerce(tt.raw, tt.kind); got != tt.want {
			t.Errorf("Coerce(%q, %s) = %#v, want %#v", tt.raw, tt.kind, got, tt.want)
		}
	}
}

func TestTabularRows(t *testing.T) {
	fields := []spec.Field{
		{Name: "name", Kind: spec.KindText},
		{Name: "number", Kind: spec.KindText},
	}
	doc := "Alpha Traders\t10001\r\nBeta Mills\t10002\r\n\r\n"
	rows, err := TabularRows(doc, fields)
	if err != nil {
		t.Fatalf("TabularRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0]["name"] != "Alpha Traders" || rows[1]["number"] != "10002" {
		t.Errorf("unexpected rows: %v", rows)
	}
}

func TestTagValues(t *testing.T) {
	doc := `<A>1</A><B>x</B><A>2</A>`
	got := TagValues(doc, "A")
	if len(got) != 2 || got[0] != "1" || got[1] != "2" {
		t.Errorf("TagValues = %v", got)
	}
	if v, ok := FirstTag(doc, "B"); !ok || v != "x" {
		t.Errorf("FirstTag = %q, %v", v, ok)
	}
	if _, ok := FirstTag(doc, "C"); ok {
		t.Error("FirstTag found missing tag")
	}
}
