// Package report generates the Gateway report-definition payloads that
// drive data extraction. Each replicated table becomes one report: nested
// parts and lines walking the collection path, positional fields with
// per-kind formatting expressions, and numbered filter formulas.
package report

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/marcus/erpsync/internal/spec"
)

// simpleExpr matches a bare attribute reference, optionally reaching one
// level up the owner chain. Anything else is a compound expression and is
// emitted verbatim.
var simpleExpr = regexp.MustCompile(`^(\.\.)?[a-zA-Z0-9_]+$`)

// positional returns prefix + zero-padded 1-based index: Fld01, MyPart02.
func positional(prefix string, n int) string {
	return fmt.Sprintf("%s%02d", prefix, n)
}

// Build renders the extraction report for one table. fromDate and toDate
// are ISO dates scoping the report period; company scopes the report to a
// single company and may be empty to use the Gateway's active company.
func Build(t spec.Table, fromDate, toDate, company string) string {
	var b strings.Builder

	b.WriteString(`<?xml version="1.0" encoding="utf-8"?><ENVELOPE><HEADER><VERSION>1</VERSION><TALLYREQUEST>Export</TALLYREQUEST><TYPE>Data</TYPE><ID>TallyDatabaseLoaderReport</ID></HEADER><BODY><DESC><STATICVARIABLES><SVEXPORTFORMAT>XML (Data Interchange)</SVEXPORTFORMAT>`)
	fmt.Fprintf(&b, "<SVFROMDATE>%s</SVFROMDATE><SVTODATE>%s</SVTODATE>",
		strings.ReplaceAll(fromDate, "-", ""), strings.ReplaceAll(toDate, "-", ""))
	if company != "" {
		fmt.Fprintf(&b, "<SVCURRENTCOMPANY>%s</SVCURRENTCOMPANY>", html.EscapeString(company))
	}
	b.WriteString(`</STATICVARIABLES><TDL><TDLMESSAGE><REPORT NAME="TallyDatabaseLoaderReport"><FORMS>MyForm</FORMS></REPORT><FORM NAME="MyForm"><PARTS>MyPart01</PARTS></FORM>`)

	// A dotted collection path like Voucher.AllLedgerEntries becomes one
	// part/line pair per level; the first level is always the report's own
	// collection.
	routes := strings.Split(t.Collection, ".")
	rootCollection := routes[0]
	routes[0] = "MyCollection"

	for i, route := range routes {
		part := positional("MyPart", i+1)
		line := positional("MyLine", i+1)
		fmt.Fprintf(&b, `<PART NAME="%s"><LINES>%s</LINES><REPEAT>%s : %s</REPEAT><SCROLLED>Vertical</SCROLLED></PART>`, part, line, line, route)
	}
	for i := 0; i < len(routes)-1; i++ {
		line := positional("MyLine", i+1)
		part := positional("MyPart", i+2)
		fmt.Fprintf(&b, `<LINE NAME="%s"><FIELDS>FldBlank</FIELDS><EXPLODE>%s</EXPLODE></LINE>`, line, part)
	}

	names := make([]string, len(t.Fields))
	for i := range t.Fields {
		names[i] = positional("Fld", i+1)
	}
	fmt.Fprintf(&b, `<LINE NAME="%s"><FIELDS>%s</FIELDS></LINE>`,
		positional("MyLine", len(routes)), strings.Join(names, ","))

	for i, f := range t.Fields {
		fmt.Fprintf(&b, `<FIELD NAME="%s"><SET>%s</SET><XMLTAG>%s</XMLTAG></FIELD>`,
			positional("Fld", i+1), fieldSet(f), positional("F", i+1))
	}
	b.WriteString(`<FIELD NAME="FldBlank"><SET>""</SET></FIELD>`)

	fmt.Fprintf(&b, `<COLLECTION NAME="MyCollection"><TYPE>%s</TYPE>`, rootCollection)
	if len(t.Fetch) > 0 {
		fmt.Fprintf(&b, "<FETCH>%s</FETCH>", strings.Join(t.Fetch, ","))
	}
	if len(t.Filters) > 0 {
		filterNames := make([]string, len(t.Filters))
		for i := range t.Filters {
			filterNames[i] = positional("Fltr", i+1)
		}
		fmt.Fprintf(&b, "<FILTER>%s</FILTER>", strings.Join(filterNames, ","))
	}
	b.WriteString(`</COLLECTION>`)
	for i, flt := range t.Filters {
		fmt.Fprintf(&b, `<SYSTEM TYPE="Formulae" NAME="%s">%s</SYSTEM>`, positional("Fltr", i+1), flt)
	}

	b.WriteString(`</TDLMESSAGE></TDL></DESC></BODY></ENVELOPE>`)
	return b.String()
}

// fieldSet renders the SET expression for a field. Simple attribute
// references get the kind's formatting template; compound expressions are
// the author's own formula and pass through untouched.
func fieldSet(f spec.Field) string {
	if !simpleExpr.MatchString(f.Expr) {
		return f.Expr
	}
	expr := "$" + f.Expr
	switch f.Kind {
	case spec.KindLogical:
		return fmt.Sprintf("if %s then 1 else 0", expr)
	case spec.KindDate:
		return fmt.Sprintf(`if $$IsEmpty:%s then $$StrByCharCode:241 else $$PyrlYYYYMMDDFormat:%s:"-"`, expr, expr)
	case spec.KindNumber:
		return fmt.Sprintf(`if $$IsEmpty:%s then "0" else $$String:%s`, expr, expr)
	case spec.KindAmount:
		return fmt.Sprintf(`$$StringFindAndReplace:(if $$IsDebit:%s then -$$NumValue:%s else $$NumValue:%s):"(-)":"-"`, expr, expr, expr)
	case spec.KindQuantity:
		return fmt.Sprintf(`$$StringFindAndReplace:(if $$IsInwards:%s then $$Number:$$String:%s:"TailUnits" else -$$Number:$$String:%s:"TailUnits"):"(-)":"-"`, expr, expr, expr)
	case spec.KindRate:
		return fmt.Sprintf("if $$IsEmpty:%s then 0 else $$Number:%s", expr, expr)
	default:
		return expr
	}
}

// DiffTable returns the synthetic table used to stage guid/alter-id pairs
// for change detection. It reads the same collection with the same filters
// as t but extracts only the identity columns.
func DiffTable(t spec.Table) spec.Table {
	return spec.Table{
		Name:       t.Name,
		Collection: t.Collection,
		Nature:     t.Nature,
		Fields: []spec.Field{
			{Name: "guid", Expr: "Guid", Kind: spec.KindText},
			{Name: "alterid", Expr: "AlterId", Kind: spec.KindNumber},
		},
		Fetch:   []string{"AlterId"},
		Filters: t.Filters,
	}
}

// WithAlterIDFloor returns t with an extra filter restricting the export
// to rows changed after the given alter-id.
func WithAlterIDFloor(t spec.Table, alterID int64) spec.Table {
	out := t
	out.Filters = append(append([]string{}, t.Filters...), fmt.Sprintf("$AlterID > %d", alterID))
	return out
}
