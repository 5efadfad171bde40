// Package decode turns flat Gateway report responses into typed rows.
//
// The Gateway renders each row as a run of positional tags <F01>..<Fnn>
// with no row wrapper, so decoding slices the document on occurrences of
// the first tag and pulls each field's tag out of its slice.
package decode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/marcus/erpsync/internal/spec"
)

// ErrDecode reports a Gateway response that could not be parsed.
var ErrDecode = errors.New("undecodable gateway response")

// NullSentinel is the character the report definitions emit for empty
// values. Fields carrying exactly this value decode to NULL.
const NullSentinel = "ñ"

// Row is one decoded record keyed by destination column name. Values are
// string, int64, float64 or nil depending on the field kind.
type Row map[string]any

// Rows decodes a flat report response into rows for the given fields.
// A response containing no row tags yields zero rows, not an error.
func Rows(response string, fields []spec.Field) ([]Row, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields", ErrDecode)
	}

	first := positionTag(1)
	open := "<" + first + ">"

	var starts []int
	for i := 0; ; {
		j := strings.Index(response[i:], open)
		if j < 0 {
			break
		}
		starts = append(starts, i+j)
		i += j + len(open)
	}
	if len(starts) == 0 {
		return nil, nil
	}

	rows := make([]Row, 0, len(starts))
	for n, start := range starts {
		end := len(response)
		if n+1 < len(starts) {
			end = starts[n+1]
		}
		chunk := response[start:end]

		row := make(Row, len(fields))
		for i, f := range fields {
			raw, ok := tagValue(chunk, positionTag(i+1))
			if !ok {
				row[f.Name] = nullValue(f.Kind)
				continue
			}
			row[f.Name] = Coerce(raw, f.Kind)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// TabularRows decodes the tab-separated export format used by a few
// metadata reports: one row per CRLF line, one field per tab.
func TabularRows(response string, fields []spec.Field) ([]Row, error) {
	var rows []Row
	for _, line := range strings.Split(response, "\r\n") {
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		row := make(Row, len(fields))
		for i, f := range fields {
			if i >= len(parts) {
				row[f.Name] = nullValue(f.Kind)
				continue
			}
			row[f.Name] = Coerce(strings.TrimSpace(parts[i]), f.Kind)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// positionTag returns the response tag for the nth field (1-based): F01,
// F02, ... F10, F100.
func positionTag(n int) string {
	return fmt.Sprintf("F%02d", n)
}

// tagValue extracts the text of the first <tag>..</tag> pair in chunk.
func tagValue(chunk, tag string) (string, bool) {
	open, close := "<"+tag+">", "</"+tag+">"
	i := strings.Index(chunk, open)
	if i < 0 {
		return "", false
	}
	rest := chunk[i+len(open):]
	j := strings.Index(rest, close)
	if j < 0 {
		return "", false
	}
	return rest[:j], true
}

// Coerce converts a raw field value to its storage representation for the
// given kind. The null sentinel always maps to the kind's null value.
func Coerce(raw string, kind spec.Kind) any {
	raw = strings.TrimSpace(raw)
	if raw == NullSentinel {
		return nullValue(kind)
	}
	switch kind {
	case spec.KindLogical:
		if raw == "1" || strings.EqualFold(raw, "yes") || strings.EqualFold(raw, "true") {
			return int64(1)
		}
		return int64(0)
	case spec.KindDate:
		iso, ok := ParseDate(raw)
		if !ok {
			return nil
		}
		return iso
	case spec.KindNumber, spec.KindAmount, spec.KindQuantity, spec.KindRate:
		return parseNumber(raw)
	default:
		return raw
	}
}

func nullValue(kind spec.Kind) any {
	switch kind {
	case spec.KindText:
		return ""
	case spec.KindLogical:
		return int64(0)
	case spec.KindNumber, spec.KindAmount, spec.KindQuantity, spec.KindRate:
		return float64(0)
	default:
		return nil
	}
}

// parseNumber strips grouping commas and any residual bracket negatives
// before parsing. Unparseable values become 0.
func parseNumber(raw string) float64 {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		}
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0
	}
	return v
}
