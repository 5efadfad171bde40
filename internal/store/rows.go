package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/marcus/erpsync/internal/decode"
)

// Truncate removes one company's rows from a table. An empty company
// clears the whole table.
func (s *Store) Truncate(table, company string) error {
	ok, err := s.TableExists(table)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return s.withWriteLock(func() error {
		var res error
		if company == "" {
			_, res = s.db.Exec(fmt.Sprintf("DELETE FROM %s", quoteIdent(table)))
		} else {
			_, res = s.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE _company = ?", quoteIdent(table)), company)
		}
		if res != nil {
			return fmt.Errorf("truncate %s: %w", table, res)
		}
		return nil
	})
}

// TruncateAll truncates every named table for one company.
func (s *Store) TruncateAll(tables []string, company string) error {
	for _, t := range tables {
		if err := s.Truncate(t, company); err != nil {
			return err
		}
	}
	return nil
}

// BulkInsert writes rows into table in batches, tagging each row with the
// company. Missing destination columns are added first. Returns the
// number of rows written.
func (s *Store) BulkInsert(table string, rows []decode.Row, company string, batchSize int) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 1000
	}

	cols := rowColumns(rows)
	if err := s.EnsureColumns(table, cols); err != nil {
		return 0, err
	}

	all := append(append([]string{}, cols...), "_company")
	quoted := make([]string, len(all))
	for i, c := range all {
		quoted[i] = quoteIdent(c)
	}
	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?,", len(all)), ",") + ")"
	prefix := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES ",
		quoteIdent(table), strings.Join(quoted, ", "))

	written := 0
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		batch := rows[start:end]

		values := strings.TrimSuffix(strings.Repeat(placeholders+",", len(batch)), ",")
		args := make([]any, 0, len(batch)*len(all))
		for _, row := range batch {
			for _, c := range cols {
				args = append(args, row[c])
			}
			args = append(args, company)
		}

		err := s.withWriteLock(func() error {
			_, err := s.db.Exec(prefix+values, args...)
			return err
		})
		if err != nil {
			return written, fmt.Errorf("insert into %s: %w", table, err)
		}
		written += len(batch)
	}
	return written, nil
}

// Upsert writes a single row.
func (s *Store) Upsert(table string, row decode.Row, company string) error {
	_, err := s.BulkInsert(table, []decode.Row{row}, company, 1)
	return err
}

// RowByGUID returns one company-scoped row keyed by guid, or nil when
// absent.
func (s *Store) RowByGUID(table, guid, company string) (map[string]any, error) {
	query := fmt.Sprintf("SELECT * FROM %s WHERE guid = ? AND _company = ?", quoteIdent(table))
	rows, err := s.db.Query(query, guid, company)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(cols))
	for i, c := range cols {
		if b, ok := vals[i].([]byte); ok {
			out[c] = string(b)
		} else {
			out[c] = vals[i]
		}
	}
	return out, nil
}

// Count returns the number of rows in a table, optionally company-scoped.
func (s *Store) Count(table, company string) (int64, error) {
	ok, err := s.TableExists(table)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	var n int64
	if company == "" {
		err = s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(table))).Scan(&n)
	} else {
		err = s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE _company = ?", quoteIdent(table)), company).Scan(&n)
	}
	return n, err
}

// rowColumns returns the union of column names across rows, sorted for a
// stable statement shape. The _company scope column is supplied by the
// writer, never taken from row data.
func rowColumns(rows []decode.Row) []string {
	seen := make(map[string]bool)
	for _, row := range rows {
		for c := range row {
			if c == "_company" {
				continue
			}
			seen[c] = true
		}
	}
	cols := make([]string, 0, len(seen))
	for c := range seen {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}
