package store

import (
	"database/sql"
	"fmt"

	"github.com/marcus/erpsync/internal/spec"
)

// ResetStaging clears the _diff and _delete staging tables. Called at the
// start of each table's incremental pass.
func (s *Store) ResetStaging() error {
	return s.withWriteLock(func() error {
		for _, t := range []string{"_diff", "_delete"} {
			if _, err := s.db.Exec(fmt.Sprintf("DELETE FROM %s", t)); err != nil {
				return fmt.Errorf("reset %s: %w", t, err)
			}
		}
		return nil
	})
}

// StageDiff loads the Gateway's current guid/alter-id pairs for one table
// into _diff.
func (s *Store) StageDiff(pairs []GUIDAlterID) error {
	return s.withTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare("INSERT INTO _diff (guid, alterid) VALUES (?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, p := range pairs {
			if _, err := stmt.Exec(p.GUID, p.AlterID); err != nil {
				return fmt.Errorf("stage diff: %w", err)
			}
		}
		return nil
	})
}

// GUIDAlterID is one staged identity pair.
type GUIDAlterID struct {
	GUID    string
	AlterID int64
}

// StageDeletions fills _delete with the guids of local rows that should
// no longer exist: rows absent from _diff entirely, plus rows whose
// alter-id changed (they are deleted and re-imported).
func (s *Store) StageDeletions(table, company string) (int64, error) {
	var staged int64
	err := s.withTx(func(tx *sql.Tx) error {
		tbl := quoteIdent(table)
		res, err := tx.Exec(fmt.Sprintf(`
			INSERT INTO _delete (guid)
			SELECT t.guid FROM %s t
			WHERE t._company = ? AND t.guid NOT IN (SELECT guid FROM _diff)`, tbl), company)
		if err != nil {
			return fmt.Errorf("stage missing rows: %w", err)
		}
		n, _ := res.RowsAffected()
		staged += n

		res, err = tx.Exec(fmt.Sprintf(`
			INSERT INTO _delete (guid)
			SELECT t.guid FROM %s t
			JOIN _diff d ON d.guid = t.guid
			WHERE t._company = ? AND t.alterid <> d.alterid`, tbl), company)
		if err != nil {
			return fmt.Errorf("stage changed rows: %w", err)
		}
		n, _ = res.RowsAffected()
		staged += n
		return nil
	})
	return staged, err
}

// StagedDeletions returns the staged guids.
func (s *Store) StagedDeletions() ([]string, error) {
	rows, err := s.db.Query("SELECT guid FROM _delete")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var guids []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		guids = append(guids, g)
	}
	return guids, rows.Err()
}

// DeleteStaged removes the staged rows from table and cascades into child
// tables, all in one transaction. Returns rows removed from the parent
// table.
func (s *Store) DeleteStaged(table, company string, cascades []spec.Cascade) (int64, error) {
	var removed int64
	err := s.withTx(func(tx *sql.Tx) error {
		for _, c := range cascades {
			_, err := tx.Exec(fmt.Sprintf(
				"DELETE FROM %s WHERE _company = ? AND %s IN (SELECT guid FROM _delete)",
				quoteIdent(c.Table), quoteIdent(c.Column)), company)
			if err != nil {
				return fmt.Errorf("cascade delete %s: %w", c.Table, err)
			}
		}
		res, err := tx.Exec(fmt.Sprintf(
			"DELETE FROM %s WHERE _company = ? AND guid IN (SELECT guid FROM _delete)",
			quoteIdent(table)), company)
		if err != nil {
			return fmt.Errorf("delete staged from %s: %w", table, err)
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	return removed, err
}
