package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CompanyState is the per-company replication cursor.
type CompanyState struct {
	GUID                   string `json:"company_guid"`
	Name                   string `json:"company_name"`
	BooksFrom              string `json:"books_from"`
	LastSyncAt             string `json:"last_sync_at"`
	LastSyncType           string `json:"last_sync_type"`
	LastAlterIDMaster      int64  `json:"last_alter_id_master"`
	LastAlterIDTransaction int64  `json:"last_alter_id_transaction"`
	SyncCount              int64  `json:"sync_count"`
}

// UpsertCompanyState records a completed sync for a company, bumping the
// sync counter. An empty GUID falls back to the company name as key so
// Gateways that never report a GUID still get a row.
func (s *Store) UpsertCompanyState(st CompanyState) error {
	key := st.GUID
	if key == "" {
		key = st.Name
	}
	now := time.Now().UTC().Format(time.RFC3339)
	return s.withWriteLock(func() error {
		_, err := s.db.Exec(`
			INSERT INTO company_config (
				company_guid, company_name, books_from, last_sync_at, last_sync_type,
				last_alter_id_master, last_alter_id_transaction, sync_count
			) VALUES (?, ?, ?, ?, ?, ?, ?, 1)
			ON CONFLICT(company_guid) DO UPDATE SET
				company_name = excluded.company_name,
				books_from = excluded.books_from,
				last_sync_at = excluded.last_sync_at,
				last_sync_type = excluded.last_sync_type,
				last_alter_id_master = excluded.last_alter_id_master,
				last_alter_id_transaction = excluded.last_alter_id_transaction,
				sync_count = company_config.sync_count + 1`,
			key, st.Name, st.BooksFrom, now, st.LastSyncType,
			st.LastAlterIDMaster, st.LastAlterIDTransaction)
		if err != nil {
			return fmt.Errorf("upsert company state: %w", err)
		}
		return nil
	})
}

// CompanyStateByName returns the state row for a company name, or nil
// when the company has never synced.
func (s *Store) CompanyStateByName(name string) (*CompanyState, error) {
	row := s.db.QueryRow(`
		SELECT company_guid, company_name, COALESCE(books_from,''),
			COALESCE(last_sync_at,''), COALESCE(last_sync_type,''),
			last_alter_id_master, last_alter_id_transaction, sync_count
		FROM company_config WHERE company_name = ?`, name)
	var st CompanyState
	err := row.Scan(&st.GUID, &st.Name, &st.BooksFrom, &st.LastSyncAt,
		&st.LastSyncType, &st.LastAlterIDMaster, &st.LastAlterIDTransaction, &st.SyncCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("company state: %w", err)
	}
	return &st, nil
}

// SyncedCompanies lists every company with a state row, most recently
// synced first.
func (s *Store) SyncedCompanies() ([]CompanyState, error) {
	rows, err := s.db.Query(`
		SELECT company_guid, company_name, COALESCE(books_from,''),
			COALESCE(last_sync_at,''), COALESCE(last_sync_type,''),
			last_alter_id_master, last_alter_id_transaction, sync_count
		FROM company_config ORDER BY last_sync_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CompanyState
	for rows.Next() {
		var st CompanyState
		if err := rows.Scan(&st.GUID, &st.Name, &st.BooksFrom, &st.LastSyncAt,
			&st.LastSyncType, &st.LastAlterIDMaster, &st.LastAlterIDTransaction, &st.SyncCount); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// WriteLegacyConfig mirrors sync facts into the old key/value config
// table. External reports still read it; nothing in this program does.
func (s *Store) WriteLegacyConfig(pairs map[string]string) error {
	return s.withTx(func(tx *sql.Tx) error {
		for k, v := range pairs {
			if _, err := tx.Exec(
				"INSERT INTO config (name, value) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET value = excluded.value",
				k, v); err != nil {
				return fmt.Errorf("write config %s: %w", k, err)
			}
		}
		return nil
	})
}
