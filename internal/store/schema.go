package store

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/marcus/erpsync/internal/spec"
)

// Bookkeeping tables created alongside the mirrored tables.
const infraSchema = `
CREATE TABLE IF NOT EXISTS config (
	name TEXT NOT NULL PRIMARY KEY,
	value TEXT
);

CREATE TABLE IF NOT EXISTS company_config (
	company_guid TEXT NOT NULL PRIMARY KEY,
	company_name TEXT NOT NULL,
	books_from TEXT,
	last_sync_at TEXT,
	last_sync_type TEXT,
	last_alter_id_master INTEGER NOT NULL DEFAULT 0,
	last_alter_id_transaction INTEGER NOT NULL DEFAULT 0,
	sync_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sync_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	sync_type TEXT NOT NULL,
	company TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	started_at TEXT NOT NULL,
	completed_at TEXT,
	rows_processed INTEGER NOT NULL DEFAULT 0,
	tables_processed INTEGER NOT NULL DEFAULT 0,
	error TEXT
);
CREATE INDEX IF NOT EXISTS idx_sync_history_started ON sync_history(started_at);

CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sync_session_id TEXT,
	sync_type TEXT,
	table_name TEXT NOT NULL,
	record_guid TEXT NOT NULL,
	record_name TEXT,
	action TEXT NOT NULL,
	old_data TEXT,
	new_data TEXT,
	changed_fields TEXT,
	company TEXT,
	tally_alter_id INTEGER,
	status TEXT NOT NULL DEFAULT 'success',
	created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_audit_log_record ON audit_log(table_name, record_guid);
CREATE INDEX IF NOT EXISTS idx_audit_log_session ON audit_log(sync_session_id);
CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at);

CREATE TABLE IF NOT EXISTS deleted_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	table_name TEXT NOT NULL,
	record_guid TEXT NOT NULL,
	record_name TEXT,
	record_data TEXT NOT NULL,
	company TEXT,
	sync_session_id TEXT,
	is_restored INTEGER NOT NULL DEFAULT 0,
	deleted_at TEXT NOT NULL DEFAULT (datetime('now')),
	restored_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_deleted_records_table ON deleted_records(table_name);

CREATE TABLE IF NOT EXISTS _diff (
	guid TEXT NOT NULL,
	alterid INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS _delete (
	guid TEXT NOT NULL
);
`

// Bootstrap creates the mirrored tables and bookkeeping tables. When
// schemaFile names an existing SQL file it is rewritten to sqlite types
// and executed; otherwise DDL is derived from the extraction config.
// Either way, every replicated table then gets its _company column.
func (s *Store) Bootstrap(schemaFile string, cfg *spec.Config) error {
	var ddl string
	if schemaFile != "" {
		data, err := os.ReadFile(schemaFile)
		switch {
		case err == nil:
			ddl = RewriteSQL(string(data))
			slog.Info("loaded schema file", "path", schemaFile)
		case os.IsNotExist(err):
			// fall through to derived schema
		default:
			return fmt.Errorf("read schema file: %w", err)
		}
	}
	if ddl == "" {
		var b strings.Builder
		for _, t := range cfg.All() {
			b.WriteString(createTableSQL(t))
			b.WriteString("\n")
		}
		ddl = b.String()
	}

	if err := s.execScript(ddl); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	if err := s.execScript(infraSchema); err != nil {
		return fmt.Errorf("create bookkeeping tables: %w", err)
	}

	for _, name := range cfg.TableNames() {
		if err := s.ensureCompanyColumn(name); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) execScript(script string) error {
	return s.withWriteLock(func() error {
		for _, stmt := range strings.Split(script, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
			}
		}
		return nil
	})
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// createTableSQL derives sqlite DDL for a replicated table from its
// extraction config.
func createTableSQL(t spec.Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", quoteIdent(t.Name))
	for i, f := range t.Fields {
		if i > 0 {
			b.WriteString(",\n")
		}
		fmt.Fprintf(&b, "\t%s %s", quoteIdent(f.Name), columnType(f.Kind))
	}
	b.WriteString(",\n\t_company TEXT NOT NULL DEFAULT ''")
	// Rows are addressed by (guid, _company) during incremental import, so
	// upserts need that pair unique.
	for _, f := range t.Fields {
		if f.Name == "guid" {
			b.WriteString(",\n\tUNIQUE (guid, _company)")
			break
		}
	}
	b.WriteString("\n);")
	return b.String()
}

func columnType(k spec.Kind) string {
	switch k {
	case spec.KindLogical:
		return "INTEGER"
	case spec.KindNumber, spec.KindAmount, spec.KindQuantity, spec.KindRate:
		return "REAL"
	default:
		return "TEXT"
	}
}

var (
	reCreateTable  = regexp.MustCompile(`(?i)\bCREATE\s+TABLE\s+(IF\s+NOT\s+EXISTS\s+)?`)
	reCreateIndex  = regexp.MustCompile(`(?i)\bCREATE\s+INDEX\s+(IF\s+NOT\s+EXISTS\s+)?`)
	reVarchar      = regexp.MustCompile(`(?i)\bn?varchar\s*\(\s*\d+\s*\)`)
	reDecimal      = regexp.MustCompile(`(?i)\bdecimal\s*\(\s*\d+\s*,\s*\d+\s*\)`)
	reTinyInt      = regexp.MustCompile(`(?i)\btinyint\b`)
	reBareInt      = regexp.MustCompile(`(?i)\bint\b`)
	reDateType     = regexp.MustCompile(`(?i)\bdate(time)?\b(\s*,|\s*\)|\s+NOT|\s+DEFAULT|\s*$)`)
)

// RewriteSQL converts a server-dialect schema file to sqlite: IF NOT
// EXISTS on every CREATE, string/decimal/int types mapped to sqlite
// storage classes, dates stored as TEXT.
func RewriteSQL(sqlText string) string {
	out := reCreateTable.ReplaceAllString(sqlText, "CREATE TABLE IF NOT EXISTS ")
	out = reCreateIndex.ReplaceAllString(out, "CREATE INDEX IF NOT EXISTS ")
	out = reVarchar.ReplaceAllString(out, "TEXT")
	out = reDecimal.ReplaceAllString(out, "REAL")
	out = reTinyInt.ReplaceAllString(out, "INTEGER")
	out = reBareInt.ReplaceAllString(out, "INTEGER")
	out = reDateType.ReplaceAllString(out, "TEXT$2")
	return out
}

// ensureCompanyColumn backfills the _company scope column on tables
// created from schema files that predate multi-company support.
func (s *Store) ensureCompanyColumn(table string) error {
	ok, err := s.TableExists(table)
	if err != nil || !ok {
		return err
	}
	cols, err := s.tableColumns(table)
	if err != nil {
		return err
	}
	if cols["_company"] {
		return nil
	}
	return s.withWriteLock(func() error {
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN _company TEXT NOT NULL DEFAULT ''", quoteIdent(table))
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("add _company to %s: %w", table, err)
		}
		slog.Info("added company column", "table", table)
		return nil
	})
}
