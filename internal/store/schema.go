package store

import (
	"database/sql"
	"fmt"
)

// Modality tables
const (
	TableFMRI = "fmri"
	TableDTI  = "dti"
	TableT1   = "t1"
)

// Tables lists every modality table in display order
var Tables = []string{TableFMRI, TableDTI, TableT1}

// KnownColumns enumerates the metric columns of each table. Metrics outside
// this set are stored in metric_extra.
var KnownColumns = map[string][]string{
	TableFMRI: {"spikecount", "fdtot", "fdnum", "corrmean", "corrsd"},
	TableDTI:  {"spikecount"},
	TableT1:   {},
}

// ColumnSite is populated for every subject in every table
const ColumnSite = "site"

// Schema v1 - base tables.
// Stores created before versioning already hold fmri/dti/t1 with the same
// leading columns; IF NOT EXISTS keeps them.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS fmri (subj TEXT PRIMARY KEY, site TEXT);
CREATE TABLE IF NOT EXISTS dti  (subj TEXT PRIMARY KEY, site TEXT);
CREATE TABLE IF NOT EXISTS t1   (subj TEXT PRIMARY KEY, site TEXT);
`

// Schema v2 - extension table for ad hoc metrics.
// Known metric columns are added by applySchemaV2.
const schemaV2 = `
CREATE TABLE IF NOT EXISTS metric_extra (
  tbl TEXT NOT NULL,
  subj TEXT NOT NULL,
  name TEXT NOT NULL,
  num_value REAL,
  text_value TEXT,
  updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (tbl, subj, name)
);

CREATE INDEX IF NOT EXISTS idx_metric_extra_name ON metric_extra(tbl, name);

-- upserts need a unique subject key on tables that predate versioning
CREATE UNIQUE INDEX IF NOT EXISTS idx_fmri_subj ON fmri(subj);
CREATE UNIQUE INDEX IF NOT EXISTS idx_dti_subj ON dti(subj);
CREATE UNIQUE INDEX IF NOT EXISTS idx_t1_subj ON t1(subj);
`

func applySchemaV2(tx *sql.Tx) error {
	if _, err := tx.Exec(schemaV2); err != nil {
		return err
	}
	for _, table := range Tables {
		existing, err := tableColumns(tx, table)
		if err != nil {
			return err
		}
		for _, col := range KnownColumns[table] {
			if existing[col] {
				continue
			}
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s REAL DEFAULT NULL", table, col)
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("add column %s.%s: %w", table, col, err)
			}
		}
	}
	return nil
}

type queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

// tableColumns returns the set of column names of table
func tableColumns(q queryer, table string) (map[string]bool, error) {
	names, err := orderedColumns(q, table)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set, nil
}

func orderedColumns(q queryer, table string) ([]string, error) {
	rows, err := q.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
