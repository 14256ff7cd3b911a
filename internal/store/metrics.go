package store

import (
	"database/sql"
	"fmt"
	"regexp"
	"sort"

	"github.com/franz/neuroqc/internal/util"
	"github.com/rotisserie/eris"
)

var metricName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Record is one subject row of a table: column name to float64 or string.
// Columns never written for the subject are absent.
type Record struct {
	Subject string
	Values  map[string]any
}

// Site returns the site column, or ""
func (r *Record) Site() string {
	s, _ := r.Values[ColumnSite].(string)
	return s
}

// Float returns a numeric column
func (r *Record) Float(col string) (float64, bool) {
	v, ok := r.Values[col].(float64)
	return v, ok
}

func validTable(table string) error {
	if _, ok := KnownColumns[table]; !ok {
		return eris.Wrapf(util.ErrInvalidConfig, "unknown metrics table %q", table)
	}
	return nil
}

// Upsert sets column of subject's row in table, creating the row when
// needed. value must be a float64, an int or a string. Columns that are not
// part of the table schema are kept in metric_extra. Repeating an
// identical call has no further effect.
func (s *Store) Upsert(table, subject, column string, value any) error {
	if err := validTable(table); err != nil {
		return err
	}
	if subject == "" {
		return eris.New("store: upsert with empty subject")
	}
	if !metricName.MatchString(column) {
		return eris.Wrapf(util.ErrInvalidConfig, "invalid metric name %q", column)
	}

	num, text, err := splitValue(value)
	if err != nil {
		return err
	}

	return s.Transaction(func(tx *sql.Tx) error {
		cols, err := tableColumns(tx, table)
		if err != nil {
			return eris.Wrapf(err, "store: columns of %s", table)
		}

		if cols[column] {
			stmt := fmt.Sprintf(
				"INSERT INTO %[1]s (subj, %[2]s) VALUES (?, ?) ON CONFLICT(subj) DO UPDATE SET %[2]s = excluded.%[2]s",
				table, column)
			var arg any = num
			if text.Valid {
				arg = text.String
			}
			if _, err := tx.Exec(stmt, subject, arg); err != nil {
				return eris.Wrapf(err, "store: upsert %s.%s for %s", table, column, subject)
			}
			return nil
		}

		ensure := fmt.Sprintf("INSERT INTO %s (subj) VALUES (?) ON CONFLICT(subj) DO NOTHING", table)
		if _, err := tx.Exec(ensure, subject); err != nil {
			return eris.Wrapf(err, "store: ensure %s row for %s", table, subject)
		}
		_, err = tx.Exec(`
			INSERT INTO metric_extra (tbl, subj, name, num_value, text_value)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(tbl, subj, name) DO UPDATE SET
				num_value = excluded.num_value,
				text_value = excluded.text_value,
				updated_at = CURRENT_TIMESTAMP
			WHERE metric_extra.num_value IS NOT excluded.num_value
				OR metric_extra.text_value IS NOT excluded.text_value
		`, table, subject, column, num, text)
		if err != nil {
			return eris.Wrapf(err, "store: upsert extra %s.%s for %s", table, column, subject)
		}
		return nil
	})
}

func splitValue(value any) (sql.NullFloat64, sql.NullString, error) {
	switch v := value.(type) {
	case float64:
		return sql.NullFloat64{Float64: v, Valid: true}, sql.NullString{}, nil
	case float32:
		return sql.NullFloat64{Float64: float64(v), Valid: true}, sql.NullString{}, nil
	case int:
		return sql.NullFloat64{Float64: float64(v), Valid: true}, sql.NullString{}, nil
	case int64:
		return sql.NullFloat64{Float64: float64(v), Valid: true}, sql.NullString{}, nil
	case string:
		return sql.NullFloat64{}, sql.NullString{String: v, Valid: true}, nil
	default:
		return sql.NullFloat64{}, sql.NullString{}, eris.Errorf("store: unsupported metric type %T", value)
	}
}

// Columns returns every column of table except the subject key: schema
// columns in table order followed by extension metrics, sorted.
func (s *Store) Columns(table string) ([]string, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}
	names, err := orderedColumns(s.db, table)
	if err != nil {
		return nil, eris.Wrapf(err, "store: columns of %s", table)
	}

	var cols []string
	seen := make(map[string]bool)
	for _, n := range names {
		if n == "subj" {
			continue
		}
		cols = append(cols, n)
		seen[n] = true
	}

	rows, err := s.db.Query("SELECT DISTINCT name FROM metric_extra WHERE tbl = ? ORDER BY name", table)
	if err != nil {
		return nil, eris.Wrapf(err, "store: extra columns of %s", table)
	}
	defer rows.Close()
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, eris.Wrap(err, "store: scan column")
		}
		if !seen[n] {
			cols = append(cols, n)
		}
	}
	return cols, rows.Err()
}

// Row returns the record of subject in table
func (s *Store) Row(table, subject string) (*Record, error) {
	recs, err := s.query(table, subject)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, eris.Wrapf(util.ErrNotFound, "%s has no row for %s", table, subject)
	}
	return recs[0], nil
}

// Rows returns every record of table ordered by subject
func (s *Store) Rows(table string) ([]*Record, error) {
	return s.query(table, "")
}

func (s *Store) query(table, subject string) ([]*Record, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}

	names, err := orderedColumns(s.db, table)
	if err != nil {
		return nil, eris.Wrapf(err, "store: columns of %s", table)
	}

	stmt := fmt.Sprintf("SELECT * FROM %s", table)
	var args []any
	if subject != "" {
		stmt += " WHERE subj = ?"
		args = append(args, subject)
	}
	stmt += " ORDER BY subj"

	rows, err := s.db.Query(stmt, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "store: read %s", table)
	}
	defer rows.Close()

	var recs []*Record
	index := make(map[string]*Record)
	for rows.Next() {
		raw := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrapf(err, "store: scan %s", table)
		}

		rec := &Record{Values: make(map[string]any)}
		for i, n := range names {
			if n == "subj" {
				rec.Subject = asString(raw[i])
				continue
			}
			if v := normalizeValue(raw[i]); v != nil {
				rec.Values[n] = v
			}
		}
		recs = append(recs, rec)
		index[rec.Subject] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "store: read %s", table)
	}
	// release the single connection before the next query
	rows.Close()

	if err := s.attachExtras(table, subject, index); err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *Store) attachExtras(table, subject string, index map[string]*Record) error {
	stmt := "SELECT subj, name, num_value, text_value FROM metric_extra WHERE tbl = ?"
	args := []any{table}
	if subject != "" {
		stmt += " AND subj = ?"
		args = append(args, subject)
	}

	rows, err := s.db.Query(stmt, args...)
	if err != nil {
		return eris.Wrapf(err, "store: read extras of %s", table)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			subj, name string
			num        sql.NullFloat64
			text       sql.NullString
		)
		if err := rows.Scan(&subj, &name, &num, &text); err != nil {
			return eris.Wrap(err, "store: scan extra")
		}
		rec, ok := index[subj]
		if !ok {
			continue
		}
		switch {
		case text.Valid:
			rec.Values[name] = text.String
		case num.Valid:
			rec.Values[name] = num.Float64
		}
	}
	return rows.Err()
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int64:
		return float64(x)
	case float64:
		return x
	case []byte:
		return string(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

// TableStats summarizes one table for reports
type TableStats struct {
	Table    string
	Subjects int
	BySite   map[string]int
	// Means of numeric columns per site
	SiteMeans map[string]map[string]float64
}

// Stats aggregates a table per site
func (s *Store) Stats(table string) (*TableStats, error) {
	recs, err := s.Rows(table)
	if err != nil {
		return nil, err
	}

	st := &TableStats{
		Table:     table,
		Subjects:  len(recs),
		BySite:    make(map[string]int),
		SiteMeans: make(map[string]map[string]float64),
	}
	sums := make(map[string]map[string]float64)
	counts := make(map[string]map[string]int)

	for _, r := range recs {
		site := r.Site()
		st.BySite[site]++
		if sums[site] == nil {
			sums[site] = make(map[string]float64)
			counts[site] = make(map[string]int)
		}
		for col, v := range r.Values {
			if f, ok := v.(float64); ok {
				sums[site][col] += f
				counts[site][col]++
			}
		}
	}
	for site, cols := range sums {
		st.SiteMeans[site] = make(map[string]float64)
		for col, sum := range cols {
			st.SiteMeans[site][col] = sum / float64(counts[site][col])
		}
	}
	return st, nil
}

// Sites returns the sites of st sorted
func (st *TableStats) Sites() []string {
	sites := make([]string, 0, len(st.BySite))
	for s := range st.BySite {
		sites = append(sites, s)
	}
	sort.Strings(sites)
	return sites
}
