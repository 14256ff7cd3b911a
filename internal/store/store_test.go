package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/franz/neuroqc/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreOpenAndMigrate(t *testing.T) {
	s := openTestStore(t)

	version, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)

	for _, table := range append([]string{"metric_extra", "schema_version"}, Tables...) {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s", table)
	}

	cols, err := s.Columns(TableFMRI)
	require.NoError(t, err)
	assert.Equal(t, []string{"site", "spikecount", "fdtot", "fdnum", "corrmean", "corrsd"}, cols)

	require.NoError(t, s.CheckIntegrity())
	assert.NotEmpty(t, SQLiteVersion())
}

func TestStoreConnectionPragmas(t *testing.T) {
	s := openTestStore(t)

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var timeout int
	require.NoError(t, s.db.QueryRow("PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, 5000, timeout)
}

func TestStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(TableDTI, "SPN01_CMH_0001_01", "spikecount", 3))
	require.NoError(t, s.Close())

	s, err = OpenWithOptions(path, &OpenOptions{NetworkOptimized: true})
	require.NoError(t, err)
	defer s.Close()

	rec, err := s.Row(TableDTI, "SPN01_CMH_0001_01")
	require.NoError(t, err)
	assert.Equal(t, 3.0, rec.Values["spikecount"])
}

// Stores written before schema versioning have keyless tables and
// metric columns added on demand.
func TestStoreMigratesUnversionedStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	for _, stmt := range []string{
		"CREATE TABLE fmri (subj TEXT, site TEXT)",
		"CREATE TABLE dti (subj TEXT, site TEXT)",
		"CREATE TABLE t1 (subj TEXT, site TEXT)",
		"ALTER TABLE fmri ADD COLUMN spikecount FLOAT DEFAULT null",
		"ALTER TABLE fmri ADD COLUMN snr FLOAT DEFAULT null",
		"INSERT INTO fmri (subj, site, spikecount, snr) VALUES ('SPN01_CMH_0001_01', 'CMH', 4, 120.5)",
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Upsert(TableFMRI, "SPN01_CMH_0001_01", "fdtot", 1.5))
	require.NoError(t, s.Upsert(TableFMRI, "SPN01_CMH_0001_01", "snr", 130.0))

	rec, err := s.Row(TableFMRI, "SPN01_CMH_0001_01")
	require.NoError(t, err)
	assert.Equal(t, "CMH", rec.Site())
	assert.Equal(t, 4.0, rec.Values["spikecount"])
	assert.Equal(t, 1.5, rec.Values["fdtot"])
	assert.Equal(t, 130.0, rec.Values["snr"])
}

func TestUpsert_Idempotent(t *testing.T) {
	s := openTestStore(t)
	subj := "SPN01_CMH_0001_01"

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Upsert(TableFMRI, subj, "spikecount", 2))
		require.NoError(t, s.Upsert(TableFMRI, subj, ColumnSite, "CMH"))
	}

	recs, err := s.Rows(TableFMRI)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, subj, recs[0].Subject)
	assert.Equal(t, map[string]any{"site": "CMH", "spikecount": 2.0}, recs[0].Values)
}

func TestUpsert_UpdatesInPlace(t *testing.T) {
	s := openTestStore(t)
	subj := "SPN01_CMH_0001_01"

	require.NoError(t, s.Upsert(TableFMRI, subj, "fdtot", 1.25))
	require.NoError(t, s.Upsert(TableFMRI, subj, "fdtot", 2.5))

	rec, err := s.Row(TableFMRI, subj)
	require.NoError(t, err)
	f, ok := rec.Float("fdtot")
	assert.True(t, ok)
	assert.Equal(t, 2.5, f)
}

func TestUpsert_ExtraUnchangedOnRepeat(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Upsert(TableDTI, "SPN01_CMH_0001_01", "qa_note", "motion"))

	const stamp = "2000-01-01 00:00:00"
	_, err := s.db.Exec("UPDATE metric_extra SET updated_at = ?", stamp)
	require.NoError(t, err)

	updatedAt := func() string {
		var v string
		require.NoError(t, s.db.QueryRow(
			"SELECT CAST(updated_at AS TEXT) FROM metric_extra WHERE tbl = ? AND name = ?", TableDTI, "qa_note").Scan(&v))
		return v
	}

	require.NoError(t, s.Upsert(TableDTI, "SPN01_CMH_0001_01", "qa_note", "motion"))
	assert.Equal(t, stamp, updatedAt(), "identical upsert must not touch the row")

	require.NoError(t, s.Upsert(TableDTI, "SPN01_CMH_0001_01", "qa_note", "artefact"))
	assert.NotEqual(t, stamp, updatedAt())

	rec, err := s.Row(TableDTI, "SPN01_CMH_0001_01")
	require.NoError(t, err)
	assert.Equal(t, "artefact", rec.Values["qa_note"])
}

func TestUpsert_NewColumnExtendsSchema(t *testing.T) {
	s := openTestStore(t)
	a, b := "SPN01_CMH_0001_01", "SPN01_CMH_0002_01"

	require.NoError(t, s.Upsert(TableT1, a, ColumnSite, "CMH"))
	require.NoError(t, s.Upsert(TableT1, b, ColumnSite, "CMH"))
	before, err := s.Row(TableT1, b)
	require.NoError(t, err)

	require.NoError(t, s.Upsert(TableT1, a, "cnr", 3.2))
	require.NoError(t, s.Upsert(TableT1, a, "scanner", "Prisma"))

	cols, err := s.Columns(TableT1)
	require.NoError(t, err)
	assert.Equal(t, []string{"site", "cnr", "scanner"}, cols)

	rec, err := s.Row(TableT1, a)
	require.NoError(t, err)
	assert.Equal(t, 3.2, rec.Values["cnr"])
	assert.Equal(t, "Prisma", rec.Values["scanner"])
	assert.Equal(t, "CMH", rec.Values["site"])

	after, err := s.Row(TableT1, b)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// extension metrics create the subject row on first write
	require.NoError(t, s.Upsert(TableDTI, b, "fa_mean", 0.45))
	rec, err = s.Row(TableDTI, b)
	require.NoError(t, err)
	assert.Equal(t, 0.45, rec.Values["fa_mean"])
}

func TestUpsert_Errors(t *testing.T) {
	s := openTestStore(t)

	err := s.Upsert("pet", "S", "suv", 1.0)
	assert.ErrorIs(t, err, util.ErrInvalidConfig)

	err = s.Upsert(TableFMRI, "S", "drop table;", 1.0)
	assert.ErrorIs(t, err, util.ErrInvalidConfig)

	assert.Error(t, s.Upsert(TableFMRI, "S", "spikecount", []int{1}))
	assert.Error(t, s.Upsert(TableFMRI, "", "spikecount", 1))

	_, err = s.Row(TableFMRI, "nobody")
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestStats(t *testing.T) {
	s := openTestStore(t)
	for subj, v := range map[string]float64{
		"SPN01_CMH_0001_01": 2,
		"SPN01_CMH_0002_01": 4,
		"SPN01_ZHH_0001_01": 10,
	} {
		require.NoError(t, s.Upsert(TableFMRI, subj, ColumnSite, subj[6:9]))
		require.NoError(t, s.Upsert(TableFMRI, subj, "spikecount", v))
	}

	st, err := s.Stats(TableFMRI)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Subjects)
	assert.Equal(t, []string{"CMH", "ZHH"}, st.Sites())
	assert.Equal(t, 2, st.BySite["CMH"])
	assert.Equal(t, 3.0, st.SiteMeans["CMH"]["spikecount"])
	assert.Equal(t, 10.0, st.SiteMeans["ZHH"]["spikecount"])
}
