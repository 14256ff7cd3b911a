package report

import (
	"os"
	"path/filepath"

	"github.com/franz/neuroqc/internal/store"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ExportWorkbook writes every metrics table to an XLSX workbook, one sheet
// per table. The first row holds "subj" followed by the table's columns;
// numeric values are written as numbers, missing values as empty cells.
func ExportWorkbook(db *store.Store, path string) error {
	f := xlsx.NewFile()

	for _, table := range store.Tables {
		cols, err := db.Columns(table)
		if err != nil {
			return err
		}
		recs, err := db.Rows(table)
		if err != nil {
			return err
		}

		sheet, err := f.AddSheet(table)
		if err != nil {
			return eris.Wrapf(err, "xlsx: add sheet %s", table)
		}

		header := sheet.AddRow()
		header.AddCell().SetString("subj")
		for _, c := range cols {
			header.AddCell().SetString(c)
		}

		for _, r := range recs {
			row := sheet.AddRow()
			row.AddCell().SetString(r.Subject)
			for _, c := range cols {
				cell := row.AddCell()
				switch v := r.Values[c].(type) {
				case float64:
					cell.SetFloat(v)
				case string:
					cell.SetString(v)
				}
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return eris.Wrap(err, "xlsx: create output directory")
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}
