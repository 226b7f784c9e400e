package sink

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oranjParker/Pawmap/internal/core"
	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	SheetName       = "데이터"
	timestampLayout = "20060102_150405"
)

// FileWriter persists the final records of one run and returns the path it
// wrote.
type FileWriter interface {
	WriteFile(ctx context.Context, name string, records []core.Record) (string, error)
}

// JSONWriter writes {Dir}/{name}.json as indented UTF-8. When the file cannot
// be written it falls back to {name}_backup.csv like XLSXWriter.
type JSONWriter struct {
	Dir string
	// Columns fixes the backup column order; nil uses the sorted union of keys.
	Columns []string
	logger  *zap.Logger
}

func NewJSONWriter(dir string, columns []string, logger *zap.Logger) *JSONWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONWriter{Dir: dir, Columns: columns, logger: logger.Named("json")}
}

func (w *JSONWriter) WriteFile(ctx context.Context, name string, records []core.Record) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "create output dir %s", w.Dir)
	}
	if records == nil {
		records = []core.Record{}
	}

	path := filepath.Join(w.Dir, name+".json")
	err := writeJSON(path, records)
	if err == nil {
		return path, nil
	}

	logger := w.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Error("json output failed, writing csv backup", zap.String("path", path), zap.Error(err))

	columns := w.Columns
	if columns == nil {
		columns = Columns(records)
	}
	backup := filepath.Join(w.Dir, name+"_backup.csv")
	if berr := writeCSV(backup, columns, records); berr != nil {
		return "", eris.Wrapf(berr, "write backup after %v", err)
	}
	logger.Info("csv backup written", zap.String("path", backup))
	return backup, nil
}

func writeJSON(path string, records []core.Record) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return eris.Wrap(err, "encode records")
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return eris.Wrapf(err, "write %s", path)
	}
	return nil
}

// XLSXWriter writes {Dir}/{name}_{timestamp}.xlsx with one column per key.
// When the workbook cannot be written it falls back to
// {name}_{timestamp}_backup.csv.
type XLSXWriter struct {
	Dir string
	// Columns fixes the column order; nil uses the sorted union of keys.
	Columns []string
	Now     func() time.Time
	logger  *zap.Logger
}

func NewXLSXWriter(dir string, columns []string, logger *zap.Logger) *XLSXWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &XLSXWriter{Dir: dir, Columns: columns, Now: time.Now, logger: logger.Named("xlsx")}
}

func (w *XLSXWriter) WriteFile(ctx context.Context, name string, records []core.Record) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "create output dir %s", w.Dir)
	}
	base := filepath.Join(w.Dir, name+"_"+w.Now().Format(timestampLayout))
	columns := w.Columns
	if columns == nil {
		columns = Columns(records)
	}

	path := base + ".xlsx"
	err := writeXLSX(path, columns, records)
	if err == nil {
		w.logger.Info("workbook written", zap.String("path", path), zap.Int("rows", len(records)))
		return path, nil
	}
	w.logger.Error("workbook failed, writing csv backup", zap.String("path", path), zap.Error(err))

	backup := base + "_backup.csv"
	if berr := writeCSV(backup, columns, records); berr != nil {
		return "", eris.Wrapf(berr, "write backup after %v", err)
	}
	w.logger.Info("csv backup written", zap.String("path", backup))
	return backup, nil
}

func writeXLSX(path string, columns []string, records []core.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return eris.Wrap(err, "name sheet")
	}
	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return eris.Wrap(err, "write header")
	}

	for i, r := range records {
		row := make([]any, len(columns))
		for j, c := range columns {
			row[j] = CellValue(r[c])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return eris.Wrap(err, "cell name")
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return eris.Wrapf(err, "write row %d", i+2)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return eris.Wrap(err, "save workbook")
	}
	return nil
}

func writeCSV(path string, columns []string, records []core.Record) error {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(columns); err != nil {
		return err
	}
	for _, r := range records {
		row := make([]string, len(columns))
		for j, c := range columns {
			row[j] = fmt.Sprint(CellValue(r[c]))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// CellValue keeps scalars and renders nested values as compact JSON.
func CellValue(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case string, bool, int, int32, int64, float32, float64:
		return x
	case json.Number:
		return x.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// Columns is the sorted union of the record keys with id first.
func Columns(records []core.Record) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, r := range records {
		for k := range r {
			if !seen[k] && k != core.KeyID {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return append([]string{core.KeyID}, cols...)
}
