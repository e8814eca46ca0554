// Package mirror writes the normalized CSV copy of every ingested file.
package mirror

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"desabasto/pkg/records"
)

// bom lets spreadsheet programs detect UTF-8.
const bom = "\uFEFF"

// Writer writes mirrors under Dir.
type Writer struct {
	Dir string
}

// FileName returns "<stem>_normalizado_<YYYYMMDD_HHMMSS>.csv" for source.
func FileName(source string, at time.Time) string {
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s_normalizado_%s.csv", stem, at.Format("20060102_150405"))
}

// Write saves recs with the given column order and returns the file path.
// Absent values are written as empty cells. Dir is created when missing.
func (w Writer) Write(source string, at time.Time, columns []string, recs []records.Record) (string, error) {
	dir := w.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mirror: mkdir %s: %w", dir, err)
	}

	path := filepath.Join(dir, FileName(source, at))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("mirror: create: %w", err)
	}

	bw := bufio.NewWriter(f)
	if err := writeCSV(bw, columns, recs); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("mirror: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("mirror: close %s: %w", path, err)
	}
	return path, nil
}

func writeCSV(bw *bufio.Writer, columns []string, recs []records.Record) error {
	if _, err := bw.WriteString(bom); err != nil {
		return err
	}
	cw := csv.NewWriter(bw)
	if err := cw.Write(columns); err != nil {
		return err
	}
	row := make([]string, len(columns))
	for _, r := range recs {
		for i, c := range columns {
			row[i] = r.Get(c).String()
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}
