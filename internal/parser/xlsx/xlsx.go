// Package xlsx reads spreadsheet exports with excelize.
//
// The exports carry a title block above the header row, so callers state how
// many rows to skip. Cells are read as raw values: numbers keep full
// precision (no thousands separators or currency symbols from the display
// format), while numeric cells styled as dates are returned as time.Time.
package xlsx

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"desabasto/pkg/records"
)

// Options selects what to read.
type Options struct {
	// Sheet is the worksheet name; empty means the first sheet.
	Sheet string
	// SkipRows is the number of rows above the header row.
	SkipRows int
}

// ReadSheet opens path and reads one worksheet.
//
// Errors:
//   - file cannot be opened or is not a workbook
//   - the workbook has no sheets, or the named sheet is missing
//   - there is no header row after SkipRows
func ReadSheet(ctx context.Context, path string, opt Options) (records.Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return records.Sheet{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return Read(ctx, f, opt)
}

// Read reads one worksheet of an open workbook. Blank rows are dropped;
// rows shorter than the header are left short (Sheet.Cell returns nil).
func Read(ctx context.Context, f *excelize.File, opt Options) (records.Sheet, error) {
	sheet := opt.Sheet
	if sheet == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return records.Sheet{}, fmt.Errorf("workbook has no sheets")
		}
		sheet = list[0]
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return records.Sheet{}, fmt.Errorf("sheet %q not found", sheet)
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return records.Sheet{}, fmt.Errorf("read rows of %q: %w", sheet, err)
	}
	if opt.SkipRows < 0 || opt.SkipRows >= len(rows) {
		return records.Sheet{}, fmt.Errorf("sheet %q: no header row after skipping %d rows", sheet, opt.SkipRows)
	}

	out := records.Sheet{Name: sheet}
	out.Headers = make([]string, len(rows[opt.SkipRows]))
	for i, h := range rows[opt.SkipRows] {
		out.Headers[i] = strings.TrimSpace(h)
	}

	dates := dateStyles{f: f, cache: map[int]bool{}}
	for i := opt.SkipRows + 1; i < len(rows); i++ {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return records.Sheet{}, err
			}
		}

		row := make([]any, len(rows[i]))
		blank := true
		for j, raw := range rows[i] {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			blank = false
			row[j] = dates.value(sheet, j+1, i+1, raw)
		}
		if blank {
			continue
		}
		out.Rows = append(out.Rows, row)
		out.Lines = append(out.Lines, i+1)
	}
	return out, nil
}

// dateStyles resolves whether a numeric cell is displayed as a date, caching
// the answer per style id.
type dateStyles struct {
	f     *excelize.File
	cache map[int]bool
}

func (d dateStyles) value(sheet string, col, row int, raw string) any {
	serial, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return raw
	}
	styleID, err := d.f.GetCellStyle(sheet, cell)
	if err != nil || styleID == 0 {
		return raw
	}

	isDate, ok := d.cache[styleID]
	if !ok {
		isDate = false
		if st, err := d.f.GetStyle(styleID); err == nil && st != nil {
			isDate = isDateFormat(st.NumFmt, st.CustomNumFmt)
		}
		d.cache[styleID] = isDate
	}
	if !isDate {
		return raw
	}

	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return raw
	}
	return t
}

// isDateFormat reports whether a number format renders dates or times.
// Built-in ids follow ECMA-376 18.8.30.
func isDateFormat(id int, custom *string) bool {
	switch {
	case id >= 14 && id <= 22, id >= 27 && id <= 36, id >= 45 && id <= 47, id >= 50 && id <= 58:
		return true
	}
	if custom == nil {
		return false
	}

	// Drop quoted literals and bracketed sections ([Red], [$-409]) before
	// looking for date tokens.
	var b strings.Builder
	quoted, bracket := false, false
	for _, r := range strings.ToLower(*custom) {
		switch {
		case r == '"':
			quoted = !quoted
		case quoted:
		case r == '[':
			bracket = true
		case r == ']':
			bracket = false
		case bracket:
		default:
			b.WriteRune(r)
		}
	}
	return strings.ContainsAny(b.String(), "ydh")
}
