package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"desabasto/internal/config"
	"desabasto/internal/transformer/builtin"
	"desabasto/pkg/records"
)

// ReadSheet reads a delimited export into a records.Sheet.
//
// Options (feed "parser_options"):
//   - skip_rows (int, default 0): lines above the header row.
//   - comma (rune, default ','): field delimiter; "\t" is accepted.
//   - trim_space (bool, default true): trim cell edges.
//   - lazy_quotes (bool, default false): passed to encoding/csv.
//
// A UTF-8 BOM on the header is stripped. Empty cells become nil. Rows with
// every cell empty are dropped. Malformed lines are reported through onErr
// and skipped.
func ReadSheet(
	ctx context.Context,
	src io.ReadCloser,
	opt config.Options,
	onErr func(line int, err error),
) (records.Sheet, error) {
	defer src.Close()

	var line int

	skip := opt.Int("skip_rows", 0)
	comma := opt.Rune("comma", ',')
	trim := opt.Bool("trim_space", true)
	lazy := opt.Bool("lazy_quotes", false)

	cr := csv.NewReader(src)
	cr.Comma = comma
	cr.LazyQuotes = lazy
	cr.FieldsPerRecord = -1

	readRec := func() ([]string, error) {
		line++
		return cr.Read()
	}

	for i := 0; i < skip; i++ {
		if _, err := readRec(); err != nil {
			if err == io.EOF {
				return records.Sheet{}, fmt.Errorf("csv: no header row after skipping %d lines", skip)
			}
			return records.Sheet{}, fmt.Errorf("csv: skip line %d: %w", line, err)
		}
	}

	hdr, err := readRec()
	if err != nil {
		if err == io.EOF {
			return records.Sheet{}, fmt.Errorf("csv: no header row after skipping %d lines", skip)
		}
		if onErr != nil {
			onErr(line, fmt.Errorf("read header: %w", err))
		}
		return records.Sheet{}, err
	}

	sheet := records.Sheet{Headers: make([]string, len(hdr))}
	for i, h := range hdr {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		if builtin.HasEdgeSpace(h) {
			h = strings.TrimSpace(h)
		}
		sheet.Headers[i] = h
	}

	for {
		select {
		case <-ctx.Done():
			return records.Sheet{}, ctx.Err()
		default:
		}

		rec, err := readRec()
		if err == io.EOF {
			return sheet, nil
		}
		if err != nil {
			if onErr != nil {
				onErr(line, fmt.Errorf("csv read: %w", err))
			}
			continue
		}

		row := make([]any, len(rec))
		blank := true
		for i, v := range rec {
			if trim && builtin.HasEdgeSpace(v) {
				v = strings.TrimSpace(v)
			}
			if v == "" {
				continue
			}
			row[i] = v
			blank = false
		}
		if blank {
			continue
		}
		sheet.Rows = append(sheet.Rows, row)
		sheet.Lines = append(sheet.Lines, line)
	}
}
