// Command probe profiles a spreadsheet export and prints the feed entry that
// would load it.
//
// It reads the whole file once, finds the header row under the title block
// (unless -skip is given), and profiles the first -sample data rows. No
// database connection is made.
//
// Output modes
//
//   - Default mode: prints a JSON fragment {"feeds": {"<name>": {...}}} that
//     can be pasted into the loader configuration.
//   - Report mode (-report): prints a per-column summary instead, for
//     interactive inspection.
//
// With -latest the newest .xlsx in the downloads folder is probed, which is
// how operators usually receive exports.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"desabasto/internal/config"
	"desabasto/internal/downloads"
	"desabasto/internal/normalize"
	"desabasto/internal/probe"
)

func main() {
	var (
		// flagFile is the workbook or delimited export to probe.
		flagFile = flag.String("file", "", "Path of the export (.xlsx, .xlsm, .csv, .txt)")

		// flagLatest picks the newest .xlsx in the downloads folder when -file
		// is empty. -downloads overrides the folder.
		flagLatest    = flag.Bool("latest", false, "Probe the newest .xlsx in the downloads folder")
		flagDownloads = flag.String("downloads", "", "Downloads folder override (with -latest)")

		flagSheet  = flag.String("sheet", "", "Worksheet name; empty means the first sheet")
		flagSkip   = flag.Int("skip", -1, "Rows above the header; -1 detects it")
		flagSample = flag.Int("sample", probe.DefaultSampleRows, "Data rows to profile")

		// flagFeed names the emitted feed; defaults to the normalized file stem.
		flagFeed  = flag.String("feed", "", "Feed name; defaults to the normalized file name")
		flagTable = flag.String("table", "", "Logical destination table; defaults to the feed name")

		// flagKey controls whether the suggested key column is emitted. Feeds
		// without a key are appended as a whole on every load.
		flagKey = flag.Bool("key", true, "Emit key_column for dedupe against the remote table")

		flagReport = flag.Bool("report", false, "Print a column report (suppresses JSON output)")
		flagPretty = flag.Bool("pretty", true, "Pretty-print JSON output")
	)
	flag.Parse()

	path := *flagFile
	if path == "" && *flagLatest {
		dir := downloads.Dir(*flagDownloads)
		files, err := downloads.ListXLSX(dir)
		if err != nil {
			log.Fatalf("downloads: %v", err)
		}
		if len(files) == 0 {
			fmt.Fprintf(os.Stderr, "no .xlsx files in %s\n", dir)
			os.Exit(1)
		}
		path = files[0].Path
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "missing -file (or -latest)")
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res, err := probe.Probe(ctx, probe.Options{
		Path:       path,
		Sheet:      *flagSheet,
		SkipRows:   *flagSkip,
		SampleRows: *flagSample,
	})
	if err != nil {
		log.Fatalf("probe: %v", err)
	}

	if *flagReport {
		fmt.Fprintln(os.Stdout, res.Report())
		return
	}

	name := feedName(*flagFeed, path)
	table := *flagTable
	if table == "" {
		table = name
	}
	out := struct {
		Feeds map[string]config.Feed `json:"feeds"`
	}{Feeds: map[string]config.Feed{name: res.Feed(table, *flagKey)}}

	var b []byte
	if *flagPretty {
		b, err = json.MarshalIndent(out, "", "  ")
	} else {
		b, err = json.Marshal(out)
	}
	if err != nil {
		log.Fatalf("encode feed: %v", err)
	}
	fmt.Fprintln(os.Stdout, string(b))
}

// feedName returns explicit, or the canonical key of the file stem.
func feedName(explicit, path string) string {
	if explicit != "" {
		return explicit
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if k := normalize.Key(stem); k != "" {
		return k
	}
	return "feed"
}
