// Package downloads finds the operator's downloads folder and the
// spreadsheet exports in it.
package downloads

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

// File is a spreadsheet found in the downloads folder.
type File struct {
	Path    string
	Name    string
	ModTime time.Time
	Size    int64
}

// Dir returns override when set, else the first existing downloads folder
// for this platform, else the working directory.
func Dir(override string) string {
	if override != "" {
		return override
	}
	home, _ := os.UserHomeDir()
	for _, c := range candidates(runtime.GOOS, home) {
		if isDir(c) {
			return c
		}
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// candidates lists downloads folders in preference order. Android keeps
// them on shared storage.
func candidates(goos, home string) []string {
	var out []string
	if goos == "windows" && home != "" {
		out = append(out, filepath.Join(home, "Downloads"))
	}
	out = append(out, "/storage/emulated/0/Download", "/sdcard/Download")
	if home != "" {
		out = append(out, filepath.Join(home, "Download"), filepath.Join(home, "Downloads"))
	}
	return out
}

func isDir(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.IsDir()
}

// ListXLSX returns the .xlsx files in dir, newest first. Office lock files
// ("~$name.xlsx") are skipped.
func ListXLSX(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var out []File
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "~$") || !strings.EqualFold(filepath.Ext(name), ".xlsx") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, File{Path: filepath.Join(dir, name), Name: name, ModTime: info.ModTime(), Size: info.Size()})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].ModTime.After(out[j].ModTime)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Purge deletes every file ListXLSX returns. It keeps going past files it
// cannot remove and reports how many were removed plus the first error.
func Purge(dir string) (int, error) {
	files, err := ListXLSX(dir)
	if err != nil {
		return 0, err
	}
	var first error
	removed := 0
	for _, f := range files {
		if err := os.Remove(f.Path); err != nil {
			if first == nil {
				first = fmt.Errorf("remove %s: %w", f.Name, err)
			}
			continue
		}
		removed++
	}
	return removed, first
}
