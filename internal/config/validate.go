package config

import (
	"fmt"
	"sort"

	"desabasto/internal/normalize"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is a JSON-ish pointer into the config.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate checks c for errors that would make a run fail and for warnings
// that usually indicate configuration drift. Issues are returned in a stable
// order.
func Validate(c Config) []Issue {
	var out []Issue
	add := func(sev Severity, path, format string, a ...any) {
		out = append(out, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	switch c.Storage.Kind {
	case "postgres", "sqlite", "sqlserver":
	case "":
		add(SeverityError, "storage.kind", "must be set")
	default:
		add(SeverityError, "storage.kind", "unsupported kind %q", c.Storage.Kind)
	}
	if c.Storage.DSN == "" {
		add(SeverityError, "storage.dsn", "must be set (is DATABASE_URL exported?)")
	}
	if c.Runtime.BatchSize > 1000 {
		add(SeverityWarning, "runtime.batch_size", "%d is above the recommended 500", c.Runtime.BatchSize)
	}
	if c.Users.BcryptCost != 0 && (c.Users.BcryptCost < 4 || c.Users.BcryptCost > 31) {
		add(SeverityError, "users.bcrypt_cost", "must be between 4 and 31")
	}
	if len(c.Feeds) == 0 {
		add(SeverityError, "feeds", "at least one feed is required")
	}

	for _, name := range c.FeedNames() {
		f := c.Feeds[name]
		base := "feeds." + name
		if f.Table == "" {
			add(SeverityError, base+".table", "must be set")
		} else if _, ok := c.Tables[f.Table]; !ok {
			add(SeverityWarning, base+".table", "logical table %q has no mapping; using it verbatim", f.Table)
		}
		if f.SkipRows < 0 {
			add(SeverityError, base+".skip_rows", "must be >= 0")
		}

		targets := feedTargets(f)
		if f.KeyColumn != "" && targets != nil && !targets[f.KeyColumn] && (f.Hash == nil || f.Hash.TargetField != f.KeyColumn) {
			add(SeverityError, base+".key_column", "%q is not produced by rename", f.KeyColumn)
		}
		for _, n := range f.Numeric {
			if targets != nil && !targets[n] {
				add(SeverityWarning, base+".numeric_fields", "%q is not produced by rename", n)
			}
		}
		for src, dst := range f.Rename {
			if normalize.Key(src) == "" {
				add(SeverityError, base+".rename", "source %q has no canonical form", src)
			}
			if normalize.Key(dst) != dst {
				add(SeverityWarning, base+".rename", "target %q is not canonical (%q)", dst, normalize.Key(dst))
			}
		}
		for i, ex := range f.Exclude {
			if ex.Column == "" {
				add(SeverityError, fmt.Sprintf("%s.exclude[%d].column", base, i), "must be set")
			}
		}
		if f.Hash != nil {
			if f.Hash.TargetField == "" || len(f.Hash.Fields) == 0 {
				add(SeverityError, base+".hash", "fields and target_field are required")
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// feedTargets returns the destination columns a feed can produce, or nil when
// the feed keeps every source column.
func feedTargets(f Feed) map[string]bool {
	if len(f.Rename) == 0 {
		return nil
	}
	out := make(map[string]bool, len(f.Rename))
	for _, dst := range f.Rename {
		out[dst] = true
	}
	return out
}
