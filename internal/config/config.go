// Package config defines the loader configuration: connection descriptor,
// logical table names, per-feed load rules and runtime knobs.
//
// The configuration is an explicit value handed to each component at
// construction time; nothing in the repository reads connection details or
// table names from package-level state.
package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"desabasto/internal/storage"
)

// Logical table names used by the tool.
const (
	TableDesabasto = "desabasto"
	TableClientes  = "clientes"
	TableAgentes   = "agentes"
)

// ErrNoFeed is returned when a feed name is not configured.
var ErrNoFeed = errors.New("config: feed not configured")

//go:embed default.json
var defaultJSON []byte

type Config struct {
	Job     string            `json:"job"`
	Storage Storage           `json:"storage"`
	Tables  map[string]string `json:"tables"`
	Feeds   map[string]Feed   `json:"feeds"`
	Runtime Runtime           `json:"runtime"`
	Paths   Paths             `json:"paths"`
	Users   Users             `json:"users"`
	Metrics Metrics           `json:"metrics"`
}

type Storage struct {
	// Kind selects a registered backend: "postgres" | "sqlite" | "sqlserver".
	Kind string `json:"kind"`
	// DSN may reference environment variables as ${VAR}.
	DSN string `json:"dsn"`
	// AutoCreate runs EnsureTables for Tables at startup.
	AutoCreate bool                `json:"auto_create"`
	Tables     []storage.TableSpec `json:"tables,omitempty"`
}

// Feed describes how one spreadsheet export is loaded.
type Feed struct {
	// Table is the logical destination table (a key of Config.Tables).
	Table string `json:"table"`
	// SkipRows is the number of rows above the header row.
	SkipRows int `json:"skip_rows"`
	// Sheet selects a worksheet by name; empty means the first one.
	Sheet string `json:"sheet,omitempty"`
	// Rename maps source column names to destination columns. Both sides are
	// matched by canonical key. Empty means every column is kept as is.
	Rename map[string]string `json:"rename,omitempty"`
	// Numeric lists destination columns coerced to integers.
	Numeric []string `json:"numeric_fields,omitempty"`
	// KeyColumn enables dedupe against the remote table when set.
	KeyColumn string        `json:"key_column,omitempty"`
	Exclude   []ExcludeRule `json:"exclude,omitempty"`
	Stamp     *StampSpec    `json:"stamp,omitempty"`
	Hash      *HashSpec     `json:"hash,omitempty"`
	// ParserOptions are passed to the CSV reader for .csv inputs.
	ParserOptions Options `json:"parser_options,omitempty"`
}

// ExcludeRule drops rows whose Column equals Equals, case-insensitively.
type ExcludeRule struct {
	Column string `json:"column"`
	Equals string `json:"equals"`
}

// StampSpec adds provenance columns to every loaded row.
type StampSpec struct {
	SourceFileColumn string `json:"source_file_column"`
	LoadedAtColumn   string `json:"loaded_at_column"`
	// Layout is a Go time layout; defaults to "2006-01-02 15:04:05-07".
	Layout string `json:"layout,omitempty"`
}

// HashSpec computes a deterministic row hash into TargetField.
type HashSpec struct {
	Fields      []string `json:"fields"`
	TargetField string   `json:"target_field"`
}

type Runtime struct {
	BatchSize      int      `json:"batch_size"`
	PageSize       int      `json:"page_size"`
	CallTimeout    Duration `json:"call_timeout"`
	UTCOffsetHours int      `json:"utc_offset_hours"`
}

type Paths struct {
	Downloads  string `json:"downloads,omitempty"`
	Logs       string `json:"logs"`
	Normalized string `json:"normalized"`
}

type Users struct {
	TempPassword string `json:"temp_password"`
	BcryptCost   int    `json:"bcrypt_cost"`
}

type Metrics struct {
	Backend    string   `json:"backend"`
	Tags       []string `json:"tags,omitempty"`
	FlushEvery Duration `json:"flush_every,omitempty"`
}

const (
	DefaultBatchSize   = 500
	DefaultPageSize    = 1000
	DefaultCallTimeout = 60 * time.Second
	DefaultStampLayout = "2006-01-02 15:04:05-07"
)

// Default returns the embedded configuration.
func Default() (Config, error) {
	return Parse(defaultJSON)
}

// Load reads a JSON config file. An empty path loads the embedded default.
func Load(path string) (Config, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes raw JSON, expands ${VAR} references in the DSN and applies
// defaults.
func Parse(raw []byte) (Config, error) {
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	c.Storage.DSN = os.ExpandEnv(c.Storage.DSN)
	c.applyDefaults()
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Job == "" {
		c.Job = "desabasto"
	}
	if c.Runtime.BatchSize <= 0 {
		c.Runtime.BatchSize = DefaultBatchSize
	}
	if c.Runtime.PageSize <= 0 {
		c.Runtime.PageSize = DefaultPageSize
	}
	if c.Runtime.CallTimeout <= 0 {
		c.Runtime.CallTimeout = Duration(DefaultCallTimeout)
	}
	if c.Paths.Logs == "" {
		c.Paths.Logs = "logs"
	}
	if c.Paths.Normalized == "" {
		c.Paths.Normalized = "normalizados"
	}
	if c.Users.TempPassword == "" {
		c.Users.TempPassword = "1234"
	}
	if c.Tables == nil {
		c.Tables = map[string]string{}
	}
	for _, logical := range []string{TableDesabasto, TableClientes, TableAgentes} {
		if c.Tables[logical] == "" {
			c.Tables[logical] = logical
		}
	}
	for name, f := range c.Feeds {
		if f.Stamp != nil && f.Stamp.Layout == "" {
			f.Stamp.Layout = DefaultStampLayout
		}
		c.Feeds[name] = f
	}
}

// Table resolves a logical table name to the physical one.
func (c Config) Table(logical string) string {
	if t, ok := c.Tables[logical]; ok && t != "" {
		return t
	}
	return logical
}

// Feed returns the named feed.
func (c Config) Feed(name string) (Feed, error) {
	f, ok := c.Feeds[name]
	if !ok {
		return Feed{}, fmt.Errorf("%w: %q", ErrNoFeed, name)
	}
	return f, nil
}

// FeedNames returns configured feed names in sorted order.
func (c Config) FeedNames() []string {
	out := make([]string, 0, len(c.Feeds))
	for k := range c.Feeds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Location returns the fixed zone used for load timestamps and audit logs.
func (c Config) Location() *time.Location {
	h := c.Runtime.UTCOffsetHours
	return time.FixedZone(fmt.Sprintf("UTC%+d", h), h*3600)
}

// NumericSet returns the feed's numeric fields as a set.
func (f Feed) NumericSet() map[string]bool {
	out := make(map[string]bool, len(f.Numeric))
	for _, n := range f.Numeric {
		if n = strings.TrimSpace(n); n != "" {
			out[n] = true
		}
	}
	return out
}
