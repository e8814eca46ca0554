// Package admin holds the maintenance actions run from the operator menu:
// supervisor accounts, password resets and bulk deletion of loaded rows.
//
// Input is validated before any remote call; a validation failure wraps
// ErrInvalidInput and leaves the store untouched.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"desabasto/internal/config"
	"desabasto/internal/storage"
	"desabasto/pkg/records"
)

var (
	ErrInvalidInput = errors.New("admin: invalid input")
	ErrNotFound     = errors.New("admin: not found")
)

// Hasher is a one-way password hash.
type Hasher interface {
	Hash(plain string) (string, error)
}

// BcryptHasher hashes with bcrypt at Cost (bcrypt.DefaultCost when 0).
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(plain string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// Admin runs maintenance actions against Store.
type Admin struct {
	Store storage.Store

	// Agents holds user accounts; Loads holds desabasto rows.
	Agents string
	Loads  string

	// IDColumn is the primary key of Loads used by DeleteAll. Default "id".
	IDColumn string
	// DateColumn is the load timestamp column of Loads. Default "fecha_carga".
	DateColumn string
	// PageSize bounds each DeleteAll round. Default 1000.
	PageSize int

	TempPassword string
	Hasher       Hasher
}

// New builds an Admin from cfg.
func New(st storage.Store, cfg config.Config) *Admin {
	return &Admin{
		Store:        st,
		Agents:       cfg.Table(config.TableAgentes),
		Loads:        cfg.Table(config.TableDesabasto),
		PageSize:     cfg.Runtime.PageSize,
		TempPassword: cfg.Users.TempPassword,
		Hasher:       BcryptHasher{Cost: cfg.Users.BcryptCost},
	}
}

// Access levels of a supervisor.
const (
	AccessRegional = "regional"
	AccessGlobal   = "global"
)

// Supervisor is the input of CreateSupervisor.
type Supervisor struct {
	Phone  string
	Name   string
	Access string // regional | global
	Region string // required for regional access
}

func (s Supervisor) validate() (Supervisor, error) {
	s.Phone = strings.TrimSpace(s.Phone)
	s.Name = strings.TrimSpace(s.Name)
	s.Access = strings.ToLower(strings.TrimSpace(s.Access))
	s.Region = strings.TrimSpace(s.Region)

	switch {
	case s.Phone == "":
		return s, fmt.Errorf("%w: phone is required", ErrInvalidInput)
	case s.Name == "":
		return s, fmt.Errorf("%w: name is required", ErrInvalidInput)
	case s.Access != AccessRegional && s.Access != AccessGlobal:
		return s, fmt.Errorf("%w: access must be %q or %q, got %q", ErrInvalidInput, AccessRegional, AccessGlobal, s.Access)
	case s.Access == AccessRegional && s.Region == "":
		return s, fmt.Errorf("%w: region is required for regional access", ErrInvalidInput)
	}
	if s.Access == AccessGlobal {
		s.Region = ""
	}
	return s, nil
}

// CreateSupervisor inserts an active supervisor account with the temporary
// password, flagged for change on first login.
func (a *Admin) CreateSupervisor(ctx context.Context, s Supervisor) error {
	s, err := s.validate()
	if err != nil {
		return err
	}
	hash, err := a.tempHash()
	if err != nil {
		return err
	}

	region := records.Absent()
	if s.Region != "" {
		region = records.Text(s.Region)
	}
	rec := records.Record{
		"telefono":       records.Text(s.Phone),
		"nombre":         records.Text(s.Name),
		"vendedor_raw":   records.Text(s.Name),
		"region":         region,
		"supervisor":     records.Text("supervisor"),
		"activo":         records.Bool(true),
		"tipo":           records.Text("supervisor"),
		"acceso":         records.Text(s.Access),
		"clave":          records.Text(hash),
		"clave_temporal": records.Bool(true),
	}
	if _, err := a.Store.Insert(ctx, a.Agents, []records.Record{rec}); err != nil {
		return fmt.Errorf("create supervisor %s: %w", s.Phone, err)
	}
	return nil
}

// ResetPassword sets the temporary password on the account with phone and
// returns the account name.
func (a *Admin) ResetPassword(ctx context.Context, phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", fmt.Errorf("%w: phone is required", ErrInvalidInput)
	}

	rows, err := a.Store.Select(ctx, a.Agents, storage.Query{
		Columns: []string{"nombre"},
		Filters: []storage.Filter{storage.Eq("telefono", phone)},
		Limit:   1,
	})
	if err != nil {
		return "", fmt.Errorf("find user %s: %w", phone, err)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("%w: user with phone %s", ErrNotFound, phone)
	}
	name, _ := rows[0]["nombre"].(string)
	if name == "" {
		name = "Sin nombre"
	}

	hash, err := a.tempHash()
	if err != nil {
		return "", err
	}
	patch := records.Record{"clave": records.Text(hash), "clave_temporal": records.Bool(true)}
	if _, err := a.Store.Update(ctx, a.Agents, patch, storage.Eq("telefono", phone)); err != nil {
		return "", fmt.Errorf("reset password %s: %w", phone, err)
	}
	return name, nil
}

// RehashTemporary stores a fresh hash of the temporary password on every
// account still flagged clave_temporal and returns how many were updated.
func (a *Admin) RehashTemporary(ctx context.Context) (int64, error) {
	hash, err := a.tempHash()
	if err != nil {
		return 0, err
	}
	n, err := a.Store.Update(ctx, a.Agents, records.Record{"clave": records.Text(hash)}, storage.Eq("clave_temporal", true))
	if err != nil {
		return 0, fmt.Errorf("rehash temporary passwords: %w", err)
	}
	return n, nil
}

func (a *Admin) tempHash() (string, error) {
	if a.Hasher == nil {
		return "", fmt.Errorf("admin: Hasher is required")
	}
	plain := a.TempPassword
	if plain == "" {
		plain = "1234"
	}
	return a.Hasher.Hash(plain)
}

// ParseDay parses a YYYY-MM-DD date.
func ParseDay(s string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidInput, s)
	}
	return d, nil
}

// dayFilters selects load timestamps in [day 00:00:00, next day 00:00:00).
// Timestamps are stored as text, so the bounds compare lexically.
func (a *Admin) dayFilters(day time.Time) []storage.Filter {
	col := a.DateColumn
	if col == "" {
		col = "fecha_carga"
	}
	from := day.Format(time.DateOnly) + " 00:00:00"
	to := day.AddDate(0, 0, 1).Format(time.DateOnly) + " 00:00:00"
	return []storage.Filter{storage.Gte(col, from), storage.Lt(col, to)}
}

// CountByDate counts rows loaded on day.
func (a *Admin) CountByDate(ctx context.Context, day time.Time) (int64, error) {
	n, err := a.Store.Count(ctx, a.Loads, a.dayFilters(day)...)
	if err != nil {
		return 0, fmt.Errorf("count rows of %s: %w", day.Format(time.DateOnly), err)
	}
	return n, nil
}

// DeleteByDate deletes rows loaded on day.
func (a *Admin) DeleteByDate(ctx context.Context, day time.Time) (int64, error) {
	n, err := a.Store.Delete(ctx, a.Loads, a.dayFilters(day)...)
	if err != nil {
		return 0, fmt.Errorf("delete rows of %s: %w", day.Format(time.DateOnly), err)
	}
	return n, nil
}

// DeleteAll empties Loads in rounds of PageSize ids and returns the number
// of rows deleted. progress, when set, is called after each round.
//
// Errors:
//   - the first failing select or delete; rows from earlier rounds stay
//     deleted and the returned count includes them.
func (a *Admin) DeleteAll(ctx context.Context, progress func(round int, deleted int64)) (int64, error) {
	idCol := a.IDColumn
	if idCol == "" {
		idCol = "id"
	}
	size := a.PageSize
	if size <= 0 {
		size = config.DefaultPageSize
	}

	var total int64
	for round := 1; ; round++ {
		rows, err := a.Store.Select(ctx, a.Loads, storage.Query{Columns: []string{idCol}, Limit: size})
		if err != nil {
			return total, fmt.Errorf("delete all: round %d: %w", round, err)
		}
		ids := make([]any, 0, len(rows))
		for _, r := range rows {
			if v := r[idCol]; v != nil {
				ids = append(ids, v)
			}
		}
		if len(ids) == 0 {
			return total, nil
		}

		n, err := a.Store.Delete(ctx, a.Loads, storage.In(idCol, ids))
		if err != nil {
			return total, fmt.Errorf("delete all: round %d: %w", round, err)
		}
		if n == 0 {
			return total, fmt.Errorf("delete all: round %d removed none of %d selected ids", round, len(ids))
		}
		total += n
		if progress != nil {
			progress(round, total)
		}
	}
}
