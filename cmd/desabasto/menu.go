package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strconv"
	"strings"

	"desabasto/internal/admin"
	"desabasto/internal/auditlog"
	"desabasto/internal/config"
	"desabasto/internal/downloads"
	"desabasto/internal/mirror"
	"desabasto/internal/normalize"
	"desabasto/internal/pipeline"
	"desabasto/internal/storage"
)

const menuText = `
=== ADMINISTRACIÓN PLATAFORMA ===
1) Cargar archivo
2) Borrar registros de una fecha
3) Borrar todos los registros
4) Borrar archivos .xlsx en Descargas
5) Crear supervisor (clave cifrada)
6) Resetear clave de usuario
7) Cifrar claves temporales
8) Salir`

// errQuit ends the menu loop when input runs out.
var errQuit = errors.New("quit")

type app struct {
	cfg          config.Config
	runner       *pipeline.Runner
	admin        *admin.Admin
	audit        *auditlog.Log
	downloadsDir string

	in  *bufio.Scanner
	out io.Writer
}

func newApp(cfg config.Config, st storage.Store, stdin io.Reader, stdout io.Writer, stageLog *log.Logger) *app {
	a := &app{
		cfg:          cfg,
		admin:        admin.New(st, cfg),
		audit:        auditlog.New(cfg.Paths.Logs, cfg.Location()),
		downloadsDir: downloads.Dir(cfg.Paths.Downloads),
		in:           bufio.NewScanner(stdin),
		out:          stdout,
	}
	a.runner = &pipeline.Runner{
		Store:   st,
		Config:  cfg,
		Confirm: a.confirmLoad,
		Mirror:  mirror.Writer{Dir: cfg.Paths.Normalized},
	}
	if stageLog != nil {
		a.runner.Logger = stageLog
	}
	return a
}

// run shows the menu until the operator picks exit or input ends.
func (a *app) run(ctx context.Context) error {
	for {
		fmt.Fprintln(a.out, menuText)
		op, err := a.ask("Opción: ")
		if err != nil {
			return nil
		}

		switch op {
		case "1":
			err = a.load(ctx)
		case "2":
			err = a.deleteByDate(ctx)
		case "3":
			err = a.deleteAll(ctx)
		case "4":
			err = a.purgeDownloads()
		case "5":
			err = a.createSupervisor(ctx)
		case "6":
			err = a.resetPassword(ctx)
		case "7":
			err = a.rehash(ctx)
		case "8":
			fmt.Fprintln(a.out, "Fin del programa.")
			return nil
		default:
			fmt.Fprintln(a.out, "Opción no válida.")
		}
		if errors.Is(err, errQuit) {
			return nil
		}
	}
}

// ask prints prompt and returns the trimmed answer, or errQuit at end of
// input.
func (a *app) ask(prompt string) (string, error) {
	fmt.Fprint(a.out, prompt)
	if !a.in.Scan() {
		fmt.Fprintln(a.out)
		return "", errQuit
	}
	return strings.TrimSpace(a.in.Text()), nil
}

func (a *app) confirm(prompt string) (bool, error) {
	ans, err := a.ask(prompt + " (s/n): ")
	if err != nil {
		return false, err
	}
	return isYes(ans), nil
}

// isYes accepts the affirmative answers operators type.
func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "s", "si", "sí", "y", "yes":
		return true
	}
	return false
}

// fail reports err to the operator and the audit trail.
func (a *app) fail(action string, err error) error {
	fmt.Fprintf(a.out, "Error: %v\n", err)
	a.audit.Record("ERROR", "%s: %v", action, err)
	return nil
}

func (a *app) load(ctx context.Context) error {
	files, err := downloads.ListXLSX(a.downloadsDir)
	if err != nil {
		return a.fail("Carga", err)
	}
	if len(files) == 0 {
		fmt.Fprintf(a.out, "No hay archivos .xlsx en %s\n", a.downloadsDir)
		return nil
	}
	for i, f := range files {
		fmt.Fprintf(a.out, "%d. %s\n", i+1, f.Name)
	}
	ans, err := a.ask("Seleccione el número del archivo: ")
	if err != nil {
		return err
	}
	idx, err := strconv.Atoi(ans)
	if err != nil || idx < 1 || idx > len(files) {
		fmt.Fprintln(a.out, "Selección no válida.")
		return nil
	}
	file := files[idx-1]

	feed, err := a.chooseFeed(file.Name)
	if err != nil || feed == "" {
		return err
	}

	rep, err := a.runner.Run(ctx, feed, file.Path)
	for _, d := range rep.Dropped {
		fmt.Fprintf(a.out, "Columna descartada: %q (%s)\n", d.Header, d.Reason)
	}
	if rep.Excluded > 0 {
		fmt.Fprintf(a.out, "Filtrados %d registros. Se conservaron %d registros relevantes.\n", rep.Excluded, rep.Rows-rep.Excluded)
	}
	if rep.MirrorPath != "" {
		fmt.Fprintf(a.out, "Archivo normalizado guardado en: %s\n", rep.MirrorPath)
	}
	if err != nil {
		var be *pipeline.BatchError
		if errors.As(err, &be) {
			fmt.Fprintf(a.out, "Carga interrumpida en el lote %d; %d registros quedaron insertados.\n", be.Batch, be.Committed)
		}
		return a.fail("Carga "+file.Name, err)
	}

	switch {
	case rep.Declined:
		fmt.Fprintln(a.out, "Carga cancelada. No se insertó ningún registro.")
	case rep.New == 0:
		fmt.Fprintf(a.out, "Sin registros nuevos en %s (%d ya existían).\n", file.Name, rep.Duplicates)
	default:
		fmt.Fprintf(a.out, "%d registros insertados desde %s\n", rep.Committed, file.Name)
		a.audit.Record("CARGA", "%d registros insertados desde %s en %s (run %s)", rep.Committed, file.Name, rep.Table, rep.RunID)
	}
	return nil
}

// chooseFeed asks which feed loads name, offering the guessed one as the
// default. It returns "" when the answer is not a configured feed.
func (a *app) chooseFeed(name string) (string, error) {
	names := a.cfg.FeedNames()
	if len(names) == 1 {
		return names[0], nil
	}
	guess := guessFeed(names, name)
	prompt := fmt.Sprintf("Tipo de archivo [%s]", strings.Join(names, "/"))
	if guess != "" {
		prompt += fmt.Sprintf(" (Enter = %s)", guess)
	}
	ans, err := a.ask(prompt + ": ")
	if err != nil {
		return "", err
	}
	if ans == "" {
		ans = guess
	}
	for _, n := range names {
		if strings.EqualFold(n, ans) {
			return n, nil
		}
	}
	fmt.Fprintln(a.out, "Tipo de archivo no válido.")
	return "", nil
}

// guessFeed returns the feed whose name appears in the file name, preferring
// the longest match, or "".
func guessFeed(names []string, file string) string {
	key := normalize.Key(strings.TrimSuffix(file, filepath.Ext(file)))
	best := ""
	for _, n := range names {
		if strings.Contains(key, normalize.Key(n)) && len(n) > len(best) {
			best = n
		}
	}
	return best
}

func (a *app) confirmLoad(s pipeline.Summary) bool {
	fmt.Fprintf(a.out, "%s: %d registros nuevos, %d ya existentes, %d lotes hacia %s.\n", s.File, s.New, s.Duplicates, s.Batches, s.Table)
	ok, err := a.confirm(fmt.Sprintf("¿Insertar %d registros?", s.New))
	return err == nil && ok
}

func (a *app) deleteByDate(ctx context.Context) error {
	ans, err := a.ask("Fecha (YYYY-MM-DD): ")
	if err != nil {
		return err
	}
	day, err := admin.ParseDay(ans)
	if err != nil {
		fmt.Fprintf(a.out, "Fecha no válida: %q\n", ans)
		return nil
	}

	n, err := a.admin.CountByDate(ctx, day)
	if err != nil {
		return a.fail("Borrado por fecha", err)
	}
	if n == 0 {
		fmt.Fprintf(a.out, "No hay registros para %s.\n", ans)
		return nil
	}
	fmt.Fprintf(a.out, "Registros encontrados para %s: %d\n", ans, n)
	ok, err := a.confirm("¿Desea borrar estos registros?")
	if err != nil || !ok {
		return err
	}

	deleted, err := a.admin.DeleteByDate(ctx, day)
	if err != nil {
		return a.fail("Borrado por fecha", err)
	}
	fmt.Fprintf(a.out, "Registros eliminados del %s: %d\n", ans, deleted)
	a.audit.Record("BORRADO FECHA", "%d registros del %s", deleted, ans)
	return nil
}

func (a *app) deleteAll(ctx context.Context) error {
	ok, err := a.confirm("Confirmar borrado TOTAL")
	if err != nil || !ok {
		return err
	}
	total, err := a.admin.DeleteAll(ctx, func(round int, deleted int64) {
		fmt.Fprintf(a.out, "Lote %d borrado (acumulado %d)\n", round, deleted)
	})
	if err != nil {
		fmt.Fprintf(a.out, "Registros eliminados antes del error: %d\n", total)
		return a.fail("Borrado total", err)
	}
	fmt.Fprintf(a.out, "Borrado total completado. Registros eliminados: %d\n", total)
	a.audit.Record("BORRADO TOTAL", "%d registros eliminados", total)
	return nil
}

func (a *app) purgeDownloads() error {
	files, err := downloads.ListXLSX(a.downloadsDir)
	if err != nil {
		return a.fail("Limpieza de descargas", err)
	}
	if len(files) == 0 {
		fmt.Fprintf(a.out, "No hay archivos .xlsx en %s\n", a.downloadsDir)
		return nil
	}
	ok, err := a.confirm(fmt.Sprintf("¿Borrar %d archivos .xlsx de %s?", len(files), a.downloadsDir))
	if err != nil || !ok {
		return err
	}
	n, err := downloads.Purge(a.downloadsDir)
	if err != nil {
		fmt.Fprintf(a.out, "Archivos borrados antes del error: %d\n", n)
		return a.fail("Limpieza de descargas", err)
	}
	fmt.Fprintf(a.out, "%d archivos .xlsx borrados de %s\n", n, a.downloadsDir)
	a.audit.Record("LIMPIEZA DESCARGAS", "%d archivos borrados de %s", n, a.downloadsDir)
	return nil
}

func (a *app) createSupervisor(ctx context.Context) error {
	var s admin.Supervisor
	var err error
	if s.Phone, err = a.ask("Teléfono: "); err != nil {
		return err
	}
	if s.Name, err = a.ask("Nombre completo: "); err != nil {
		return err
	}
	if s.Access, err = a.ask("Tipo de acceso (regional/global): "); err != nil {
		return err
	}
	if !strings.EqualFold(s.Access, admin.AccessGlobal) {
		if s.Region, err = a.ask("Región: "); err != nil {
			return err
		}
	}

	if err := a.admin.CreateSupervisor(ctx, s); err != nil {
		if errors.Is(err, admin.ErrInvalidInput) {
			fmt.Fprintf(a.out, "Datos no válidos: %v\n", err)
			return nil
		}
		return a.fail("Crear supervisor", err)
	}
	access := strings.ToLower(s.Access)
	fmt.Fprintf(a.out, "Supervisor creado: %s (%s) con clave temporal '%s'\n", s.Name, access, a.cfg.Users.TempPassword)
	a.audit.Record("CREAR SUPERVISOR", "%s (%s) %s", s.Name, access, s.Phone)
	return nil
}

func (a *app) resetPassword(ctx context.Context) error {
	phone, err := a.ask("Teléfono del usuario: ")
	if err != nil {
		return err
	}
	name, err := a.admin.ResetPassword(ctx, phone)
	switch {
	case errors.Is(err, admin.ErrNotFound):
		fmt.Fprintln(a.out, "Usuario no encontrado.")
		return nil
	case errors.Is(err, admin.ErrInvalidInput):
		fmt.Fprintln(a.out, "Teléfono no válido.")
		return nil
	case err != nil:
		return a.fail("Resetear clave", err)
	}
	fmt.Fprintf(a.out, "Clave restablecida a '%s' para %s\n", a.cfg.Users.TempPassword, name)
	a.audit.Record("RESET CLAVE", "%s (%s)", name, phone)
	return nil
}

func (a *app) rehash(ctx context.Context) error {
	n, err := a.admin.RehashTemporary(ctx)
	if err != nil {
		fmt.Fprintf(a.out, "Claves cifradas antes del error: %d\n", n)
		return a.fail("Cifrar claves", err)
	}
	fmt.Fprintf(a.out, "%d claves temporales cifradas\n", n)
	a.audit.Record("CIFRAR CLAVES", "%d claves temporales cifradas", n)
	return nil
}
