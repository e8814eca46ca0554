package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"desabasto/internal/normalize"
	"desabasto/pkg/records"
)

func writeXLSX(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		r := row
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), "clientes.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	return path
}

func clientesWorkbook(t *testing.T) string {
	return writeXLSX(t, [][]any{
		{"Reporte de clientes"},
		{"Generado el 05/08/2025"},
		{"ID Cliente", "MDN", "Vendedor", "Región", "Saldo"},
		{101, "5511000001", "Ana", "Centro", 1.5},
		{102, "5511000002", "Ana", "Centro", 2},
		{103, "5511000003", "Luis", nil, 3},
	})
}

func TestProbe_DetectsHeaderAndProfiles(t *testing.T) {
	res, err := Probe(context.Background(), Options{Path: clientesWorkbook(t), SkipRows: -1})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if res.SkipRows != 2 || res.Rows != 3 || res.Sampled != 3 || res.Sheet != "Sheet1" {
		t.Fatalf("result=%+v", res)
	}

	type col struct {
		Key, Type        string
		Filled, Distinct int
	}
	var got []col
	for _, c := range res.Columns {
		got = append(got, col{c.Key, c.Type, c.Filled, c.Distinct})
	}
	want := []col{
		{"id_cliente", TypeInteger, 3, 3},
		{"mdn", TypeInteger, 3, 3},
		{"vendedor", TypeText, 3, 2},
		{"region", TypeText, 2, 1},
		{"saldo", TypeText, 3, 3},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("columns=%+v\nwant     %+v", got, want)
	}
	if res.KeyCandidate != "id_cliente" {
		t.Fatalf("KeyCandidate=%q", res.KeyCandidate)
	}

	feed := res.Feed("clientes", true)
	if feed.SkipRows != 2 || feed.KeyColumn != "id_cliente" || !reflect.DeepEqual(feed.Numeric, []string{"id_cliente", "mdn"}) {
		t.Fatalf("feed=%+v", feed)
	}
	if res.Feed("desabasto", false).KeyColumn != "" {
		t.Fatalf("append-only feed got a key column")
	}

	rep := res.Report()
	for _, s := range []string{"skip_rows=2", "id_cliente", "key candidate: id_cliente"} {
		if !strings.Contains(rep, s) {
			t.Fatalf("report missing %q:\n%s", s, rep)
		}
	}
}

func TestProbe_ExplicitSkipMatchesDetection(t *testing.T) {
	path := clientesWorkbook(t)
	auto, err := Probe(context.Background(), Options{Path: path, SkipRows: -1})
	if err != nil {
		t.Fatalf("auto: %v", err)
	}
	fixed, err := Probe(context.Background(), Options{Path: path, SkipRows: 2})
	if err != nil {
		t.Fatalf("fixed: %v", err)
	}
	if !reflect.DeepEqual(auto.Columns, fixed.Columns) {
		t.Fatalf("columns differ:\nauto  %+v\nfixed %+v", auto.Columns, fixed.Columns)
	}
}

func TestProbe_CSVDroppedColumnsAndSampleBound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "desabasto.csv")
	body := "PDV,Saldo,,saldo\nA1,10,x,1\nA2,20,y,2\nA2,30,z,3\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	res, err := Probe(context.Background(), Options{Path: path, SampleRows: 2})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if res.Rows != 3 || res.Sampled != 2 || len(res.Columns) != 2 {
		t.Fatalf("result=%+v", res)
	}
	if len(res.Dropped) != 2 || res.Dropped[0].Reason != normalize.ReasonEmpty || res.Dropped[1].Reason != normalize.ReasonDuplicate {
		t.Fatalf("dropped=%+v", res.Dropped)
	}
	// Only the first two rows are sampled, so pdv looks unique there.
	if res.KeyCandidate != "saldo" {
		t.Fatalf("KeyCandidate=%q, want saldo (integer wins)", res.KeyCandidate)
	}
}

func TestProbe_NoHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "numeros.csv")
	if err := os.WriteFile(path, []byte("1,2\n3,4\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Probe(context.Background(), Options{Path: path, SkipRows: -1}); !errors.Is(err, ErrNoHeader) {
		t.Fatalf("err=%v, want ErrNoHeader", err)
	}
	if _, err := Probe(context.Background(), Options{Path: "datos.json"}); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}

func TestDetectHeader_TiesGoToEarliestRow(t *testing.T) {
	s := records.Sheet{
		Headers: []string{"Titulo"},
		Rows:    [][]any{{"a", "b"}, {"c", "d"}},
		Lines:   []int{3, 4},
	}
	skip, ok := detectHeader(s)
	if !ok || skip != 2 {
		t.Fatalf("detectHeader=(%d,%v), want (2,true)", skip, ok)
	}
}
