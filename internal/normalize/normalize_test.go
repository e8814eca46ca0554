package normalize

import (
	"reflect"
	"regexp"
	"testing"
)

var canonical = regexp.MustCompile(`^[a-z0-9]+(_[a-z0-9]+)*$`)

func TestKey_TableDriven(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "Última Uso MR", want: "ultima_uso_mr"},
		{in: "  Saldo  Menor!!", want: "saldo_menor"},
		{in: "Saldo menor al promedio diario", want: "saldo_menor_al_promedio_diario"},
		{in: "ID-CLIENTE", want: "id_cliente"},
		{in: "Promedio__Recaudo", want: "promedio_recaudo"},
		{in: "Región Comercial", want: "region_comercial"},
		{in: "Año", want: "ano"},
		{in: "Compró saldo hoy?", want: "compro_saldo_hoy"},
		{in: "JERARQUIA_N2", want: "jerarquia_n2"},
		{in: "_x_", want: "x"},
		{in: "", want: ""},
		{in: "   ", want: ""},
		{in: "%%%", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Key(tt.in)
			if got != tt.want {
				t.Fatalf("Key(%q)=%q, want %q", tt.in, got, tt.want)
			}
			if got != "" && !canonical.MatchString(got) {
				t.Fatalf("Key(%q)=%q does not match canonical pattern", tt.in, got)
			}
		})
	}
}

func TestKey_Idempotent(t *testing.T) {
	for _, in := range []string{"Última Uso MR", "saldo_menor", "Fecha Última Compra (MR)"} {
		once := Key(in)
		if twice := Key(once); twice != once {
			t.Fatalf("Key(Key(%q))=%q, want %q", in, twice, once)
		}
	}
}

func TestColumns_FirstOccurrenceWins(t *testing.T) {
	headers := []string{"Vendedor", "Saldo", "VENDEDOR ", "Saldo!", "PDV"}

	res := Columns(headers)

	wantKeys := []string{"vendedor", "saldo", "", "", "pdv"}
	if !reflect.DeepEqual(res.Keys, wantKeys) {
		t.Fatalf("Keys=%v, want %v", res.Keys, wantKeys)
	}
	if len(res.Dropped) != 2 {
		t.Fatalf("Dropped=%v, want 2 entries", res.Dropped)
	}
	if d := res.Dropped[0]; d.Index != 2 || d.Key != "vendedor" || d.Reason != ReasonDuplicate {
		t.Fatalf("Dropped[0]=%+v", d)
	}
	if d := res.Dropped[1]; d.Index != 3 || d.Key != "saldo" || d.Reason != ReasonDuplicate {
		t.Fatalf("Dropped[1]=%+v", d)
	}
	if !res.Kept(0) || res.Kept(2) || res.Kept(99) {
		t.Fatalf("Kept() mismatch: %+v", res)
	}
}

func TestColumns_EmptyHeadersDropped(t *testing.T) {
	res := Columns([]string{"", "MDN", "--", "Canal"})

	wantKeys := []string{"", "mdn", "", "canal"}
	if !reflect.DeepEqual(res.Keys, wantKeys) {
		t.Fatalf("Keys=%v, want %v", res.Keys, wantKeys)
	}
	for _, d := range res.Dropped {
		if d.Reason != ReasonEmpty {
			t.Fatalf("unexpected drop %+v", d)
		}
	}
	if len(res.Dropped) != 2 || res.Dropped[0].Index != 0 || res.Dropped[1].Index != 2 {
		t.Fatalf("Dropped=%+v", res.Dropped)
	}
}

func TestColumns_LengthPreserved(t *testing.T) {
	res := Columns(nil)
	if len(res.Keys) != 0 || len(res.Dropped) != 0 {
		t.Fatalf("Columns(nil)=%+v", res)
	}
}
