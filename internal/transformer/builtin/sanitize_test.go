package builtin

import (
	"math"
	"testing"
	"time"

	"desabasto/pkg/records"
)

func TestCoerceInt_TableDriven(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want int64
		ok   bool
	}{
		{name: "int", in: 42, want: 42, ok: true},
		{name: "int64", in: int64(-7), want: -7, ok: true},
		{name: "integral_float", in: 123.0, want: 123, ok: true},
		{name: "fractional_float_truncates", in: 12.9, want: 12, ok: true},
		{name: "text", in: "123", want: 123, ok: true},
		{name: "text_float", in: "123.0", want: 123, ok: true},
		{name: "text_exponent_padded", in: " 1e3 ", want: 1000, ok: true},
		{name: "text_garbage", in: "12abc", ok: false},
		{name: "blank", in: "   ", ok: false},
		{name: "nil", in: nil, ok: false},
		{name: "nan", in: math.NaN(), ok: false},
		{name: "inf", in: math.Inf(1), ok: false},
		{name: "text_nan", in: "NaN", ok: false},
		{name: "bool", in: true, ok: false},
		{name: "uint64_overflow", in: uint64(math.MaxUint64), ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CoerceInt(tt.in)
			if ok != tt.ok || (ok && got != tt.want) {
				t.Fatalf("CoerceInt(%#v)=(%d,%v), want (%d,%v)", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestCellText_TableDriven(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want string
		ok   bool
	}{
		{name: "trimmed", in: "  Abarrotes  ", want: "Abarrotes", ok: true},
		{name: "blank", in: " \t ", ok: false},
		{name: "nan_marker", in: "nan", ok: false},
		{name: "NaN_marker", in: "NaN", ok: false},
		{name: "NaT_marker", in: "NaT", ok: false},
		{name: "None_marker", in: "None", ok: false},
		{name: "NA_marker", in: "<NA>", ok: false},
		{name: "integral_float", in: 5512345678.0, want: "5512345678", ok: true},
		{name: "fractional_float", in: 2.5, want: "2.5", ok: true},
		{name: "nan_float", in: math.NaN(), ok: false},
		{name: "int", in: 7, want: "7", ok: true},
		{name: "time", in: time.Date(2025, 8, 5, 0, 0, 0, 0, time.UTC), want: "2025-08-05 00:00:00", ok: true},
		{name: "nil", in: nil, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CellText(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("CellText(%#v)=(%q,%v), want (%q,%v)", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestSanitizer_RenameAndNumeric(t *testing.T) {
	t.Parallel()

	s := NewSanitizer(
		map[string]string{
			"ID_CLIENTE":    "id_cliente",
			"ULTIMO_USO_MR": "ultimo_uso_de_mis_recargas",
			"CREDITO":       "credito",
		},
		map[string]bool{"id_cliente": true, "credito": true},
	)

	raw := records.RawRow{
		"id_cliente":    "8429529.0",
		"ultimo_uso_mr": " 2025-08-01 ",
		"credito":       "sin credito",
		"unmapped":      "dropped",
	}

	got := s.Sanitize(raw)

	if n, ok := got.Get("id_cliente").Int64(); !ok || n != 8429529 {
		t.Fatalf("id_cliente=%v, want Int(8429529)", got.Get("id_cliente"))
	}
	if v, ok := got.Get("ultimo_uso_de_mis_recargas").Str(); !ok || v != "2025-08-01" {
		t.Fatalf("ultimo_uso_de_mis_recargas=%v", got.Get("ultimo_uso_de_mis_recargas"))
	}
	if v, present := got["credito"]; !present || !v.IsAbsent() {
		t.Fatalf("non-numeric credito must be Absent, got %v (present=%v)", v, present)
	}
	if _, present := got["unmapped"]; present {
		t.Fatalf("unmapped column must be dropped: %v", got)
	}
}

func TestSanitizer_IdentityWhenNoRename(t *testing.T) {
	t.Parallel()

	s := NewSanitizer(nil, nil)
	got := s.Sanitize(records.RawRow{"region": "Centro", "saldo": 150.0, "vacio": "nan"})

	if v, _ := got.Get("region").Str(); v != "Centro" {
		t.Fatalf("region=%v", got.Get("region"))
	}
	if v, _ := got.Get("saldo").Str(); v != "150" {
		t.Fatalf("saldo=%v, want text 150", got.Get("saldo"))
	}
	if !got.Get("vacio").IsAbsent() {
		t.Fatalf("vacio=%v, want Absent", got.Get("vacio"))
	}
}

func TestSanitizer_NumericNeverHoldsText(t *testing.T) {
	t.Parallel()

	s := NewSanitizer(nil, map[string]bool{"dias": true})
	rows := []records.RawRow{
		{"dias": "3"}, {"dias": "tres"}, {"dias": nil}, {"dias": 4.7}, {},
	}
	for i, r := range s.SanitizeAll(rows) {
		if r.Get("dias").IsText() {
			t.Fatalf("row %d: numeric field holds text %v", i, r.Get("dias"))
		}
	}
}
