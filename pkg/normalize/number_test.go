package normalize

import (
	"math"
	"testing"
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestNumberItalianLocale(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{"1.234.567,89", 1234567.89},
		{"1.234,56 €", 1234.56},
		{"(1.234)", -1234},
		{"45,5%", 45.5},
	}
	for _, tc := range cases {
		got, err := Number(tc.raw, LocaleAuto, 0, "")
		if err != nil {
			t.Fatalf("Number(%q) error: %v", tc.raw, err)
		}
		if !approxEqual(got.Value, tc.want) {
			t.Errorf("Number(%q) = %v, want %v", tc.raw, got.Value, tc.want)
		}
	}
}

func TestNumberUSLocale(t *testing.T) {
	got, err := Number("1,234,567.89", LocaleAuto, 0, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approxEqual(got.Value, 1234567.89) {
		t.Errorf("got %v, want 1234567.89", got.Value)
	}
}

func TestNumberCurrencyDetection(t *testing.T) {
	got, err := Number("$5,000,000", LocaleUS, 0, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Currency != "USD" {
		t.Errorf("got currency %q, want USD", got.Currency)
	}
	if !approxEqual(got.Value, 5000000) {
		t.Errorf("got %v, want 5000000", got.Value)
	}
}

func TestNumberBlankMarkerRejected(t *testing.T) {
	if _, err := Number("—", LocaleAuto, 0, ""); err == nil {
		t.Error("expected error for blank marker")
	}
}

func TestNumberScaleHint(t *testing.T) {
	got, err := Number("5,5", LocaleIT, 1_000_000, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approxEqual(got.Value, 5_500_000) {
		t.Errorf("got %v, want 5500000", got.Value)
	}
}

func TestRenderRoundTrip(t *testing.T) {
	values := []float64{1234567.89, 1234.56, -1234, 45.5, 0.5}
	for _, v := range values {
		rendered := Render(v)
		got, err := Number(rendered, LocaleIT, 0, "")
		if err != nil {
			t.Fatalf("Number(Render(%v)) error: %v", v, err)
		}
		if !approxEqual(got.Value, v) {
			t.Errorf("round trip mismatch for %v: rendered %q, parsed back %v", v, rendered, got.Value)
		}
	}
}
