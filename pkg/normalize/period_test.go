package normalize

import (
	"testing"

	"finintel/pkg/domain"
)

func TestPeriodRecognizesCommonForms(t *testing.T) {
	fc := domain.DefaultFiscalCalendar()
	cases := []struct {
		text string
		want domain.PeriodKey
	}{
		{"Esercizio 2024", domain.PeriodKey{Type: domain.PeriodFY, Year: 2024}},
		{"FY 2023", domain.PeriodKey{Type: domain.PeriodFY, Year: 2023}},
		{"Q2 2025", domain.PeriodKey{Type: domain.PeriodQ, Year: 2025, Index: 2}},
		{"01/01/2025–31/03/2025", domain.PeriodKey{Type: domain.PeriodQ, Year: 2025, Index: 1}},
	}
	for _, tc := range cases {
		got, err := Period(tc.text, fc)
		if err != nil {
			t.Fatalf("Period(%q) error: %v", tc.text, err)
		}
		if got != tc.want {
			t.Errorf("Period(%q) = %+v, want %+v", tc.text, got, tc.want)
		}
	}
}

func TestPeriodNonAlignedRangeIsCustom(t *testing.T) {
	fc := domain.DefaultFiscalCalendar()
	got, err := Period("01/02/2025–15/04/2025", fc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Type != domain.PeriodCustom {
		t.Errorf("got type %v, want custom", got.Type)
	}
}

func TestPeriodUnrecognized(t *testing.T) {
	fc := domain.DefaultFiscalCalendar()
	if _, err := Period("not a period", fc); err == nil {
		t.Error("expected error for unrecognizable period text")
	}
}
