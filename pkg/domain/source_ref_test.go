package domain

import "testing"

func ptr(i int) *int { return &i }
func sptr(s string) *string { return &s }

func TestSourceReferenceString(t *testing.T) {
	cases := []struct {
		name string
		ref  SourceReference
		want string
	}{
		{
			name: "spreadsheet cell",
			ref: SourceReference{
				FileName: "bilancio_2024.xlsx",
				Sheet:    sptr("CE"),
				Cell:     sptr("B12"),
			},
			want: "bilancio_2024.xlsx|sheet:CE|cell:B12",
		},
		{
			name: "pdf table row",
			ref: SourceReference{
				FileName:   "prospectus.pdf",
				Page:       ptr(5),
				TableIndex: ptr(1),
				RowLabel:   sptr("Ricavi"),
			},
			want: "prospectus.pdf|p.5|tab:1|row:Ricavi",
		},
		{
			name: "narrative text",
			ref: SourceReference{
				FileName: "prospectus.pdf",
				Page:     ptr(5),
			},
			want: "prospectus.pdf|p.5",
		},
		{
			name: "calculated",
			ref: SourceReference{
				SourceType:       SourceTypeCalculated,
				ExtractionMethod: "pfn|formula:debito_lordo-cassa|inputs:[a,b]",
			},
			want: "calculated/pfn|formula:debito_lordo-cassa|inputs:[a,b]",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.ref.String(); got != tc.want {
				t.Errorf("String() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseSourceReferenceRoundTrip(t *testing.T) {
	cases := []string{
		"bilancio_2024.xlsx|sheet:CE|cell:B12",
		"prospectus.pdf|p.5|tab:1|row:Ricavi",
		"prospectus.pdf|p.5",
	}
	for _, s := range cases {
		ref, err := ParseSourceReference(s)
		if err != nil {
			t.Fatalf("ParseSourceReference(%q) error: %v", s, err)
		}
		if got := ref.String(); got != s {
			t.Errorf("round trip mismatch: parsed %q, re-rendered %q", s, got)
		}
	}
}

func TestParseSourceReferenceInvalid(t *testing.T) {
	if _, err := ParseSourceReference("file.pdf|bogus"); err == nil {
		t.Error("expected error for malformed segment, got nil")
	}
}

func TestFactDedupKeyIgnoresDimensionOrder(t *testing.T) {
	base := Fact{
		TenantID:  "t1",
		EntityID:  "acme",
		MetricID:  "ricavi",
		PeriodKey: PeriodKey{Type: PeriodFY, Year: 2024},
		Scenario:  ScenarioActual,
		Perimeter: PerimeterStatutory,
	}
	a := base
	a.Dimensions = map[string]string{"region": "IT", "channel": "retail"}
	b := base
	b.Dimensions = map[string]string{"channel": "retail", "region": "IT"}

	if a.DedupKey() != b.DedupKey() {
		t.Errorf("expected identical dedup keys regardless of map insertion order, got %v vs %v", a.DedupKey(), b.DedupKey())
	}
}

func TestFiscalCalendarMatchesQuarter(t *testing.T) {
	fc := DefaultFiscalCalendar()
	start := mustDate(t, "2025-01-01")
	end := mustDate(t, "2025-03-31")

	key, ok := fc.MatchesQuarter(start, end)
	if !ok {
		t.Fatal("expected range to match a fiscal quarter")
	}
	if key.Type != PeriodQ || key.Year != 2025 || key.Index != 1 {
		t.Errorf("got %+v, want Q/2025/1", key)
	}
}

func TestFiscalCalendarRejectsNonQuarterRange(t *testing.T) {
	fc := DefaultFiscalCalendar()
	start := mustDate(t, "2025-02-01")
	end := mustDate(t, "2025-04-15")
	if _, ok := fc.MatchesQuarter(start, end); ok {
		t.Error("expected non-aligned range not to match a fiscal quarter")
	}
}
