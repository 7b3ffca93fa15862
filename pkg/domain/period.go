package domain

import (
	"fmt"
	"time"
)

// PeriodType is the granularity a Period covers.
type PeriodType string

const (
	PeriodFY     PeriodType = "FY"
	PeriodQ      PeriodType = "Q"
	PeriodM      PeriodType = "M"
	PeriodH      PeriodType = "H"
	PeriodYTD    PeriodType = "YTD"
	PeriodCustom PeriodType = "custom"
)

// PeriodKey is the canonical (type, year, index) encoding used to key every
// Fact and every retrieval filter. Two PeriodKeys with equal fields are the
// same reporting period even if they were parsed from different strings.
type PeriodKey struct {
	Type  PeriodType
	Year  int
	Index int // quarter/month/half number; 0 for FY and YTD
}

// Period carries the explicit date range backing a PeriodKey. Two documents
// that describe the same calendar range must resolve to the same PeriodKey
// regardless of how the range was phrased in the source text.
type Period struct {
	Key       PeriodKey
	StartDate time.Time
	EndDate   time.Time
}

func (k PeriodKey) String() string {
	if k.Index == 0 {
		return fmt.Sprintf("%s/%d", k.Type, k.Year)
	}
	return fmt.Sprintf("%s/%d/%d", k.Type, k.Year, k.Index)
}

// FiscalCalendar maps a calendar date range onto the deployment's fiscal
// quarters, so a period like "01/01–31/03/2025" collapses to Q/2025/1 when
// it matches the configured fiscal year start, and falls back to "custom"
// otherwise.
type FiscalCalendar struct {
	// FiscalYearStartMonth is the calendar month (1-12) the fiscal year
	// begins in. 1 means the fiscal year matches the calendar year.
	FiscalYearStartMonth int
}

// DefaultFiscalCalendar is a calendar-year fiscal calendar.
func DefaultFiscalCalendar() FiscalCalendar {
	return FiscalCalendar{FiscalYearStartMonth: 1}
}

// QuarterFor resolves which fiscal quarter (1-4) a date falls in, and the
// fiscal year it belongs to, given this calendar's fiscal-year start month.
func (fc FiscalCalendar) QuarterFor(d time.Time) (year, quarter int) {
	offset := int(d.Month()) - fc.FiscalYearStartMonth
	if offset < 0 {
		offset += 12
	}
	quarter = offset/3 + 1
	year = d.Year()
	if int(d.Month()) < fc.FiscalYearStartMonth {
		year--
	}
	return year, quarter
}

// MatchesQuarter reports whether [start, end] exactly covers one fiscal
// quarter under this calendar (inclusive day bounds, same month/day
// granularity the normalizer works with).
func (fc FiscalCalendar) MatchesQuarter(start, end time.Time) (PeriodKey, bool) {
	year, quarter := fc.QuarterFor(start)
	qStartMonth := fc.FiscalYearStartMonth + (quarter-1)*3
	qStartYear := year
	if qStartMonth > 12 {
		qStartMonth -= 12
		qStartYear++
	}
	expectedStart := time.Date(qStartYear, time.Month(qStartMonth), 1, 0, 0, 0, 0, time.UTC)
	expectedEnd := expectedStart.AddDate(0, 3, -1)
	if sameDay(start, expectedStart) && sameDay(end, expectedEnd) {
		return PeriodKey{Type: PeriodQ, Year: year, Index: quarter}, true
	}
	return PeriodKey{}, false
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
