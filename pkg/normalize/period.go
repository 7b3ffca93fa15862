package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"finintel/pkg/domain"
)

var (
	fyRe     = regexp.MustCompile(`(?i)\bFY\s*(\d{4})\b`)
	esercizioRe = regexp.MustCompile(`(?i)\bEsercizio\s+(\d{4})\b`)
	quarterRe = regexp.MustCompile(`(?i)\bQ([1-4])\s*(\d{4})\b`)
	yearRe    = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
	monthYearRe = regexp.MustCompile(`\b(0[1-9]|1[0-2])/(\d{4})\b`)
	ytdRe     = regexp.MustCompile(`(?i)\bYTD\s+([A-Za-zàèéìòù]+)\s+(\d{4})\b`)
	rangeRe   = regexp.MustCompile(`\b(\d{2})/(\d{2})/(\d{4})\s*[–-]\s*(\d{2})/(\d{2})/(\d{4})\b`)
)

var italianMonths = map[string]time.Month{
	"gennaio": time.January, "febbraio": time.February, "marzo": time.March,
	"aprile": time.April, "maggio": time.May, "giugno": time.June,
	"luglio": time.July, "agosto": time.August, "settembre": time.September,
	"ottobre": time.October, "novembre": time.November, "dicembre": time.December,
}

// Period recognizes the period text forms spec.md §4.2 lists. fc decides
// whether an explicit date range collapses to a fiscal quarter or stays
// "custom".
func Period(text string, fc domain.FiscalCalendar) (domain.PeriodKey, error) {
	if m := esercizioRe.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		return domain.PeriodKey{Type: domain.PeriodFY, Year: year}, nil
	}
	if m := fyRe.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		return domain.PeriodKey{Type: domain.PeriodFY, Year: year}, nil
	}
	if m := quarterRe.FindStringSubmatch(text); m != nil {
		q, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[2])
		return domain.PeriodKey{Type: domain.PeriodQ, Year: year, Index: q}, nil
	}
	if m := ytdRe.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[2])
		return domain.PeriodKey{Type: domain.PeriodYTD, Year: year}, nil
	}
	if m := rangeRe.FindStringSubmatch(text); m != nil {
		start, err1 := parseDMY(m[1], m[2], m[3])
		end, err2 := parseDMY(m[4], m[5], m[6])
		if err1 == nil && err2 == nil {
			if key, ok := fc.MatchesQuarter(start, end); ok {
				return key, nil
			}
			return domain.PeriodKey{Type: domain.PeriodCustom, Year: end.Year()}, nil
		}
	}
	if m := monthYearRe.FindStringSubmatch(text); m != nil {
		month, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[2])
		return domain.PeriodKey{Type: domain.PeriodM, Year: year, Index: month}, nil
	}
	if m := yearRe.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		return domain.PeriodKey{Type: domain.PeriodFY, Year: year}, nil
	}
	return domain.PeriodKey{}, fmt.Errorf("normalize: no recognizable period in %q", text)
}

func parseDMY(d, m, y string) (time.Time, error) {
	day, err := strconv.Atoi(d)
	if err != nil {
		return time.Time{}, err
	}
	month, err := strconv.Atoi(m)
	if err != nil {
		return time.Time{}, err
	}
	year, err := strconv.Atoi(y)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
}
