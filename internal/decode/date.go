package decode

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var monthsByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// ParseDate normalizes a Gateway date rendering to ISO YYYY-MM-DD.
//
// Accepted shapes: 8-digit YYYYMMDD, and day-month-year with an
// alphabetic month (d-MMM-yy or d-MMM-yyyy). The Gateway sometimes
// scatters extra dashes through the alphabetic form ("1-Ap-r--21"), so
// separators are ignored entirely and the value is read as runs of
// digits and letters. A value with no year, or any other shape, is not a
// date; ok is false.
func ParseDate(raw string) (iso string, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == NullSentinel {
		return "", false
	}

	digits, letters := tokenize(raw)

	// Pure-numeric: only YYYYMMDD is accepted.
	if len(letters) == 0 {
		if len(digits) == 1 && len(digits[0]) == 8 {
			y, _ := strconv.Atoi(digits[0][:4])
			m, _ := strconv.Atoi(digits[0][4:6])
			d, _ := strconv.Atoi(digits[0][6:8])
			return isoDate(y, time.Month(m), d)
		}
		return "", false
	}

	// Alphabetic month: need a day run, one month name, and a year run.
	// Dashes can split the month name itself, so the letter runs are
	// rejoined before lookup.
	if len(digits) != 2 {
		return "", false
	}
	name := strings.ToLower(strings.Join(letters, ""))
	if len(name) < 3 {
		return "", false
	}
	month, ok := monthsByPrefix[name[:3]]
	if !ok {
		return "", false
	}
	day, err := strconv.Atoi(digits[0])
	if err != nil {
		return "", false
	}
	year, err := strconv.Atoi(digits[1])
	if err != nil {
		return "", false
	}
	switch len(digits[1]) {
	case 2:
		year += 2000
	case 4:
	default:
		return "", false
	}
	return isoDate(year, month, day)
}

// tokenize splits a value into its runs of digits and runs of letters,
// discarding everything else.
func tokenize(s string) (digits, letters []string) {
	var run strings.Builder
	var runDigit bool
	flush := func() {
		if run.Len() == 0 {
			return
		}
		if runDigit {
			digits = append(digits, run.String())
		} else {
			letters = append(letters, run.String())
		}
		run.Reset()
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			if run.Len() > 0 && !runDigit {
				flush()
			}
			runDigit = true
			run.WriteRune(r)
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			if run.Len() > 0 && runDigit {
				flush()
			}
			runDigit = false
			run.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return digits, letters
}

func isoDate(y int, m time.Month, d int) (string, bool) {
	if m < time.January || m > time.December || d < 1 || d > 31 || y < 1900 || y > 2200 {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", y, int(m), d), true
}
