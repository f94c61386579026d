package olx

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// monthsUK maps Ukrainian month names (full and abbreviated genitive forms)
// to month numbers, as they appear in OLX date strings.
var monthsUK = map[string]int{
	"січня": 1, "січ": 1,
	"лютого": 2, "лют": 2,
	"березня": 3, "бер": 3,
	"квітня": 4, "кві": 4,
	"травня": 5, "тра": 5,
	"червня": 6, "чер": 6,
	"липня": 7, "лип": 7,
	"серпня": 8, "сер": 8,
	"вересня": 9, "вер": 9,
	"жовтня": 10, "жов": 10,
	"листопада": 11, "лис": 11,
	"грудня": 12, "гру": 12,
}

var absoluteDateRegexp = regexp.MustCompile(`(\d{1,2})\s+(\p{L}+)\s+(\d{4})`)

const dateLayout = "02.01.2006"

// normalizeDate turns an OLX date string ("Сьогодні о 11:06",
// "01 жовтня 2025 р.") into dd.mm.yyyy. Relative words resolve against now;
// anything unparseable falls back to today's date.
func normalizeDate(raw string, now time.Time) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.Format(dateLayout)
	}

	if strings.Contains(raw, "Сьогодні") || strings.Contains(raw, "Сегодня") {
		return now.Format(dateLayout)
	}
	if strings.Contains(raw, "Вчора") || strings.Contains(raw, "Вчера") {
		return now.AddDate(0, 0, -1).Format(dateLayout)
	}

	if m := absoluteDateRegexp.FindStringSubmatch(raw); m != nil {
		day, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[3])
		month, ok := monthsUK[strings.ToLower(m[2])]
		if !ok {
			month = int(now.Month())
		}
		return time.Date(year, time.Month(month), day, 0, 0, 0, 0, now.Location()).Format(dateLayout)
	}

	return now.Format(dateLayout)
}
