package intent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Patterns mirror the formats users actually type: ISO timestamps pasted from
// a picker, "06-09-2025 | 09:00 AM" visual confirmations, and free-text
// phrases like "agendar el lunes a las 3 pm" or "book november 14 at 10am".
var (
	isoDateTimeRE    = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[tT]\d{2}:\d{2}(?::\d{2})?(?:[zZ]|[+-]\d{2}:\d{2})?`)
	visualDateTimeRE = regexp.MustCompile(`(\d{2}[-/]\d{2}[-/]\d{4})\s*(?:\||a las)?\s*(\d{1,2}:\d{2}\s*(?:am|pm))`)
	dateTimeActionRE = regexp.MustCompile(`(agend(ar|ame)|reserv(ar|a)|program(ar|a)|book|schedule)[^.]{0,20}(\b(hoy|manana|lunes|martes|miercoles|jueves|viernes|sabado|domingo|today|tomorrow|monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b|\b\d{1,2}/\d{1,2}\b|\b\d{4}-\d{2}-\d{2}\b)`)
	clockTimeRE      = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b|\b(\d{1,2}):(\d{2})\b`)
	slashDateRE      = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})\b`)
)

var weekdays = map[string]time.Weekday{
	"lunes": time.Monday, "martes": time.Tuesday, "miercoles": time.Wednesday,
	"jueves": time.Thursday, "viernes": time.Friday, "sabado": time.Saturday,
	"domingo": time.Sunday,
	"monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
	"sunday": time.Sunday,
}

var months = map[string]time.Month{
	"enero": time.January, "febrero": time.February, "marzo": time.March,
	"abril": time.April, "mayo": time.May, "junio": time.June, "julio": time.July,
	"agosto": time.August, "septiembre": time.September, "setiembre": time.September,
	"octubre": time.October, "noviembre": time.November, "diciembre": time.December,
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
}

// HasDateTimeHint reports whether normalized text carries an explicit
// date-time pattern, or a booking verb next to a date token.
func HasDateTimeHint(norm string) bool {
	return isoDateTimeRE.MatchString(norm) ||
		visualDateTimeRE.MatchString(norm) ||
		dateTimeActionRE.MatchString(norm)
}

// ExtractDateTime pulls a concrete timestamp out of free text, trying the
// strictest format first. now anchors relative phrases; its location is kept
// for the result. Returns false when no complete date+time can be resolved.
func ExtractDateTime(text string, now time.Time) (time.Time, bool) {
	norm := Normalize(text)

	if m := isoDateTimeRE.FindString(norm); m != "" {
		if t, ok := parseISO(m, now.Location()); ok {
			return t, true
		}
	}

	if m := visualDateTimeRE.FindStringSubmatch(norm); m != nil {
		if t, ok := parseVisual(m[1], m[2], now.Location()); ok {
			return t, true
		}
	}

	day, okDay := resolveDateToken(norm, now)
	hour, minute, okTime := resolveClockTime(norm)
	if okDay && okTime {
		return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location()), true
	}

	return time.Time{}, false
}

func parseISO(s string, loc *time.Location) (time.Time, bool) {
	s = strings.ToUpper(s)
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
	} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseVisual(datePart, timePart string, loc *time.Location) (time.Time, bool) {
	datePart = strings.ReplaceAll(datePart, "/", "-")
	timePart = strings.ToUpper(strings.TrimSpace(timePart))
	combined := fmt.Sprintf("%s %s", datePart, timePart)
	// Day-first is the common form here; month-first is the fallback.
	for _, layout := range []string{"02-01-2006 3:04PM", "02-01-2006 3:04 PM", "01-02-2006 3:04PM", "01-02-2006 3:04 PM"} {
		if t, err := time.ParseInLocation(layout, combined, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// resolveDateToken finds a calendar day from phrases like "manana",
// "viernes", "14 de noviembre", "november 14", or "15/11".
func resolveDateToken(norm string, now time.Time) (time.Time, bool) {
	if strings.Contains(norm, "hoy") || strings.Contains(norm, "today") {
		return now, true
	}
	if strings.Contains(norm, "manana") || strings.Contains(norm, "tomorrow") {
		return now.AddDate(0, 0, 1), true
	}

	for name, wd := range weekdays {
		if containsWord(norm, name) {
			return nextWeekday(now, wd), true
		}
	}

	// "14 de noviembre"
	if m := regexp.MustCompile(`\b(\d{1,2}) de ([a-z]+)\b`).FindStringSubmatch(norm); m != nil {
		if mo, ok := months[m[2]]; ok {
			return dateInYear(now, mo, atoi(m[1]))
		}
	}
	// "november 14" / "14th of november"
	if m := regexp.MustCompile(`\b([a-z]+) (\d{1,2})\b`).FindStringSubmatch(norm); m != nil {
		if mo, ok := months[m[1]]; ok {
			return dateInYear(now, mo, atoi(m[2]))
		}
	}
	if m := regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)? of ([a-z]+)\b`).FindStringSubmatch(norm); m != nil {
		if mo, ok := months[m[2]]; ok {
			return dateInYear(now, mo, atoi(m[1]))
		}
	}
	// "15/11" day/month
	if m := slashDateRE.FindStringSubmatch(norm); m != nil {
		d, mo := atoi(m[1]), atoi(m[2])
		if mo >= 1 && mo <= 12 && d >= 1 && d <= 31 {
			return dateInYear(now, time.Month(mo), d)
		}
	}

	return time.Time{}, false
}

func resolveClockTime(norm string) (hour, minute int, ok bool) {
	m := clockTimeRE.FindStringSubmatch(norm)
	if m == nil {
		return 0, 0, false
	}
	if m[1] != "" { // am/pm form
		hour = atoi(m[1])
		if m[2] != "" {
			minute = atoi(m[2])
		}
		switch m[3] {
		case "pm":
			if hour < 12 {
				hour += 12
			}
		case "am":
			if hour == 12 {
				hour = 0
			}
		}
	} else { // 24h hh:mm
		hour = atoi(m[4])
		minute = atoi(m[5])
	}
	if hour > 23 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

func nextWeekday(base time.Time, target time.Weekday) time.Time {
	delta := (int(target) - int(base.Weekday()) + 7) % 7
	if delta == 0 {
		delta = 7
	}
	return base.AddDate(0, 0, delta)
}

func dateInYear(now time.Time, mo time.Month, day int) (time.Time, bool) {
	if day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(now.Year(), mo, day, 0, 0, 0, 0, now.Location())
	if t.Month() != mo { // day overflowed the month
		return time.Time{}, false
	}
	return t, true
}

func containsWord(norm, word string) bool {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
	return re.MatchString(norm)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
