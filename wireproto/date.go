package wireproto

import (
	"strconv"
	"strings"
)

// months and days are literal ASCII tables; no locale-sensitive routine is
// used anywhere in this file, per spec §4.1.
var months = [...]string{
	"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
}

var weekdaysShort = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
var weekdaysLong = [...]string{
	"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday",
}

const secondsPerDay = 86400

var daysInMonth = [...]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

func isLeap(year int) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}

func monthIndex(name string) int {
	for i, m := range months {
		if strings.EqualFold(m, name) {
			return i
		}
	}
	return -1
}

// civilToUnix converts a UTC civil date/time to POSIX seconds, with no
// leap-second handling, using Howard Hinnant's days-from-civil algorithm
// expressed without any time-zone or locale library call.
func civilToUnix(year, month, day, hour, min, sec int) int64 {
	y := int64(year)
	if month <= 2 {
		y--
	}
	var era int64
	if y >= 0 {
		era = y / 400
	} else {
		era = (y - 399) / 400
	}
	yoe := y - era*400
	var mp int64
	if month > 2 {
		mp = int64(month) - 3
	} else {
		mp = int64(month) + 9
	}
	doy := (153*mp+2)/5 + int64(day) - 1
	doe := yoe*365 + yoe/4 - yoe/100 + doy
	days := era*146097 + doe - 719468
	return days*secondsPerDay + int64(hour)*3600 + int64(min)*60 + int64(sec)
}

func unixToCivil(t int64) (year, month, day, hour, min, sec int) {
	secs := t % secondsPerDay
	days := t / secondsPerDay
	if secs < 0 {
		secs += secondsPerDay
		days--
	}
	z := days + 719468
	var era int64
	if z >= 0 {
		era = z / 146097
	} else {
		era = (z - 146096) / 146097
	}
	doe := z - era*146097
	yoe := (doe - doe/1460 + doe/36524 - doe/146096) / 365
	y := yoe + era*400
	doy := doe - (365*yoe + yoe/4 - yoe/100)
	mp := (5*doy + 2) / 153
	d := doy - (153*mp+2)/5 + 1
	var m int64
	if mp < 10 {
		m = mp + 3
	} else {
		m = mp - 9
	}
	if m <= 2 {
		y++
	}
	year = int(y)
	month = int(m)
	day = int(d)
	hour = int(secs / 3600)
	min = int((secs % 3600) / 60)
	sec = int(secs % 60)
	return
}

// twoDigitYear implements RFC 2616 §19.3's lenient year mapping for RFC 850
// dates: 00-69 -> 2000-2069, 70-99 -> 1970-1999.
func twoDigitYear(yy int) int {
	if yy < 70 {
		return 2000 + yy
	}
	return 1900 + yy
}

// ParseDate parses an RFC 1123 (IMF-fixdate), RFC 850, or asctime date
// string into POSIX seconds UTC. It returns 0 on any parse failure; callers
// treat 0 as "no date" (e.g. a session cookie). Years below 1970 clamp to
// 1970 per spec §4.1.
func ParseDate(s string) int64 {
	s = strings.TrimSpace(s)
	if t, ok := parseIMFFixdate(s); ok {
		return clampEpoch(t)
	}
	if t, ok := parseRFC850(s); ok {
		return clampEpoch(t)
	}
	if t, ok := parseAsctime(s); ok {
		return clampEpoch(t)
	}
	return 0
}

func clampEpoch(t int64) int64 {
	if t < 0 {
		return 0
	}
	return t
}

// parseIMFFixdate parses "Sun, 06 Nov 1994 08:49:37 GMT".
func parseIMFFixdate(s string) (int64, bool) {
	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return 0, false
	}
	rest := strings.TrimSpace(s[comma+1:])
	fields := strings.Fields(rest)
	if len(fields) < 4 {
		return 0, false
	}
	day, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, false
	}
	month := monthIndex(fields[1]) + 1
	if month <= 0 {
		return 0, false
	}
	year, err := strconv.Atoi(fields[2])
	if err != nil {
		return 0, false
	}
	hh, mm, ss, ok := parseClock(fields[3])
	if !ok {
		return 0, false
	}
	if !validCivil(year, month, day) {
		return 0, false
	}
	return civilToUnix(year, month, day, hh, mm, ss), true
}

// parseRFC850 parses "Sunday, 06-Nov-94 08:49:37 GMT".
func parseRFC850(s string) (int64, bool) {
	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return 0, false
	}
	rest := strings.TrimSpace(s[comma+1:])
	fields := strings.Fields(rest)
	if len(fields) < 3 {
		return 0, false
	}
	dateParts := strings.Split(fields[0], "-")
	if len(dateParts) != 3 {
		return 0, false
	}
	day, err := strconv.Atoi(dateParts[0])
	if err != nil {
		return 0, false
	}
	month := monthIndex(dateParts[1]) + 1
	if month <= 0 {
		return 0, false
	}
	yy, err := strconv.Atoi(dateParts[2])
	if err != nil {
		return 0, false
	}
	year := twoDigitYear(yy)
	hh, mm, ss, ok := parseClock(fields[1])
	if !ok {
		return 0, false
	}
	if !validCivil(year, month, day) {
		return 0, false
	}
	return civilToUnix(year, month, day, hh, mm, ss), true
}

// parseAsctime parses "Sun Nov  6 08:49:37 1994".
func parseAsctime(s string) (int64, bool) {
	fields := strings.Fields(s)
	if len(fields) != 5 {
		return 0, false
	}
	month := monthIndex(fields[1]) + 1
	if month <= 0 {
		return 0, false
	}
	day, err := strconv.Atoi(fields[2])
	if err != nil {
		return 0, false
	}
	hh, mm, ss, ok := parseClock(fields[3])
	if !ok {
		return 0, false
	}
	year, err := strconv.Atoi(fields[4])
	if err != nil {
		return 0, false
	}
	if !validCivil(year, month, day) {
		return 0, false
	}
	return civilToUnix(year, month, day, hh, mm, ss), true
}

func parseClock(s string) (hh, mm, ss int, ok bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	var err error
	if hh, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, 0, false
	}
	if mm, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, 0, false
	}
	if ss, err = strconv.Atoi(parts[2]); err != nil {
		return 0, 0, 0, false
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 || ss < 0 || ss > 60 {
		return 0, 0, 0, false
	}
	return hh, mm, ss, true
}

func validCivil(year, month, day int) bool {
	if month < 1 || month > 12 || day < 1 {
		return false
	}
	maxDay := daysInMonth[month-1]
	if month == 2 && isLeap(year) {
		maxDay = 29
	}
	return day <= maxDay
}

// FormatDate renders t (POSIX seconds UTC) as an IMF-fixdate:
// "Mon, 02 Jan 2006 15:04:05 GMT", using the fixed tables above.
func FormatDate(t int64) string {
	year, month, day, hh, mm, ss := unixToCivil(t)
	return formatParts(weekday(t), day, month, year, hh, mm, ss)
}

func formatParts(wd, day, month, year, hh, mm, ss int) string {
	var b strings.Builder
	b.WriteString(weekdaysShort[wd])
	b.WriteString(", ")
	if day < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.Itoa(day))
	b.WriteByte(' ')
	b.WriteString(months[month-1])
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(year))
	b.WriteByte(' ')
	writeTwoDigit(&b, hh)
	b.WriteByte(':')
	writeTwoDigit(&b, mm)
	b.WriteByte(':')
	writeTwoDigit(&b, ss)
	b.WriteString(" GMT")
	return b.String()
}

func writeTwoDigit(b *strings.Builder, v int) {
	if v < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.Itoa(v))
}

// weekday returns 0=Sunday..6=Saturday for POSIX seconds t, computed from
// the epoch (1970-01-01 was a Thursday, index 4) without any locale call.
func weekday(t int64) int {
	days := t / secondsPerDay
	if t%secondsPerDay < 0 {
		days--
	}
	wd := (days%7 + 4 + 7) % 7
	return int(wd)
}

// WeekdayLongName exposes the long weekday name table for callers that want
// RFC 850 style output (unused by FormatDate but kept for symmetry/tests).
func WeekdayLongName(t int64) string {
	return weekdaysLong[weekday(t)]
}
