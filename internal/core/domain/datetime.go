package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/itchyny/timefmt-go"
)

// ParseDateTime parses an ISO 8601 style date/time. Accepted forms include
// compact (20081023T11:53:12) and dashed (2008-10-23T11:53:12) dates, a T or
// space separator, an optional Z suffix or numeric offset, optional fractional
// seconds, and missing seconds, minutes or time of day. A non-empty format
// is a strftime format used instead of auto-detection; sub-second precision
// is dropped then. The result is in UTC.
func ParseDateTime(raw string, format string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if format != "" {
		tm, err := parseFormatted(s, format)
		if err != nil {
			return time.Time{}, err
		}
		return tm.Truncate(time.Second), nil
	}
	return parseISODateTime(s)
}

// ParseDate parses the same forms as ParseDateTime, or a strftime format when
// given, and keeps only the calendar day (in UTC)
func ParseDate(raw string, format string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	var (
		tm  time.Time
		err error
	)
	if format != "" {
		tm, err = parseFormatted(s, format)
	} else {
		tm, err = parseISODateTime(s)
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(tm.Year(), tm.Month(), tm.Day(), 0, 0, 0, 0, time.UTC), nil
}

func parseISODateTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty datetime", ErrInvalidInput)
	}

	var datePart, timePart string
	if i := strings.IndexAny(s, "T "); i >= 0 {
		datePart, timePart = s[:i], strings.TrimSpace(s[i+1:])
	} else {
		// 20081212010102.123456 has no separator at all
		digits := s
		if dot := strings.IndexByte(s, '.'); dot >= 0 {
			digits = s[:dot]
		}
		if len(digits) == 14 && isDigits(digits) {
			datePart, timePart = s[:8], s[8:]
		} else {
			datePart = s
		}
	}

	date, err := parseISODate(strings.ReplaceAll(datePart, "-", ""))
	if err != nil {
		return time.Time{}, err
	}
	if timePart == "" {
		return date, nil
	}

	offset := 0
	switch {
	case strings.HasSuffix(timePart, "Z"):
		timePart = strings.TrimSuffix(timePart, "Z")
	case strings.LastIndexAny(timePart, "+-") > 0:
		i := strings.LastIndexAny(timePart, "+-")
		offset, err = parseOffset(timePart[i:])
		if err != nil {
			return time.Time{}, err
		}
		timePart = timePart[:i]
	}

	fraction := ""
	if dot := strings.IndexAny(timePart, ".,"); dot >= 0 {
		fraction = timePart[dot+1:]
		timePart = timePart[:dot]
	}
	clock := strings.ReplaceAll(timePart, ":", "")
	if !isDigits(clock) || len(clock)%2 != 0 || len(clock) > 6 || len(clock) == 0 {
		return time.Time{}, fmt.Errorf("%w: invalid time of day %q", ErrInvalidInput, timePart)
	}
	fields := [3]int{}
	for i := 0; i*2 < len(clock); i++ {
		fields[i], _ = strconv.Atoi(clock[i*2 : i*2+2])
	}
	hour, minute, second := fields[0], fields[1], fields[2]
	if hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, fmt.Errorf("%w: time of day out of range %q", ErrInvalidInput, timePart)
	}

	nsec := 0
	if fraction != "" {
		if !isDigits(fraction) {
			return time.Time{}, fmt.Errorf("%w: invalid fractional seconds %q", ErrInvalidInput, fraction)
		}
		if len(fraction) > 9 {
			fraction = fraction[:9]
		}
		nsec, _ = strconv.Atoi(fraction + strings.Repeat("0", 9-len(fraction)))
	}

	tm := time.Date(date.Year(), date.Month(), date.Day(), hour, minute, second, nsec, time.UTC)
	return tm.Add(-time.Duration(offset) * time.Second), nil
}

func parseISODate(digits string) (time.Time, error) {
	if len(digits) != 8 || !isDigits(digits) {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", ErrInvalidInput, digits)
	}
	year, _ := strconv.Atoi(digits[:4])
	month, _ := strconv.Atoi(digits[4:6])
	day, _ := strconv.Atoi(digits[6:8])
	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("%w: month out of range in %q", ErrInvalidInput, digits)
	}
	tm := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if tm.Day() != day {
		return time.Time{}, fmt.Errorf("%w: day out of range in %q", ErrInvalidInput, digits)
	}
	return tm, nil
}

// parseOffset parses +HH, +HHMM or +HH:MM into seconds east of UTC
func parseOffset(s string) (int, error) {
	sign := 1
	if s[0] == '-' {
		sign = -1
	}
	digits := strings.ReplaceAll(s[1:], ":", "")
	if !isDigits(digits) || (len(digits) != 2 && len(digits) != 4) {
		return 0, fmt.Errorf("%w: invalid utc offset %q", ErrInvalidInput, s)
	}
	hours, _ := strconv.Atoi(digits[:2])
	minutes := 0
	if len(digits) == 4 {
		minutes, _ = strconv.Atoi(digits[2:])
	}
	return sign * (hours*3600 + minutes*60), nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// dateFormatSample is formatted and re-parsed to validate index date formats
var dateFormatSample = time.Date(2008, 10, 23, 11, 53, 12, 54000000, time.UTC)

// ValidateDateFormat checks that a strftime format given as index options can
// parse values it describes
func ValidateDateFormat(format string) error {
	if _, err := timefmt.Parse(timefmt.Format(dateFormatSample, format), format); err != nil {
		return fmt.Errorf("%w: date format %q: %v", ErrInvalidInput, format, err)
	}
	return nil
}

func parseFormatted(value, format string) (time.Time, error) {
	tm, err := timefmt.Parse(value, format)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return tm.UTC(), nil
}
