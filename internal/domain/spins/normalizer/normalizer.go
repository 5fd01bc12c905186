// Package normalizer handles regional number, flag and date parsing for
// spreadsheet cells. Numeric parsing degrades to zero instead of failing.
package normalizer

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var (
	ErrInvalidFlag = errors.New("invalid boolean flag")
	ErrInvalidDate = errors.New("invalid date format")
)

// Normalize converts a numeric-looking cell into a float64.
// Returns 0 for empty, unparsable or non-finite input.
func Normalize(raw string) float64 {
	v, _ := Parse(raw)
	return v
}

// NormalizeCell is Normalize for a possibly missing cell; nil yields 0.
func NormalizeCell(raw *string) float64 {
	if raw == nil {
		return 0
	}
	return Normalize(*raw)
}

// Parse is Normalize that also reports whether the cell held a number.
//
// Whitespace anywhere in the string is dropped. With both ',' and '.' present
// the dot is a thousands separator and the comma the decimal mark
// (1.234,56); a lone comma is a decimal mark (1234,56); otherwise the string is
// read as-is (1234.56).
func Parse(raw string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if cleaned == "" {
		return 0, false
	}

	hasComma := strings.Contains(cleaned, ",")
	hasDot := strings.Contains(cleaned, ".")
	switch {
	case hasComma && hasDot:
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	case hasComma:
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}

	val, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(val) || math.IsInf(val, 0) {
		return 0, false
	}
	return val, true
}

var (
	trueFlags  = []string{"true", "t", "1", "yes", "y", "sim", "s", "verdadeiro", "x"}
	falseFlags = []string{"false", "f", "0", "no", "n", "nao", "não", "falso", ""}
)

// ParseFlag reads a boolean-like cell such as a free-spin marker.
// Matching is case-insensitive; a blank cell counts as false.
func ParseFlag(raw string) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	for _, f := range trueFlags {
		if v == f {
			return true, nil
		}
	}
	for _, f := range falseFlags {
		if v == f {
			return false, nil
		}
	}
	// Spreadsheets sometimes store flags as 1.0 / 0.0
	if n, ok := Parse(v); ok {
		return n != 0, nil
	}
	return false, ErrInvalidFlag
}

// Date formats seen in casino back-office exports
var dateFormats = []string{
	// European (DD-MM-YYYY variants)
	"02-01-2006",
	"02/01/2006",
	"02.01.2006",
	"2-1-2006",
	"2/1/2006",

	// American (MM-DD-YYYY variants)
	"01-02-2006",
	"01/02/2006",
	"1/2/2006",

	// ISO (YYYY-MM-DD)
	"2006-01-02",
	"2006/01/02",

	// With time
	"02-01-2006 15:04",
	"02/01/2006 15:04",
	"02/01/2006 15:04:05",
	"01/02/2006 15:04",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
	time.RFC3339,
	time.RFC3339Nano,
}

// ParseFlexibleDate attempts to parse a date using multiple formats
func ParseFlexibleDate(raw string, preferredFormat string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrInvalidDate
	}

	if loc == nil {
		loc = time.UTC
	}

	// Try preferred format first
	if preferredFormat != "" {
		goFormat := convertDateFormat(preferredFormat)
		if t, err := time.ParseInLocation(goFormat, raw, loc); err == nil {
			return t, nil
		}
	}

	for _, format := range dateFormats {
		if t, err := time.ParseInLocation(format, raw, loc); err == nil {
			return t, nil
		}
	}

	return time.Time{}, ErrInvalidDate
}

// convertDateFormat converts user-friendly format strings to Go format
// e.g., "DD-MM-YYYY" -> "02-01-2006"
func convertDateFormat(format string) string {
	// Longest tokens first so YYYY is not consumed as two YY.
	replacer := strings.NewReplacer(
		"YYYY", "2006",
		"YY", "06",
		"MM", "01",
		"DD", "02",
		"HH", "15",
		"mm", "04",
		"ss", "05",
	)
	return replacer.Replace(format)
}

var (
	dayFirstPattern = regexp.MustCompile(`^\d{1,2}[-/]\d{1,2}[-/]\d{4}`)
	isoPattern      = regexp.MustCompile(`^\d{4}[-/]\d{1,2}[-/]\d{1,2}`)
)

// DetectDateFormat guesses the date layout of a column from sample values.
// Any sample whose first field exceeds 12 settles the day-first question.
func DetectDateFormat(samples []string) string {
	if len(samples) == 0 {
		return "DD-MM-YYYY"
	}

	sample := strings.TrimSpace(samples[0])
	if isoPattern.MatchString(sample) {
		if strings.Contains(sample, "/") {
			return "YYYY/MM/DD"
		}
		return "YYYY-MM-DD"
	}

	if !dayFirstPattern.MatchString(sample) {
		return "DD-MM-YYYY"
	}

	sep := "-"
	if strings.Contains(sample, "/") {
		sep = "/"
	}
	for _, s := range samples {
		parts := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool {
			return r == '-' || r == '/'
		})
		if len(parts) < 2 {
			continue
		}
		first, _ := strconv.Atoi(parts[0])
		second, _ := strconv.Atoi(parts[1])
		if first > 12 {
			return "DD" + sep + "MM" + sep + "YYYY"
		}
		if second > 12 {
			return "MM" + sep + "DD" + sep + "YYYY"
		}
	}

	// Brazilian exports are day-first
	return "DD" + sep + "MM" + sep + "YYYY"
}

var spacePattern = regexp.MustCompile(`\s+`)

// CleanDescription trims and collapses whitespace in free-text cells such as
// game names.
func CleanDescription(raw string) string {
	return spacePattern.ReplaceAllString(strings.TrimSpace(raw), " ")
}
