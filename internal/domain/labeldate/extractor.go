// Package labeldate finds expiry date candidates in text recognized from a
// product label.
package labeldate

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"golang.org/x/text/width"
)

const (
	DefaultMinYear = 2020
	DefaultMaxYear = 2100
)

// Two digit years must not be preceded by a digit, otherwise the tail of a
// four digit year would be read as 20xx ("1999-01-01" as 2099-01-01).
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d{4})[./-](\d{1,2})[./-](\d{1,2})`),
	regexp.MustCompile(`(?:^|[^0-9])(\d{2})[./-](\d{1,2})[./-](\d{1,2})`),
	regexp.MustCompile(`(\d{4})年(\d{1,2})月(\d{1,2})日`),
	regexp.MustCompile(`(?:^|[^0-9])(\d{2})年(\d{1,2})月(\d{1,2})日`),
}

// Result is the outcome of one extraction. Dates is never nil.
type Result struct {
	Dates     []string `json:"dates"`
	Suggested *string  `json:"suggestedDate"`
}

// Extractor holds the accepted year range. The zero value is not useful; use
// Default or set both bounds.
type Extractor struct {
	MinYear int
	MaxYear int
}

func Default() Extractor {
	return Extractor{MinYear: DefaultMinYear, MaxYear: DefaultMaxYear}
}

// Extract returns every distinct valid date in text, ascending, with the
// earliest as the suggestion. Day of month is only checked against 1..31.
func (e Extractor) Extract(text string) Result {
	// OCR output often carries full-width digits and separators.
	folded := width.Fold.String(text)

	seen := make(map[string]struct{})
	dates := make([]string, 0)
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(folded, -1) {
			date, ok := e.normalize(m[1], m[2], m[3])
			if !ok {
				continue
			}
			if _, dup := seen[date]; dup {
				continue
			}
			seen[date] = struct{}{}
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)

	res := Result{Dates: dates}
	if len(dates) > 0 {
		first := dates[0]
		res.Suggested = &first
	}
	return res
}

func (e Extractor) normalize(y, m, d string) (string, bool) {
	year, err := strconv.Atoi(y)
	if err != nil {
		return "", false
	}
	month, err := strconv.Atoi(m)
	if err != nil {
		return "", false
	}
	day, err := strconv.Atoi(d)
	if err != nil {
		return "", false
	}

	if len(y) == 2 {
		year += 2000
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}
	if year < e.MinYear || year > e.MaxYear {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
}
