package workbook

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var plainNumber = regexp.MustCompile(`^[+-]?([0-9]+\.?[0-9]*|\.[0-9]+)([eE][+-]?[0-9]+)?$`)

// numberFormat holds the separators a locale uses when numbers are typed
// as text.
type numberFormat struct {
	tag     language.Tag
	decimal string
	group   string
}

// newNumberFormat derives separators from the locale's own rendering of
// 1234567.5. Locales that render with non-ASCII digits fall back to English.
func newNumberFormat(tag language.Tag) numberFormat {
	f := numberFormat{tag: tag, decimal: ".", group: ","}
	printed := message.NewPrinter(tag).Sprintf("%.1f", 1234567.5)

	one := strings.Index(printed, "1")
	two := strings.Index(printed, "2")
	seven := strings.LastIndex(printed, "7")
	five := strings.LastIndex(printed, "5")
	if one < 0 || two <= one || seven < two || five <= seven+1 {
		return f
	}
	f.group = printed[one+1 : two]
	f.decimal = printed[seven+1 : five]
	return f
}

// parse converts locale-formatted numeric text into a number. Percent
// suffixes divide by 100. Text that is not entirely numeric is rejected.
func (f numberFormat) parse(text string) (float64, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, false
	}
	percent := false
	if strings.HasSuffix(s, "%") {
		percent = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	}

	if f.group != "" {
		s = strings.ReplaceAll(s, f.group, "")
	}
	if strings.TrimSpace(f.group) == "" {
		// Space-grouping locales accept any kind of space as a separator.
		s = strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return -1
			}
			return r
		}, s)
	}
	if f.decimal != "." {
		if strings.Contains(s, ".") {
			return 0, false
		}
		s = strings.ReplaceAll(s, f.decimal, ".")
	}

	if !plainNumber.MatchString(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if percent {
		v /= 100
	}
	return v, true
}

// ParseLocale resolves a BCP 47 tag. An empty string selects English.
func ParseLocale(name string) (language.Tag, error) {
	if strings.TrimSpace(name) == "" {
		return language.English, nil
	}
	return language.Parse(name)
}
