package model

import (
	"fmt"
	"regexp"
	"strings"
)

// CellRef identifies a cell. It may carry a sheet qualifier: Sheet1!A1, or
// 'Q1 Budget'!B2 for names that need quoting. Apostrophes inside a quoted
// name are doubled.
type CellRef string

var addressPattern = regexp.MustCompile(`^[A-Z]{1,3}[1-9][0-9]*$`)

// NewCellRef builds a reference from a sheet name and an address. An empty
// sheet yields an unqualified reference.
func NewCellRef(sheet, address string) CellRef {
	address = normalizeAddress(address)
	if sheet == "" {
		return CellRef(address)
	}
	return CellRef(QuoteSheetName(sheet) + "!" + address)
}

// QuoteSheetName quotes a sheet name when it cannot appear bare in a reference.
func QuoteSheetName(name string) string {
	if !needsQuoting(name) {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func needsQuoting(name string) bool {
	if name == "" {
		return true
	}
	if name[0] >= '0' && name[0] <= '9' {
		return true
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.':
		default:
			return true
		}
	}
	return false
}

// Split separates the sheet qualifier from the address. The address is
// upper-cased with absolute markers ($) removed.
func (r CellRef) Split() (sheet, address string, err error) {
	s := strings.TrimSpace(string(r))
	if s == "" {
		return "", "", fmt.Errorf("empty cell reference")
	}

	if strings.HasPrefix(s, "'") {
		var b strings.Builder
		i := 1
		closed := false
		for i < len(s) {
			if s[i] == '\'' {
				if i+1 < len(s) && s[i+1] == '\'' {
					b.WriteByte('\'')
					i += 2
					continue
				}
				closed = true
				i++
				break
			}
			b.WriteByte(s[i])
			i++
		}
		if !closed {
			return "", "", fmt.Errorf("cell reference %q has an unterminated sheet name", string(r))
		}
		if i >= len(s) || s[i] != '!' {
			return "", "", fmt.Errorf("cell reference %q is missing '!' after the sheet name", string(r))
		}
		sheet = b.String()
		if sheet == "" {
			return "", "", fmt.Errorf("cell reference %q has an empty sheet name", string(r))
		}
		s = s[i+1:]
	} else if idx := strings.LastIndex(s, "!"); idx >= 0 {
		sheet = s[:idx]
		if sheet == "" {
			return "", "", fmt.Errorf("cell reference %q has an empty sheet name", string(r))
		}
		if needsQuoting(sheet) {
			return "", "", fmt.Errorf("sheet name %q in %q must be quoted", sheet, string(r))
		}
		s = s[idx+1:]
	}

	address = normalizeAddress(s)
	if !addressPattern.MatchString(address) {
		return "", "", fmt.Errorf("invalid cell address %q in reference %q", s, string(r))
	}
	return sheet, address, nil
}

// Normalize returns the canonical spelling of the reference, or the input
// unchanged when it cannot be parsed.
func (r CellRef) Normalize() CellRef {
	sheet, address, err := r.Split()
	if err != nil {
		return r
	}
	return NewCellRef(sheet, address)
}

// Qualify attaches sheet to an unqualified reference.
func (r CellRef) Qualify(sheet string) CellRef {
	s, address, err := r.Split()
	if err != nil || s != "" {
		return r
	}
	return NewCellRef(sheet, address)
}

func (r CellRef) String() string { return string(r) }

func normalizeAddress(address string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(address), "$", ""))
}

// ColumnIndex converts column letters (A, Z, AA, ...) to a 1-based index.
func ColumnIndex(letters string) int {
	n := 0
	for _, r := range strings.ToUpper(letters) {
		n = n*26 + int(r-'A'+1)
	}
	return n
}

// ColumnLetters converts a 1-based column index to letters.
func ColumnLetters(index int) string {
	var out []byte
	for index > 0 {
		index--
		out = append([]byte{byte('A' + index%26)}, out...)
		index /= 26
	}
	return string(out)
}

// SplitAddress separates an address such as C12 into its column letters and row.
func SplitAddress(address string) (string, int, error) {
	address = normalizeAddress(address)
	if !addressPattern.MatchString(address) {
		return "", 0, fmt.Errorf("invalid cell address %q", address)
	}
	i := 0
	for i < len(address) && address[i] >= 'A' && address[i] <= 'Z' {
		i++
	}
	row := 0
	for _, r := range address[i:] {
		row = row*10 + int(r-'0')
	}
	return address[:i], row, nil
}
