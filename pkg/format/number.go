// Package format renders numbers and cell values for display.
package format

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/iwvelando/whatif/pkg/mathutil"
	"github.com/iwvelando/whatif/pkg/model"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Printer formats numbers with the grouping and decimal marks of one locale.
type Printer struct {
	p         *message.Printer
	precision int
}

// NewPrinter returns a printer for tag that rounds to at most precision
// decimals. Trailing zeros are dropped.
func NewPrinter(tag language.Tag, precision int) *Printer {
	if precision < 0 {
		precision = 0
	}
	return &Printer{p: message.NewPrinter(tag), precision: precision}
}

// Number returns v with thousands separators (e.g., "-1,234.5").
// Non-finite values are printed as Go does.
func (p *Printer) Number(v float64) string {
	if !mathutil.IsFinite(v) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	rounded := mathutil.RoundTo(v, p.precision)
	if rounded == 0 {
		rounded = math.Abs(rounded)
	}
	plain := strconv.FormatFloat(rounded, 'f', -1, 64)
	digits := 0
	if i := strings.IndexByte(plain, '.'); i >= 0 {
		digits = len(plain) - i - 1
	}
	if digits > p.precision {
		digits = p.precision
	}
	return p.p.Sprintf(fmt.Sprintf("%%.%df", digits), rounded)
}

// Value formats numeric cell values with Number and everything else as the
// value's own text.
func (p *Printer) Value(v model.CellValue) string {
	if n, ok := v.AsNumber(); ok {
		return p.Number(n)
	}
	return v.String()
}
