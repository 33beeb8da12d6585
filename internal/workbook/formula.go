package workbook

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/iwvelando/whatif/pkg/mathutil"
	"github.com/iwvelando/whatif/pkg/model"
)

// Error texts stored in cells whose formula could not produce a value.
const (
	ErrorValue = "#VALUE!"
	ErrorNum   = "#NUM!"
	ErrorCycle = "#CYCLE!"
	ErrorRef   = "#REF!"
)

// maxRangeCells bounds the expansion of a single range reference.
const maxRangeCells = 100000

// IsErrorText reports whether v holds one of the formula error texts.
func IsErrorText(v model.CellValue) bool {
	s, ok := v.AsText()
	if !ok {
		return false
	}
	switch s {
	case ErrorValue, ErrorNum, ErrorCycle, ErrorRef:
		return true
	}
	return false
}

// reference is one cell or range occurrence inside a formula. An empty
// sheet means the formula's own sheet.
type reference struct {
	ident string
	sheet string
	from  string
	to    string
}

func (r reference) isRange() bool { return r.to != "" }

// addresses expands the reference into its cell addresses, row by row.
func (r reference) addresses() ([]string, error) {
	if !r.isRange() {
		return []string{r.from}, nil
	}
	c1, r1, err := model.SplitAddress(r.from)
	if err != nil {
		return nil, err
	}
	c2, r2, err := model.SplitAddress(r.to)
	if err != nil {
		return nil, err
	}
	colLo, colHi := model.ColumnIndex(c1), model.ColumnIndex(c2)
	if colLo > colHi {
		colLo, colHi = colHi, colLo
	}
	if r1 > r2 {
		r1, r2 = r2, r1
	}
	if (colHi-colLo+1)*(r2-r1+1) > maxRangeCells {
		return nil, fmt.Errorf("range %s:%s exceeds %d cells", r.from, r.to, maxRangeCells)
	}
	out := make([]string, 0, (colHi-colLo+1)*(r2-r1+1))
	for row := r1; row <= r2; row++ {
		for col := colLo; col <= colHi; col++ {
			out = append(out, model.ColumnLetters(col)+strconv.Itoa(row))
		}
	}
	return out, nil
}

// formula is a parsed and compiled cell formula.
type formula struct {
	source  string
	refs    []reference
	program *vm.Program
	err     error
}

func compileFormula(source string) *formula {
	f := &formula{source: source}
	code, refs, err := translate(strings.TrimPrefix(source, "="))
	if err != nil {
		f.err = err
		return f
	}
	f.refs = refs
	f.program, f.err = expr.Compile(code, functions...)
	return f
}

func isLetter(c byte) bool { return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }

func isWordByte(c byte) bool {
	return isLetter(c) || isDigit(c) || c == '_' || c == '.' || c == '$'
}

func isAddress(word string) bool {
	_, _, err := model.SplitAddress(word)
	return err == nil && !strings.Contains(word, ".")
}

// translate rewrites spreadsheet formula syntax into an expr program. Cell
// and range references become placeholder identifiers listed in refs.
func translate(src string) (string, []reference, error) {
	var b strings.Builder
	var refs []reference

	addRef := func(sheet string, pos int) (int, error) {
		r, next, err := readRange(src, pos)
		if err != nil {
			return 0, err
		}
		r.sheet = sheet
		r.ident = "__r" + strconv.Itoa(len(refs))
		refs = append(refs, r)
		b.WriteString(r.ident)
		return next, nil
	}

	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == '"':
			lit, next, err := readString(src, i)
			if err != nil {
				return "", nil, err
			}
			b.WriteString(strconv.Quote(lit))
			i = next
		case c == '\'':
			name, next, err := readQuotedSheet(src, i)
			if err != nil {
				return "", nil, err
			}
			if i, err = addRef(name, next); err != nil {
				return "", nil, err
			}
		case isLetter(c) || c == '_' || c == '$':
			j := i
			for j < len(src) && isWordByte(src[j]) {
				j++
			}
			word := src[i:j]
			k := j
			for k < len(src) && src[k] == ' ' {
				k++
			}
			var err error
			switch {
			case j < len(src) && src[j] == '!':
				if i, err = addRef(word, j+1); err != nil {
					return "", nil, err
				}
			case k < len(src) && src[k] == '(':
				b.WriteString(strings.ToUpper(word))
				i = j
			case isAddress(word):
				if i, err = addRef("", i); err != nil {
					return "", nil, err
				}
			default:
				switch strings.ToUpper(word) {
				case "TRUE":
					b.WriteString("true")
				case "FALSE":
					b.WriteString("false")
				default:
					return "", nil, fmt.Errorf("unknown name %q", word)
				}
				i = j
			}
		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			j := i
			for j < len(src) && (isDigit(src[j]) || src[j] == '.') {
				j++
			}
			if j < len(src) && (src[j] == 'e' || src[j] == 'E') {
				k := j + 1
				if k < len(src) && (src[k] == '+' || src[k] == '-') {
					k++
				}
				if k < len(src) && isDigit(src[k]) {
					for k < len(src) && isDigit(src[k]) {
						k++
					}
					j = k
				}
			}
			b.WriteString(src[i:j])
			i = j
		case c == '<' && i+1 < len(src) && src[i+1] == '>':
			b.WriteString("!=")
			i += 2
		case (c == '<' || c == '>' || c == '!' || c == '=') && i+1 < len(src) && src[i+1] == '=':
			b.WriteString(src[i : i+2])
			i += 2
		case c == '=':
			b.WriteString("==")
			i++
		case c == '^':
			b.WriteString("**")
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), refs, nil
}

// readString reads a double-quoted literal starting at src[i]. A doubled
// quote stands for one quote character.
func readString(src string, i int) (string, int, error) {
	var lit strings.Builder
	j := i + 1
	for j < len(src) {
		if src[j] == '"' {
			if j+1 < len(src) && src[j+1] == '"' {
				lit.WriteByte('"')
				j += 2
				continue
			}
			return lit.String(), j + 1, nil
		}
		lit.WriteByte(src[j])
		j++
	}
	return "", 0, errors.New("unterminated string literal")
}

// readQuotedSheet reads 'Sheet Name'! starting at src[i] and returns the
// position after the exclamation mark.
func readQuotedSheet(src string, i int) (string, int, error) {
	var name strings.Builder
	j := i + 1
	for j < len(src) {
		if src[j] == '\'' {
			if j+1 < len(src) && src[j+1] == '\'' {
				name.WriteByte('\'')
				j += 2
				continue
			}
			if j+1 >= len(src) || src[j+1] != '!' {
				return "", 0, errors.New("quoted sheet name must be followed by '!'")
			}
			return name.String(), j + 2, nil
		}
		name.WriteByte(src[j])
		j++
	}
	return "", 0, errors.New("unterminated sheet name")
}

func readAddress(src string, i int) (string, int, error) {
	j := i
	if j < len(src) && src[j] == '$' {
		j++
	}
	for j < len(src) && isLetter(src[j]) {
		j++
	}
	if j < len(src) && src[j] == '$' {
		j++
	}
	for j < len(src) && isDigit(src[j]) {
		j++
	}
	word := src[i:j]
	if !isAddress(word) {
		return "", 0, fmt.Errorf("invalid cell address %q", word)
	}
	return strings.ToUpper(strings.ReplaceAll(word, "$", "")), j, nil
}

func readRange(src string, i int) (reference, int, error) {
	from, j, err := readAddress(src, i)
	if err != nil {
		return reference{}, 0, err
	}
	r := reference{from: from}
	if j < len(src) && src[j] == ':' {
		to, k, err := readAddress(src, j+1)
		if err != nil {
			return reference{}, 0, err
		}
		r.to = to
		j = k
	}
	return r, j, nil
}

// result converts an expr result into a cell value.
func result(out interface{}) model.CellValue {
	switch v := out.(type) {
	case nil:
		return model.Blank()
	case bool:
		return model.Bool(v)
	case string:
		return model.Text(v)
	case float64:
		if !mathutil.IsFinite(v) {
			return model.Text(ErrorNum)
		}
		return model.Number(v)
	case int, int64, int32, float32, uint, uint64:
		n, _ := model.FromInterface(v)
		return n
	default:
		return model.Text(ErrorValue)
	}
}

var functions = []expr.Option{
	expr.Function("SUM", aggregate(func(xs []float64) (float64, error) {
		total := 0.0
		for _, x := range xs {
			total += x
		}
		return total, nil
	})),
	expr.Function("AVERAGE", aggregate(func(xs []float64) (float64, error) {
		if len(xs) == 0 {
			return 0, errors.New("AVERAGE of no numbers")
		}
		total := 0.0
		for _, x := range xs {
			total += x
		}
		return total / float64(len(xs)), nil
	})),
	expr.Function("MIN", aggregate(func(xs []float64) (float64, error) {
		if len(xs) == 0 {
			return 0, nil
		}
		m := xs[0]
		for _, x := range xs[1:] {
			m = mathutil.Min(m, x)
		}
		return m, nil
	})),
	expr.Function("MAX", aggregate(func(xs []float64) (float64, error) {
		if len(xs) == 0 {
			return 0, nil
		}
		m := xs[0]
		for _, x := range xs[1:] {
			m = mathutil.Max(m, x)
		}
		return m, nil
	})),
	expr.Function("ABS", unary(math.Abs)),
	expr.Function("SQRT", unary(math.Sqrt)),
	expr.Function("EXP", unary(math.Exp)),
	expr.Function("LN", unary(math.Log)),
	expr.Function("POWER", func(params ...interface{}) (interface{}, error) {
		if len(params) != 2 {
			return nil, errors.New("POWER takes 2 arguments")
		}
		base, err := scalar(params[0])
		if err != nil {
			return nil, err
		}
		exp, err := scalar(params[1])
		if err != nil {
			return nil, err
		}
		return math.Pow(base, exp), nil
	}),
	expr.Function("ROUND", func(params ...interface{}) (interface{}, error) {
		if len(params) < 1 || len(params) > 2 {
			return nil, errors.New("ROUND takes 1 or 2 arguments")
		}
		x, err := scalar(params[0])
		if err != nil {
			return nil, err
		}
		digits := 0.0
		if len(params) == 2 {
			if digits, err = scalar(params[1]); err != nil {
				return nil, err
			}
		}
		return mathutil.RoundTo(x, int(digits)), nil
	}),
	expr.Function("IF", func(params ...interface{}) (interface{}, error) {
		if len(params) < 2 || len(params) > 3 {
			return nil, errors.New("IF takes 2 or 3 arguments")
		}
		cond, err := truthy(params[0])
		if err != nil {
			return nil, err
		}
		if cond {
			return params[1], nil
		}
		if len(params) == 3 {
			return params[2], nil
		}
		return false, nil
	}),
}

// scalar coerces one function argument to a number.
func scalar(v interface{}) (float64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("%v is not a number", v)
	}
}

func truthy(v interface{}) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	n, err := scalar(v)
	return n != 0, err
}

func unary(fn func(float64) float64) func(params ...interface{}) (interface{}, error) {
	return func(params ...interface{}) (interface{}, error) {
		if len(params) != 1 {
			return nil, errors.New("function takes 1 argument")
		}
		x, err := scalar(params[0])
		if err != nil {
			return nil, err
		}
		return fn(x), nil
	}
}

// aggregate flattens range arguments, skipping their non-numeric entries,
// while scalar arguments must be numeric.
func aggregate(fn func([]float64) (float64, error)) func(params ...interface{}) (interface{}, error) {
	return func(params ...interface{}) (interface{}, error) {
		var xs []float64
		for _, p := range params {
			if list, ok := p.([]interface{}); ok {
				for _, item := range list {
					switch n := item.(type) {
					case float64:
						xs = append(xs, n)
					case int:
						xs = append(xs, float64(n))
					}
				}
				continue
			}
			n, err := scalar(p)
			if err != nil {
				return nil, err
			}
			xs = append(xs, n)
		}
		return fn(xs)
	}
}
