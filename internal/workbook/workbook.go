// Package workbook is an in-memory, multi-sheet calculation model with
// expression formulas and manual recalculation. It implements model.Model
// and serves as the reference host for the what-if tools.
package workbook

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/iwvelando/whatif/pkg/constants"
	"github.com/iwvelando/whatif/pkg/model"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

var (
	// ErrUnknownSheet is returned when a reference names a sheet the
	// workbook does not have.
	ErrUnknownSheet = errors.New("workbook: unknown sheet")
	// ErrInvalidReference is returned for references that do not parse.
	ErrInvalidReference = errors.New("workbook: invalid reference")
)

// SheetSpec declares one sheet. Cell values are literals, or formulas when
// they are strings starting with "=".
type SheetSpec struct {
	Name  string                 `json:"name" yaml:"name" mapstructure:"name"`
	Cells map[string]interface{} `json:"cells" yaml:"cells" mapstructure:"cells"`
}

// Spec declares a workbook. The first sheet is the default sheet for
// unqualified references.
type Spec struct {
	Locale string      `json:"locale,omitempty" yaml:"locale" mapstructure:"locale"`
	Sheets []SheetSpec `json:"sheets" yaml:"sheets" mapstructure:"sheets"`
}

type cell struct {
	value   model.CellValue
	formula *formula
}

type sheet struct {
	name  string
	cells map[string]*cell
}

// Workbook is not safe for concurrent use.
type Workbook struct {
	logger *zap.Logger
	format numberFormat
	sheets map[string]*sheet
	order  []*sheet
}

// New builds a workbook from spec and calculates it once.
func New(logger *zap.Logger, spec Spec) (*Workbook, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tag, err := ParseLocale(spec.Locale)
	if err != nil {
		return nil, fmt.Errorf("invalid locale %q: %w", spec.Locale, err)
	}

	w := &Workbook{
		logger: logger,
		format: newNumberFormat(tag),
		sheets: make(map[string]*sheet),
	}

	sheets := spec.Sheets
	if len(sheets) == 0 {
		sheets = []SheetSpec{{Name: constants.DefaultSheetName}}
	}
	for _, ss := range sheets {
		if err := w.AddSheet(ss.Name); err != nil {
			return nil, err
		}
	}
	for _, ss := range sheets {
		addresses := make([]string, 0, len(ss.Cells))
		for address := range ss.Cells {
			addresses = append(addresses, address)
		}
		sort.Strings(addresses)
		for _, address := range addresses {
			ref := model.NewCellRef(ss.Name, address)
			if err := w.SetInput(ref, ss.Cells[address]); err != nil {
				return nil, fmt.Errorf("sheet %q cell %s: %w", ss.Name, address, err)
			}
		}
	}

	logger.Debug("workbook created",
		zap.String("op", "workbook.New"),
		zap.Int("sheets", len(w.order)),
		zap.String("locale", tag.String()),
	)
	if err := w.Recalculate(); err != nil {
		return nil, err
	}
	return w, nil
}

// AddSheet appends an empty sheet. Names are unique ignoring case.
func (w *Workbook) AddSheet(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("sheet name must not be empty")
	}
	if strings.Contains(name, "!") {
		return fmt.Errorf("sheet name %q must not contain '!'", name)
	}
	key := strings.ToLower(name)
	if _, exists := w.sheets[key]; exists {
		return fmt.Errorf("duplicate sheet name %q", name)
	}
	s := &sheet{name: name, cells: make(map[string]*cell)}
	w.sheets[key] = s
	w.order = append(w.order, s)
	return nil
}

// Sheets lists sheet names in declaration order.
func (w *Workbook) Sheets() []string {
	out := make([]string, len(w.order))
	for i, s := range w.order {
		out[i] = s.name
	}
	return out
}

// Locale returns the locale used to read numeric text.
func (w *Workbook) Locale() language.Tag { return w.format.tag }

func (w *Workbook) sheet(name string) *sheet {
	return w.sheets[strings.ToLower(strings.TrimSpace(name))]
}

// resolve finds the sheet and address for ref. Unqualified references use
// the first sheet.
func (w *Workbook) resolve(ref model.CellRef) (*sheet, string, error) {
	name, address, err := ref.Split()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	if name == "" {
		return w.order[0], address, nil
	}
	s := w.sheet(name)
	if s == nil {
		return nil, "", fmt.Errorf("%w %q", ErrUnknownSheet, name)
	}
	return s, address, nil
}

// Get returns the current value of ref. Empty cells are Blank.
func (w *Workbook) Get(ref model.CellRef) (model.CellValue, error) {
	s, address, err := w.resolve(ref)
	if err != nil {
		return model.Blank(), err
	}
	if c, ok := s.cells[address]; ok {
		return c.value, nil
	}
	return model.Blank(), nil
}

// Set stores a literal, replacing any formula. Text that reads as a number
// in the workbook locale is stored as a Number. Dependent formulas are not
// updated until Recalculate.
func (w *Workbook) Set(ref model.CellRef, value model.CellValue) error {
	s, address, err := w.resolve(ref)
	if err != nil {
		return err
	}
	if text, ok := value.AsText(); ok {
		if n, ok := w.format.parse(text); ok {
			value = model.Number(n)
		}
	}
	s.cells[address] = &cell{value: value}
	return nil
}

// SetFormula stores a formula. The leading "=" is optional. The cell keeps
// its previous value until Recalculate.
func (w *Workbook) SetFormula(ref model.CellRef, text string) error {
	s, address, err := w.resolve(ref)
	if err != nil {
		return err
	}
	c, ok := s.cells[address]
	if !ok {
		c = &cell{}
		s.cells[address] = c
	}
	if !strings.HasPrefix(text, "=") {
		text = "=" + text
	}
	c.formula = compileFormula(text)
	return nil
}

// Formula returns the formula text of ref, if it holds one.
func (w *Workbook) Formula(ref model.CellRef) (string, bool, error) {
	s, address, err := w.resolve(ref)
	if err != nil {
		return "", false, err
	}
	if c, ok := s.cells[address]; ok && c.formula != nil {
		return c.formula.source, true, nil
	}
	return "", false, nil
}

// SetInput stores a decoded input value: strings starting with "=" become
// formulas, anything else is converted with model.FromInterface and Set.
func (w *Workbook) SetInput(ref model.CellRef, raw interface{}) error {
	if text, ok := raw.(string); ok && strings.HasPrefix(text, "=") {
		return w.SetFormula(ref, text)
	}
	v, err := model.FromInterface(raw)
	if err != nil {
		return err
	}
	return w.Set(ref, v)
}

// Snapshot returns every stored cell, ordered by sheet, row and column.
func (w *Workbook) Snapshot() []model.CellChange {
	var out []model.CellChange
	for _, s := range w.order {
		addresses := make([]string, 0, len(s.cells))
		for address := range s.cells {
			addresses = append(addresses, address)
		}
		sort.Slice(addresses, func(i, j int) bool { return addressLess(addresses[i], addresses[j]) })
		for _, address := range addresses {
			out = append(out, model.CellChange{Sheet: s.name, Address: address, Value: s.cells[address].value})
		}
	}
	return out
}

func addressLess(a, b string) bool {
	ca, ra, errA := model.SplitAddress(a)
	cb, rb, errB := model.SplitAddress(b)
	if errA != nil || errB != nil {
		return a < b
	}
	if ra != rb {
		return ra < rb
	}
	return model.ColumnIndex(ca) < model.ColumnIndex(cb)
}
