package workbook

import (
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/iwvelando/whatif/pkg/model"
	"go.uber.org/zap"
)

type cellKey struct {
	sheet   *sheet
	address string
}

func (k cellKey) String() string { return string(model.NewCellRef(k.sheet.name, k.address)) }

// dependencies lists the cells a formula reads. References to unknown
// sheets are skipped; they evaluate to #REF!.
func (w *Workbook) dependencies(home *sheet, f *formula) []cellKey {
	var deps []cellKey
	for _, r := range f.refs {
		s := home
		if r.sheet != "" {
			if s = w.sheet(r.sheet); s == nil {
				continue
			}
		}
		addresses, err := r.addresses()
		if err != nil {
			continue
		}
		for _, a := range addresses {
			deps = append(deps, cellKey{sheet: s, address: a})
		}
	}
	return deps
}

// evaluationOrder sorts formula cells so each comes after the formulas it
// reads. Cells on or downstream of a cycle are returned separately.
func (w *Workbook) evaluationOrder() (ordered, cyclic []cellKey) {
	var keys []cellKey
	for _, s := range w.order {
		var addresses []string
		for address, c := range s.cells {
			if c.formula != nil {
				addresses = append(addresses, address)
			}
		}
		sort.Slice(addresses, func(i, j int) bool { return addressLess(addresses[i], addresses[j]) })
		for _, a := range addresses {
			keys = append(keys, cellKey{sheet: s, address: a})
		}
	}

	indegree := make(map[cellKey]int, len(keys))
	dependents := make(map[cellKey][]cellKey)
	for _, k := range keys {
		seen := make(map[cellKey]bool)
		for _, d := range w.dependencies(k.sheet, k.sheet.cells[k.address].formula) {
			if seen[d] {
				continue
			}
			seen[d] = true
			if c, ok := d.sheet.cells[d.address]; ok && c.formula != nil {
				indegree[k]++
				dependents[d] = append(dependents[d], k)
			}
		}
	}

	queue := make([]cellKey, 0, len(keys))
	for _, k := range keys {
		if indegree[k] == 0 {
			queue = append(queue, k)
		}
	}
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		ordered = append(ordered, k)
		for _, d := range dependents[k] {
			indegree[d]--
			if indegree[d] == 0 {
				queue = append(queue, d)
			}
		}
	}
	for _, k := range keys {
		if indegree[k] > 0 {
			cyclic = append(cyclic, k)
		}
	}
	return ordered, cyclic
}

// Recalculate evaluates every formula once in dependency order.
func (w *Workbook) Recalculate() error {
	ordered, cyclic := w.evaluationOrder()
	for _, k := range cyclic {
		k.sheet.cells[k.address].value = model.Text(ErrorCycle)
	}
	for _, k := range ordered {
		c := k.sheet.cells[k.address]
		c.value = w.evaluate(k.sheet, c.formula)
	}

	if len(cyclic) > 0 {
		names := make([]string, len(cyclic))
		for i, k := range cyclic {
			names[i] = k.String()
		}
		w.logger.Warn("circular references found",
			zap.String("op", "workbook.Recalculate"),
			zap.String("cells", strings.Join(names, ",")),
		)
	}
	w.logger.Debug("workbook recalculated",
		zap.String("op", "workbook.Recalculate"),
		zap.Int("formulas", len(ordered)+len(cyclic)),
	)
	return nil
}

func (w *Workbook) evaluate(home *sheet, f *formula) model.CellValue {
	if f.err != nil {
		return model.Text(ErrorValue)
	}
	env := make(map[string]interface{}, len(f.refs))
	for _, r := range f.refs {
		s := home
		if r.sheet != "" {
			if s = w.sheet(r.sheet); s == nil {
				return model.Text(ErrorRef)
			}
		}
		addresses, err := r.addresses()
		if err != nil {
			return model.Text(ErrorRef)
		}
		if !r.isRange() {
			env[r.ident] = w.operand(s.cells[addresses[0]])
			continue
		}
		items := make([]interface{}, len(addresses))
		for i, a := range addresses {
			items[i] = w.rangeItem(s.cells[a])
		}
		env[r.ident] = items
	}

	out, err := expr.Run(f.program, env)
	if err != nil {
		return model.Text(ErrorValue)
	}
	return result(out)
}

// operand coerces a single referenced cell: Bool to 1/0, Blank to 0 and
// numeric text to a number.
func (w *Workbook) operand(c *cell) interface{} {
	if c == nil {
		return 0.0
	}
	v := c.value
	switch v.Kind() {
	case model.KindNumber:
		n, _ := v.AsNumber()
		return n
	case model.KindBool:
		if b, _ := v.AsBool(); b {
			return 1.0
		}
		return 0.0
	case model.KindText:
		s, _ := v.AsText()
		if n, ok := w.format.parse(s); ok {
			return n
		}
		return s
	default:
		return 0.0
	}
}

// rangeItem coerces a cell inside a range. Blanks stay nil so aggregates
// skip them.
func (w *Workbook) rangeItem(c *cell) interface{} {
	if c == nil || c.value.IsBlank() {
		return nil
	}
	if b, ok := c.value.AsBool(); ok {
		return b
	}
	return w.operand(c)
}
