package model

// Model is the scalar capability every what-if tool drives. Adapters apply
// the host engine's own coercion rules and must never hand back arrays or
// error values; those become a degraded scalar or a returned error.
type Model interface {
	Get(ref CellRef) (CellValue, error)
	Set(ref CellRef, value CellValue) error
	Recalculate() error
}

// SolverModel is the richer capability used only by the solver.
type SolverModel interface {
	VariableCount() int
	ConstraintCount() int
	ReadVariables() ([]float64, error)
	WriteVariables(values []float64) error
	Recalculate() error
	Objective() (float64, error)
	ConstraintResidual(i int) (float64, error)
}

// CellChange is one final cell delta reported back to a host binding.
type CellChange struct {
	Sheet   string    `json:"sheet"`
	Address string    `json:"address"`
	Value   CellValue `json:"value"`
}

// ChangeFor builds the CellChange for ref. Unparseable references are
// reported verbatim as the address.
func ChangeFor(ref CellRef, value CellValue) CellChange {
	sheet, address, err := ref.Split()
	if err != nil {
		return CellChange{Address: string(ref), Value: value}
	}
	return CellChange{Sheet: sheet, Address: address, Value: value}
}

// ReadNumber reads ref and requires a Number. Adapter failures are wrapped as
// Model errors.
func ReadNumber(m Model, ref CellRef) (float64, error) {
	v, err := m.Get(ref)
	if err != nil {
		return 0, ModelFailuref(err, "reading %s", ref)
	}
	n, ok := v.AsNumber()
	if !ok {
		return 0, NonNumeric(ref, v)
	}
	return n, nil
}

// WriteNumber sets ref to a Number, wrapping adapter failures.
func WriteNumber(m Model, ref CellRef, value float64) error {
	if err := m.Set(ref, Number(value)); err != nil {
		return ModelFailuref(err, "writing %s", ref)
	}
	return nil
}

// Recalculate triggers a recalculation, wrapping adapter failures.
func Recalculate(m interface{ Recalculate() error }) error {
	if err := m.Recalculate(); err != nil {
		return ModelFailuref(err, "recalculating")
	}
	return nil
}
