package model

// CellSolverModel adapts a scalar Model to SolverModel: decision variables,
// the objective and constraint residuals are all plain cells.
type CellSolverModel struct {
	model       Model
	variables   []CellRef
	objective   CellRef
	constraints []CellRef
}

// NewCellSolverModel validates the cell layout. Variable cells must be unique
// so that a write of one variable never clobbers another.
func NewCellSolverModel(m Model, variables []CellRef, objective CellRef, constraints []CellRef) (*CellSolverModel, error) {
	if m == nil {
		return nil, InvalidParams("model is required")
	}
	if len(variables) == 0 {
		return nil, InvalidParams("at least one variable cell is required")
	}
	if objective == "" {
		return nil, InvalidParams("objective cell is required")
	}

	seen := make(map[CellRef]struct{}, len(variables))
	for i, ref := range variables {
		if ref == "" {
			return nil, InvalidParams("variable cell %d is empty", i)
		}
		key := ref.Normalize()
		if _, dup := seen[key]; dup {
			return nil, InvalidParams("variable cell %s is listed more than once", ref)
		}
		seen[key] = struct{}{}
	}
	for i, ref := range constraints {
		if ref == "" {
			return nil, InvalidParams("constraint cell %d is empty", i)
		}
	}

	return &CellSolverModel{
		model:       m,
		variables:   append([]CellRef(nil), variables...),
		objective:   objective,
		constraints: append([]CellRef(nil), constraints...),
	}, nil
}

// VariableCells returns the decision variable cells in index order.
func (c *CellSolverModel) VariableCells() []CellRef {
	return append([]CellRef(nil), c.variables...)
}

func (c *CellSolverModel) VariableCount() int   { return len(c.variables) }
func (c *CellSolverModel) ConstraintCount() int { return len(c.constraints) }

func (c *CellSolverModel) ReadVariables() ([]float64, error) {
	out := make([]float64, len(c.variables))
	for i, ref := range c.variables {
		v, err := ReadNumber(c.model, ref)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (c *CellSolverModel) WriteVariables(values []float64) error {
	if len(values) != len(c.variables) {
		return InvalidParams("expected %d variable values, got %d", len(c.variables), len(values))
	}
	for i, ref := range c.variables {
		if err := WriteNumber(c.model, ref, values[i]); err != nil {
			return err
		}
	}
	return nil
}

func (c *CellSolverModel) Recalculate() error {
	return Recalculate(c.model)
}

func (c *CellSolverModel) Objective() (float64, error) {
	return ReadNumber(c.model, c.objective)
}

func (c *CellSolverModel) ConstraintResidual(i int) (float64, error) {
	if i < 0 || i >= len(c.constraints) {
		return 0, InvalidParams("constraint index %d out of range [0,%d)", i, len(c.constraints))
	}
	return ReadNumber(c.model, c.constraints[i])
}

// Changes reports the current value of every variable cell.
func (c *CellSolverModel) Changes() ([]CellChange, error) {
	out := make([]CellChange, 0, len(c.variables))
	for _, ref := range c.variables {
		v, err := c.model.Get(ref)
		if err != nil {
			return nil, ModelFailuref(err, "reading %s", ref)
		}
		out = append(out, ChangeFor(ref, v))
	}
	return out, nil
}
