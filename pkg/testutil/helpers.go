// Package testutil provides in-memory models for testing the what-if tools.
package testutil

import (
	"fmt"
	"math"

	"github.com/iwvelando/whatif/pkg/model"
)

// FuncModel is a scalar model whose derived cells are computed by Recalc.
// Writes and recalculations are counted so tests can assert side effects.
type FuncModel struct {
	Cells  map[model.CellRef]model.CellValue
	Recalc func(cells map[model.CellRef]model.CellValue) error

	Sets    int
	Recalcs int
	// FailSet and FailRecalc inject adapter failures.
	FailSet    error
	FailRecalc error
}

// NewFuncModel builds a FuncModel seeded with numeric cells.
func NewFuncModel(initial map[model.CellRef]float64, recalc func(cells map[model.CellRef]model.CellValue) error) *FuncModel {
	cells := make(map[model.CellRef]model.CellValue, len(initial))
	for ref, v := range initial {
		cells[ref] = model.Number(v)
	}
	m := &FuncModel{Cells: cells, Recalc: recalc}
	if recalc != nil {
		_ = recalc(cells)
	}
	return m
}

// Unary wires output = f(input) on top of NewFuncModel.
func Unary(input, output model.CellRef, start float64, f func(x float64) float64) *FuncModel {
	return NewFuncModel(map[model.CellRef]float64{input: start}, func(cells map[model.CellRef]model.CellValue) error {
		x, ok := cells[input].AsNumber()
		if !ok {
			return fmt.Errorf("input %s is not numeric", input)
		}
		cells[output] = model.Number(f(x))
		return nil
	})
}

func (m *FuncModel) Get(ref model.CellRef) (model.CellValue, error) {
	v, ok := m.Cells[ref]
	if !ok {
		return model.Blank(), nil
	}
	return v, nil
}

func (m *FuncModel) Set(ref model.CellRef, v model.CellValue) error {
	if m.FailSet != nil {
		return m.FailSet
	}
	m.Sets++
	m.Cells[ref] = v
	return nil
}

func (m *FuncModel) Recalculate() error {
	if m.FailRecalc != nil {
		return m.FailRecalc
	}
	m.Recalcs++
	if m.Recalc == nil {
		return nil
	}
	return m.Recalc(m.Cells)
}

// Number returns the numeric value of ref, or NaN when it is not numeric.
func (m *FuncModel) Number(ref model.CellRef) float64 {
	v, ok := m.Cells[ref].AsNumber()
	if !ok {
		return math.NaN()
	}
	return v
}

// SolverFuncModel is a SolverModel backed by plain functions of the
// variable vector.
type SolverFuncModel struct {
	Vars        []float64
	ObjectiveFn func(x []float64) float64
	Residuals   []func(x []float64) float64

	Writes  int
	Recalcs int
	// ObjectiveErr makes Objective fail once it is set.
	ObjectiveErr error
}

// NewSolverFuncModel copies start as the initial variable values.
func NewSolverFuncModel(start []float64, objective func(x []float64) float64, residuals ...func(x []float64) float64) *SolverFuncModel {
	return &SolverFuncModel{
		Vars:        append([]float64(nil), start...),
		ObjectiveFn: objective,
		Residuals:   residuals,
	}
}

func (s *SolverFuncModel) VariableCount() int   { return len(s.Vars) }
func (s *SolverFuncModel) ConstraintCount() int { return len(s.Residuals) }

func (s *SolverFuncModel) ReadVariables() ([]float64, error) {
	return append([]float64(nil), s.Vars...), nil
}

func (s *SolverFuncModel) WriteVariables(values []float64) error {
	if len(values) != len(s.Vars) {
		return fmt.Errorf("expected %d values, got %d", len(s.Vars), len(values))
	}
	s.Writes++
	copy(s.Vars, values)
	return nil
}

func (s *SolverFuncModel) Recalculate() error {
	s.Recalcs++
	return nil
}

func (s *SolverFuncModel) Objective() (float64, error) {
	if s.ObjectiveErr != nil {
		return 0, s.ObjectiveErr
	}
	return s.ObjectiveFn(s.Vars), nil
}

func (s *SolverFuncModel) ConstraintResidual(i int) (float64, error) {
	if i < 0 || i >= len(s.Residuals) {
		return 0, fmt.Errorf("constraint %d out of range", i)
	}
	return s.Residuals[i](s.Vars), nil
}
