package montecarlo

import (
	"math"

	"github.com/iwvelando/whatif/pkg/constants"
	"github.com/iwvelando/whatif/pkg/model"
	"gonum.org/v1/gonum/mat"
)

// ValidateCorrelation checks that matrix is a usable correlation matrix for
// inputs: square with one row per input, finite, symmetric, unit diagonal,
// entries in [-1, 1] and positive-definite. Only continuous distributions
// may be correlated.
func ValidateCorrelation(matrix [][]float64, inputs []Input) error {
	_, err := choleskyFactor(matrix, inputs)
	return err
}

// choleskyFactor validates matrix and returns its lower-triangular factor.
func choleskyFactor(matrix [][]float64, inputs []Input) (*mat.TriDense, error) {
	n := len(inputs)
	if len(matrix) != n {
		return nil, model.InvalidParams("correlation matrix has %d rows, expected %d (one per input)", len(matrix), n)
	}
	if n == 0 {
		return nil, model.InvalidParams("correlation matrix requires at least one input")
	}
	for i, row := range matrix {
		if len(row) != n {
			return nil, model.InvalidParams("correlation matrix row %d has %d entries, expected %d", i, len(row), n)
		}
	}

	tol := constants.CorrelationTolerance
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := matrix[i][j]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, model.InvalidParams("correlation entry [%d][%d] must be finite, got %v", i, j, v)
			}
			if v < -1 || v > 1 {
				return nil, model.InvalidParams("correlation entry [%d][%d] = %v is outside [-1, 1]", i, j, v)
			}
		}
		if math.Abs(matrix[i][i]-1) > tol {
			return nil, model.InvalidParams("correlation diagonal [%d][%d] must be 1, got %v", i, i, matrix[i][i])
		}
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if math.Abs(matrix[i][j]-matrix[j][i]) > tol {
				return nil, model.InvalidParams("correlation matrix is not symmetric at [%d][%d]", i, j)
			}
		}
	}
	for i, in := range inputs {
		if in.Distribution != nil && !in.Distribution.correlatable() {
			return nil, model.InvalidParams("input %d (%s) uses a %s distribution, which cannot be correlated", i, in.Cell, in.Distribution.Name())
		}
	}

	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, (matrix[i][j]+matrix[j][i])/2)
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, model.InvalidParams("correlation matrix is not positive-definite")
	}
	var lower mat.TriDense
	chol.LTo(&lower)
	return &lower, nil
}
