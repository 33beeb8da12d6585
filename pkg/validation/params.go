package validation

import (
	"math"

	"github.com/iwvelando/whatif/pkg/model"
)

// PositiveInt requires v > 0.
func PositiveInt(name string, v int) error {
	if v <= 0 {
		return model.InvalidParams("%s must be greater than 0, got %d", name, v)
	}
	return nil
}

// NonNegativeInt requires v >= 0.
func NonNegativeInt(name string, v int) error {
	if v < 0 {
		return model.InvalidParams("%s must not be negative, got %d", name, v)
	}
	return nil
}

// Finite requires v to be neither NaN nor infinite.
func Finite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return model.InvalidParams("%s must be finite, got %v", name, v)
	}
	return nil
}

// PositiveFinite requires a finite v > 0.
func PositiveFinite(name string, v float64) error {
	if err := Finite(name, v); err != nil {
		return err
	}
	if v <= 0 {
		return model.InvalidParams("%s must be greater than 0, got %v", name, v)
	}
	return nil
}

// NonNegativeFinite requires a finite v >= 0.
func NonNegativeFinite(name string, v float64) error {
	if err := Finite(name, v); err != nil {
		return err
	}
	if v < 0 {
		return model.InvalidParams("%s must not be negative, got %v", name, v)
	}
	return nil
}

// CellRequired requires a non-empty, parseable cell reference.
func CellRequired(name string, ref model.CellRef) error {
	if ref == "" {
		return model.InvalidParams("%s is required", name)
	}
	if _, _, err := ref.Split(); err != nil {
		return model.InvalidParams("%s: %v", name, err)
	}
	return nil
}

// UniqueCells rejects a list that names the same cell twice.
func UniqueCells(name string, refs []model.CellRef) error {
	seen := make(map[model.CellRef]struct{}, len(refs))
	for _, ref := range refs {
		key := ref.Normalize()
		if _, dup := seen[key]; dup {
			return model.InvalidParams("%s lists cell %s more than once", name, ref)
		}
		seen[key] = struct{}{}
	}
	return nil
}
