package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies what-if failures so hosts can react without parsing
// messages.
type ErrorKind int

const (
	// KindInvalidParams marks caller input that violates a documented
	// precondition. It is always reported before the model is touched.
	KindInvalidParams ErrorKind = iota + 1
	// KindNonNumericCell marks a cell that had to be numeric but was not.
	KindNonNumericCell
	// KindModel marks a failure inside the host model adapter.
	KindModel
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidParams:
		return "InvalidParams"
	case KindNonNumericCell:
		return "NonNumericCell"
	case KindModel:
		return "Model"
	default:
		return "Unknown"
	}
}

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrInvalidParams  = errors.New("whatif: invalid parameters")
	ErrNonNumericCell = errors.New("whatif: non-numeric cell")
	ErrModel          = errors.New("whatif: model failure")
)

// Error is the single structured error returned by every what-if tool.
type Error struct {
	Kind    ErrorKind
	Message string
	// Cell and Value are set for KindNonNumericCell.
	Cell  CellRef
	Value CellValue
	// Err is the adapter failure for KindModel.
	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNonNumericCell:
		return fmt.Sprintf("cell %s is not numeric (found %s %q)", e.Cell, e.Value.Kind(), e.Value.String())
	case KindModel:
		if e.Message != "" && e.Err != nil {
			return fmt.Sprintf("model failure: %s: %v", e.Message, e.Err)
		}
		if e.Err != nil {
			return fmt.Sprintf("model failure: %v", e.Err)
		}
		return "model failure: " + e.Message
	default:
		return "invalid parameters: " + e.Message
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the package sentinels by kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidParams:
		return e.Kind == KindInvalidParams
	case ErrNonNumericCell:
		return e.Kind == KindNonNumericCell
	case ErrModel:
		return e.Kind == KindModel
	}
	return false
}

// InvalidParams builds a KindInvalidParams error.
func InvalidParams(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidParams, Message: fmt.Sprintf(format, args...)}
}

// NonNumeric builds a KindNonNumericCell error for cell holding value.
func NonNumeric(cell CellRef, value CellValue) error {
	return &Error{Kind: KindNonNumericCell, Cell: cell, Value: value}
}

// ModelFailure wraps an adapter error. Errors that already carry a kind are
// returned unchanged.
func ModelFailure(err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Kind: KindModel, Err: err}
}

// ModelFailuref wraps an adapter error with context.
func ModelFailuref(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Kind: KindModel, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of a what-if error.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// WithContext prefixes the message of a what-if error, keeping its kind.
// Other errors are wrapped with fmt.Errorf.
func WithContext(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	prefix := fmt.Sprintf(format, args...)
	var e *Error
	if errors.As(err, &e) && e.Kind == KindInvalidParams {
		return &Error{Kind: e.Kind, Message: prefix + ": " + e.Message}
	}
	return fmt.Errorf("%s: %w", prefix, err)
}
