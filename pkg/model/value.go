// Package model defines the scalar cell vocabulary shared by every what-if
// tool and the capability interfaces a host calculation engine implements.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind identifies which variant a CellValue holds.
type Kind int

const (
	KindBlank Kind = iota
	KindNumber
	KindText
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindBool:
		return "bool"
	default:
		return "blank"
	}
}

// CellValue is a scalar cell value: a number, a text, a boolean or blank.
// The zero value is Blank.
type CellValue struct {
	kind Kind
	num  float64
	text string
	flag bool
}

// Number returns a numeric cell value.
func Number(v float64) CellValue { return CellValue{kind: KindNumber, num: v} }

// Text returns a text cell value.
func Text(s string) CellValue { return CellValue{kind: KindText, text: s} }

// Bool returns a boolean cell value.
func Bool(b bool) CellValue { return CellValue{kind: KindBool, flag: b} }

// Blank returns an empty cell value.
func Blank() CellValue { return CellValue{} }

// Kind reports the variant held by v.
func (v CellValue) Kind() Kind { return v.kind }

// IsBlank reports whether v is Blank.
func (v CellValue) IsBlank() bool { return v.kind == KindBlank }

// AsNumber returns the numeric payload. The second result is false for every
// variant other than Number; no coercion is applied here.
func (v CellValue) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// AsText returns the text payload of a Text value.
func (v CellValue) AsText() (string, bool) {
	if v.kind != KindText {
		return "", false
	}
	return v.text, true
}

// AsBool returns the payload of a Bool value.
func (v CellValue) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.flag, true
}

// Equal reports whether two values hold the same variant and payload.
// NaN numbers compare equal to each other.
func (v CellValue) Equal(o CellValue) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num || (math.IsNaN(v.num) && math.IsNaN(o.num))
	case KindText:
		return v.text == o.text
	case KindBool:
		return v.flag == o.flag
	default:
		return true
	}
}

func (v CellValue) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindText:
		return v.text
	case KindBool:
		if v.flag {
			return "TRUE"
		}
		return "FALSE"
	default:
		return ""
	}
}

// GoString renders the variant explicitly, which keeps test failure output readable.
func (v CellValue) GoString() string {
	switch v.kind {
	case KindNumber:
		return fmt.Sprintf("Number(%v)", v.num)
	case KindText:
		return fmt.Sprintf("Text(%q)", v.text)
	case KindBool:
		return fmt.Sprintf("Bool(%t)", v.flag)
	default:
		return "Blank"
	}
}

// MarshalJSON encodes numbers, strings and booleans natively and Blank as null.
// Non-finite numbers have no JSON form and are encoded as strings.
func (v CellValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return json.Marshal(strconv.FormatFloat(v.num, 'g', -1, 64))
		}
		return json.Marshal(v.num)
	case KindText:
		return json.Marshal(v.text)
	case KindBool:
		return json.Marshal(v.flag)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a JSON scalar. Arrays and objects are rejected.
func (v *CellValue) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := FromInterface(raw)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// FromInterface converts a decoded YAML or JSON scalar into a CellValue.
func FromInterface(raw interface{}) (CellValue, error) {
	switch t := raw.(type) {
	case nil:
		return Blank(), nil
	case CellValue:
		return t, nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int8:
		return Number(float64(t)), nil
	case int16:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint:
		return Number(float64(t)), nil
	case uint8:
		return Number(float64(t)), nil
	case uint16:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Blank(), fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return Number(f), nil
	case string:
		return Text(t), nil
	case bool:
		return Bool(t), nil
	default:
		return Blank(), fmt.Errorf("unsupported cell value of type %T: only scalars are allowed", raw)
	}
}
