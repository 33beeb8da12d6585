package mathutil

import (
	"math"
	"testing"
)

func TestIsFinite(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected bool
	}{
		{"Zero", 0, true},
		{"Large", 1e308, true},
		{"NaN", math.NaN(), false},
		{"Positive infinity", math.Inf(1), false},
		{"Negative infinity", math.Inf(-1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFinite(tt.input); got != tt.expected {
				t.Errorf("IsFinite(%v) = %v, expected %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestAllFinite(t *testing.T) {
	if !AllFinite(nil) {
		t.Errorf("AllFinite(nil) should be true")
	}
	if !AllFinite([]float64{1, -2, 3.5}) {
		t.Errorf("AllFinite of finite values should be true")
	}
	if AllFinite([]float64{1, math.NaN()}) {
		t.Errorf("AllFinite with NaN should be false")
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name      string
		v, lo, hi float64
		expected  float64
	}{
		{"Inside", 5, 0, 10, 5},
		{"Below", -1, 0, 10, 0},
		{"Above", 11, 0, 10, 10},
		{"Open upper", 1e9, 0, math.Inf(1), 1e9},
		{"Open lower", -1e9, math.Inf(-1), 0, -1e9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clamp(tt.v, tt.lo, tt.hi); got != tt.expected {
				t.Errorf("Clamp(%v, %v, %v) = %v, expected %v", tt.v, tt.lo, tt.hi, got, tt.expected)
			}
		})
	}
}

func TestRoundTo(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		decimals int
		expected float64
	}{
		{"Two decimals", 1.235, 2, 1.24},
		{"Zero decimals", 2.5, 0, 3},
		{"Negative", -1.234, 2, -1.23},
		{"Four decimals", 3.14159, 4, 3.1416},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RoundTo(tt.input, tt.decimals); math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("RoundTo(%v, %d) = %v, expected %v", tt.input, tt.decimals, got, tt.expected)
			}
		})
	}

	if !math.IsNaN(RoundTo(math.NaN(), 2)) {
		t.Errorf("RoundTo(NaN) should stay NaN")
	}
}

func TestWithinTolerance(t *testing.T) {
	if !WithinTolerance(1.0, 1.05, 0.1) {
		t.Errorf("1.0 and 1.05 should be within 0.1")
	}
	if WithinTolerance(1.0, 1.2, 0.1) {
		t.Errorf("1.0 and 1.2 should not be within 0.1")
	}
}

func TestMinMax(t *testing.T) {
	if Min(1, 2) != 1 || Min(-3, -4) != -4 {
		t.Errorf("Min returned unexpected values")
	}
	if Max(1, 2) != 2 || Max(-3, -4) != -3 {
		t.Errorf("Max returned unexpected values")
	}
}

func TestMaxAbs(t *testing.T) {
	if got := MaxAbs([]float64{1, -7, 3}); got != 7 {
		t.Errorf("MaxAbs = %v, expected 7", got)
	}
	if got := MaxAbs(nil); got != 0 {
		t.Errorf("MaxAbs(nil) = %v, expected 0", got)
	}
}

func TestIsIntegral(t *testing.T) {
	if !IsIntegral(3.0000000001, 1e-6) {
		t.Errorf("3.0000000001 should be integral within 1e-6")
	}
	if IsIntegral(3.4, 1e-6) {
		t.Errorf("3.4 should not be integral")
	}
}
