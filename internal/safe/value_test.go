package safe

import (
	"math"
	"testing"
)

func TestSafeUint64ToInt64(t *testing.T) {
	tests := []struct {
		name            string
		input           uint64
		expectedValue   int64
		expectedClamped bool
	}{
		{
			name:            "zero value",
			input:           0,
			expectedValue:   0,
			expectedClamped: false,
		},
		{
			name:            "small positive value",
			input:           12345,
			expectedValue:   12345,
			expectedClamped: false,
		},
		{
			name:            "max int64 value",
			input:           math.MaxInt64,
			expectedValue:   math.MaxInt64,
			expectedClamped: false,
		},
		{
			name:            "max int64 plus one (overflow)",
			input:           math.MaxInt64 + 1,
			expectedValue:   math.MaxInt64,
			expectedClamped: true,
		},
		{
			name:            "max uint64 value (overflow)",
			input:           math.MaxUint64,
			expectedValue:   math.MaxInt64,
			expectedClamped: true,
		},
		{
			name:            "large value below max int64",
			input:           math.MaxInt64 - 1000,
			expectedValue:   math.MaxInt64 - 1000,
			expectedClamped: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, clamped := Uint64ToInt64(tt.input)
			if value != tt.expectedValue {
				t.Errorf("Uint64ToInt64(%d) value = %d, expected %d", tt.input, value, tt.expectedValue)
			}
			if clamped != tt.expectedClamped {
				t.Errorf("Uint64ToInt64(%d) clamped = %v, expected %v", tt.input, clamped, tt.expectedClamped)
			}
		})
	}
}

func TestUint64ToUint32(t *testing.T) {
	tests := []struct {
		name    string
		input   uint64
		want    uint32
		clamped bool
	}{
		{"zero", 0, 0, false},
		{"within range", 4096, 4096, false},
		{"max uint32", math.MaxUint32, math.MaxUint32, false},
		{"overflow", math.MaxUint32 + 1, math.MaxUint32, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, clamped := Uint64ToUint32(tt.input)
			if got != tt.want || clamped != tt.clamped {
				t.Errorf("Uint64ToUint32(%d) = (%d, %v), want (%d, %v)", tt.input, got, clamped, tt.want, tt.clamped)
			}
		})
	}
}

func TestInt64ToUint64(t *testing.T) {
	tests := []struct {
		name    string
		input   int64
		want    uint64
		clamped bool
	}{
		{"zero", 0, 0, false},
		{"positive", 123, 123, false},
		{"negative clamps to zero", -1, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, clamped := Int64ToUint64(tt.input)
			if got != tt.want || clamped != tt.clamped {
				t.Errorf("Int64ToUint64(%d) = (%d, %v), want (%d, %v)", tt.input, got, clamped, tt.want, tt.clamped)
			}
		})
	}
}
