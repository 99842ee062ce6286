package math

import "testing"

func TestClamp(t *testing.T) {
	tests := []struct {
		v, lo, hi, want uint32
	}{
		{5, 1, 10, 5},
		{0, 1, 10, 1},
		{20, 1, 10, 10},
	}
	for _, tt := range tests {
		if got := Clamp(tt.v, tt.lo, tt.hi); got != tt.want {
			t.Errorf("Clamp(%d, %d, %d) = %d, want %d", tt.v, tt.lo, tt.hi, got, tt.want)
		}
	}
	if got := Clamp(1.5, 0.0, 1.0); got != 1.0 {
		t.Errorf("float clamp = %f", got)
	}
}

func TestAlignUp(t *testing.T) {
	tests := []struct {
		v, align, want uint64
	}{
		{0, 16, 0},
		{1, 16, 16},
		{16, 16, 16},
		{17, 16, 32},
		{30, 12, 36},
		{7, 0, 7},
		{7, 1, 7},
	}
	for _, tt := range tests {
		if got := AlignUp(tt.v, tt.align); got != tt.want {
			t.Errorf("AlignUp(%d, %d) = %d, want %d", tt.v, tt.align, got, tt.want)
		}
	}
}
