package mathx

import "testing"

func TestClamp(t *testing.T) {
	if got := Clamp(150, -100, 100); got != 100 {
		t.Errorf("Clamp(150) = %d", got)
	}
	if got := Clamp(-150, 100, -100); got != -100 {
		t.Errorf("Clamp with swapped bounds = %d", got)
	}
	if got := Clamp(42, -100, 100); got != 42 {
		t.Errorf("Clamp(42) = %d", got)
	}
}

func TestScale(t *testing.T) {
	tests := []struct {
		pct  int
		full uint32
		want uint32
	}{
		{100, 50000, 50000},
		{-100, 50000, 50000},
		{60, 50000, 30000},
		{0, 50000, 0},
		{250, 1000, 1000},
	}
	for _, tt := range tests {
		if got := Scale(tt.pct, tt.full); got != tt.want {
			t.Errorf("Scale(%d, %d) = %d, want %d", tt.pct, tt.full, got, tt.want)
		}
	}
}
