package util

import "testing"

func TestMinMax(t *testing.T) {
	if Min(3, 5) != 3 {
		t.Fatalf("Min(3,5) = %d, want 3", Min(3, 5))
	}
	if Max(3, 5) != 5 {
		t.Fatalf("Max(3,5) = %d, want 5", Max(3, 5))
	}
}

func TestRoundupRounddown(t *testing.T) {
	cases := []struct{ v, align, up, down uintptr }{
		{0, 16, 0, 0},
		{1, 16, 16, 0},
		{16, 16, 16, 16},
		{17, 16, 32, 16},
	}
	for _, c := range cases {
		if got := Roundup(c.v, c.align); got != c.up {
			t.Errorf("Roundup(%d,%d) = %d, want %d", c.v, c.align, got, c.up)
		}
		if got := Rounddown(c.v, c.align); got != c.down {
			t.Errorf("Rounddown(%d,%d) = %d, want %d", c.v, c.align, got, c.down)
		}
	}
}
