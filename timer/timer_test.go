package timer

import "testing"

func TestTickIsMonotonic(t *testing.T) {
	tk := New(100)
	var last uint64
	for i := 0; i < 5; i++ {
		v := tk.Tick()
		if v <= last {
			t.Fatalf("tick %d did not increase: %d <= %d", i, v, last)
		}
		last = v
	}
	if tk.NowTicks() != last {
		t.Fatalf("NowTicks() = %d, want %d", tk.NowTicks(), last)
	}
}

func TestDefaultFrequencyAppliedForZero(t *testing.T) {
	tk := New(0)
	if tk.Frequency() != DefaultFrequencyHz {
		t.Fatalf("Frequency() = %d, want default %d", tk.Frequency(), DefaultFrequencyHz)
	}
}

func TestSetFrequency(t *testing.T) {
	tk := New(100)
	tk.SetFrequency(50)
	if tk.Frequency() != 50 {
		t.Fatalf("Frequency() = %d, want 50", tk.Frequency())
	}
}
