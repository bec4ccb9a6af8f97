package detector

import "testing"

func TestVolumeFractionSizing(t *testing.T) {
	sizing := VolumeFractionSizing(0.01)

	if got := sizing(100, 500, 800); got != 5 {
		t.Errorf("1%% of thinner side = %v, want 5", got)
	}
	if got := sizing(100, 900, 300); got != 3 {
		t.Errorf("1%% of thinner side = %v, want 3", got)
	}
}

func TestVolumeFractionSizingCapsAtMax(t *testing.T) {
	sizing := VolumeFractionSizing(0.5)
	if got := sizing(10, 500, 800); got != 10 {
		t.Errorf("sized amount = %v, want cap 10", got)
	}
}

func TestFixedSizing(t *testing.T) {
	sizing := FixedSizing()
	if got := sizing(25, 1, 1); got != 25 {
		t.Errorf("fixed amount = %v, want 25", got)
	}
}
