package runtime

import (
	"math"
	"testing"
)

func TestPulseRiseAndWidth(t *testing.T) {
	cases := []struct {
		t, period, width, rise float64
		want                    float64
	}{
		{0, 1, 0.5, 0, 1},     // zero rise: immediately full
		{0.9, 1, 0.5, 0, 0},   // past the active width
		{0, 0, 0.5, 0, 1},     // period<=0, t>=0: always on
		{-1, 0, 0.5, 0, 0},    // period<=0, t<0: always off
	}
	for _, c := range cases {
		got := Pulse(c.t, c.period, c.width, c.rise)
		if got != c.want {
			t.Errorf("Pulse(%v,%v,%v,%v): expected %v, got %v", c.t, c.period, c.width, c.rise, c.want, got)
		}
	}
}

func TestPulseRampsDuringRise(t *testing.T) {
	got := Pulse(0.25, 1, 0.5, 0.5)
	if got != 0.5 {
		t.Errorf("expected linear ramp mid-rise (0.5), got %v", got)
	}
}

func TestNormScalarIsAbsoluteValue(t *testing.T) {
	if got := Norm(-3, 2); math.Abs(got-3) > 1e-9 {
		t.Errorf("expected Norm(-3,2) == 3, got %v", got)
	}
}
