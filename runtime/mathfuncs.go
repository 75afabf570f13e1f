package runtime

import "math"

// The Sin/Cos/... family wraps math's equivalents under the names
// emitted equations call through render.go, so every generated file's
// import list is exactly one line ("n2art") regardless of which built-in
// math functions a model's equations happen to use.
func Sin(x float64) float64   { return math.Sin(x) }
func Cos(x float64) float64   { return math.Cos(x) }
func Tan(x float64) float64   { return math.Tan(x) }
func Exp(x float64) float64   { return math.Exp(x) }
func Log(x float64) float64   { return math.Log(x) }
func Sqrt(x float64) float64  { return math.Sqrt(x) }
func Abs(x float64) float64   { return math.Abs(x) }
func Floor(x float64) float64 { return math.Floor(x) }
func Ceil(x float64) float64  { return math.Ceil(x) }
func Round(x float64) float64 { return math.Round(x) }
func Atan(x float64) float64  { return math.Atan(x) }
func Atan2(y, x float64) float64 { return math.Atan2(y, x) }
func Min(a, b float64) float64   { return math.Min(a, b) }
func Max(a, b float64) float64   { return math.Max(a, b) }
func Pow(a, b float64) float64   { return math.Pow(a, b) }

// Norm is N2A's matrix p-norm; scalar inputs take the absolute-value
// special case since a 1x1 norm is just |x|.
func Norm(x float64, p float64) float64 {
	return math.Pow(math.Pow(math.Abs(x), p), 1/p)
}

// Pulse is a periodic rectangular pulse train: width is the active
// duration within each period (in the same time units as period, not a
// fraction of it), starting at t=0, with a linear ramp over the first rise.
func Pulse(t, period, width, rise float64) float64 {
	if period <= 0 {
		if t >= 0 {
			return 1
		}
		return 0
	}
	phase := math.Mod(t, period)
	if phase < 0 {
		phase += period
	}
	if phase < rise {
		return phase / rise
	}
	if phase < width {
		return 1
	}
	return 0
}
