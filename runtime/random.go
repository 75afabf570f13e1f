package runtime

import "math/rand"

// Uniform returns a uniform random value. With no arguments it is [0,1);
// with one argument hi it is [0,hi); with two, [lo,hi).
func Uniform(args ...float64) float64 {
	switch len(args) {
	case 0:
		return rand.Float64()
	case 1:
		return rand.Float64() * args[0]
	default:
		lo, hi := args[0], args[1]
		return lo + rand.Float64()*(hi-lo)
	}
}

// Gaussian returns a normally distributed random value with the given
// mean/standard-deviation (default 0/1).
func Gaussian(args ...float64) float64 {
	mean, stddev := 0.0, 1.0
	if len(args) > 0 {
		stddev = args[0]
	}
	if len(args) > 1 {
		mean = args[1]
	}
	return mean + rand.NormFloat64()*stddev
}
