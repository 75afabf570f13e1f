package runtime

import "testing"

func TestUniformRespectsBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		if v := Uniform(); v < 0 || v >= 1 {
			t.Fatalf("Uniform(): expected [0,1), got %v", v)
		}
		if v := Uniform(5); v < 0 || v >= 5 {
			t.Fatalf("Uniform(5): expected [0,5), got %v", v)
		}
		if v := Uniform(2, 4); v < 2 || v >= 4 {
			t.Fatalf("Uniform(2,4): expected [2,4), got %v", v)
		}
	}
}

func TestGaussianDefaultsToStandardNormal(t *testing.T) {
	sum := 0.0
	const n = 2000
	for i := 0; i < n; i++ {
		sum += Gaussian()
	}
	mean := sum / n
	if mean < -0.2 || mean > 0.2 {
		t.Errorf("expected the sample mean to hover near 0 over %d draws, got %v", n, mean)
	}
}
