package grid

import (
	"math"
	"testing"
)

func TestFFTFreq(t *testing.T) {
	f := FFTFreq(make([]float64, 4), 0.5)
	expected := []float64{0, 0.5, -1.0, -0.5}
	for i, e := range expected {
		if math.Abs(f[i]-e) > 1e-12 {
			t.Errorf("freq[%d]: got %f, expected %f", i, f[i], e)
		}
	}
}

func TestFFTFreqOdd(t *testing.T) {
	f := FFTFreq(make([]float64, 5), 1.0)
	expected := []float64{0, 0.2, 0.4, -0.4, -0.2}
	for i, e := range expected {
		if math.Abs(f[i]-e) > 1e-12 {
			t.Errorf("freq[%d]: got %f, expected %f", i, f[i], e)
		}
	}
}

func TestReciprocalZeroFrequencyOrigin(t *testing.T) {
	r := NewReciprocal(8, 8, 0.1, 0.1)
	if r.Q.At(0, 0) != 0 {
		t.Errorf("expected q=0 at origin, got %f", r.Q.At(0, 0))
	}
	if r.Q.Rows != 8 || r.Q.Cols != 8 {
		t.Errorf("unexpected shape %dx%d", r.Q.Rows, r.Q.Cols)
	}
}

func TestReciprocalTheta(t *testing.T) {
	r := NewReciprocal(8, 8, 0.1, 0.1)
	// pure +x frequency: theta = 0; pure +y frequency: theta = pi/2
	if math.Abs(r.QTheta.At(0, 1)) > 1e-12 {
		t.Errorf("expected theta 0 along x, got %f", r.QTheta.At(0, 1))
	}
	if math.Abs(r.QTheta.At(1, 0)-math.Pi/2) > 1e-12 {
		t.Errorf("expected theta pi/2 along y, got %f", r.QTheta.At(1, 0))
	}
}

func TestReal3DSliceIsView(t *testing.T) {
	a := NewReal3D(2, 3, 4)
	s := a.Slice(1)
	s.Set(2, 3, 7.5)
	if a.At(1, 2, 3) != 7.5 {
		t.Error("slice should alias parent storage")
	}
}
