package grid

import "math"

// Reciprocal holds the frequency-domain sampling of the simulation box:
// at every pixel, the radial spatial frequency magnitude Q and the
// azimuthal angle QTheta. Both follow FFT frequency ordering, so the
// zero-frequency component sits at pixel (0,0).
type Reciprocal struct {
	Q, QTheta *Real2D
	QX, QY    []float64
}

// FFTFreq fills dst with the discrete sample frequencies for n points at
// spacing d, in standard FFT order: 0, 1, ..., n/2-1, -n/2, ..., -1, each
// divided by n*d.
func FFTFreq(dst []float64, d float64) []float64 {
	n := len(dst)
	for i := range dst {
		if i < (n+1)/2 {
			dst[i] = float64(i) / (float64(n) * d)
		} else {
			dst[i] = float64(i-n) / (float64(n) * d)
		}
	}
	return dst
}

// NewReciprocal builds the reciprocal-space grid for a rows x cols
// real-space sampling with the given pixel sizes (length units).
func NewReciprocal(rows, cols int, pixelY, pixelX float64) *Reciprocal {
	qy := FFTFreq(make([]float64, rows), pixelY)
	qx := FFTFreq(make([]float64, cols), pixelX)

	r := &Reciprocal{
		Q:      NewReal2D(rows, cols),
		QTheta: NewReal2D(rows, cols),
		QX:     qx,
		QY:     qy,
	}
	for j := 0; j < rows; j++ {
		for i := 0; i < cols; i++ {
			r.Q.Set(j, i, math.Hypot(qy[j], qx[i]))
			r.QTheta.Set(j, i, math.Atan2(qy[j], qx[i]))
		}
	}
	return r
}

// QMax is the largest radial frequency on the grid.
func (r *Reciprocal) QMax() float64 { return r.Q.MaxAbs() }
