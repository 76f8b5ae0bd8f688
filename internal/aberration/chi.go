package aberration

import (
	"math"

	"github.com/emsim-dev/emsim/internal/grid"
)

// Chi evaluates the aberration phase function over the reciprocal-space
// grid. The phase is accumulated in the real channel of the returned array,
// one term at a time, preserving term order. For m=0 terms the rotation
// angle has no azimuthal meaning, so the full magnitude is used as the
// effective horizontal component rather than attenuating it by cos(n*rad).
func Chi(rec *grid.Reciprocal, lambda float64, ab []Aberration) *grid.Cplx2D {
	chi := grid.NewCplx2D(rec.Q.Rows, rec.Q.Cols)
	for _, a := range ab {
		rad := a.Angle * math.Pi / 180.0
		cx := a.Mag
		if a.M != 0 {
			cx = a.Mag * math.Cos(float64(a.N)*rad)
		}
		cy := a.Mag * math.Sin(float64(a.N)*rad)
		fn := float64(a.N)
		fm := float64(a.M)

		for p, q := range rec.Q.Data {
			r := math.Pow(lambda*q, fn)
			theta := rec.QTheta.Data[p]
			phase := real(chi.Data[p])
			phase += cx * r * math.Cos(fm*theta)
			phase += cy * r * math.Sin(fm*theta)
			chi.Data[p] = complex(phase, imag(chi.Data[p]))
		}
	}
	return chi
}
