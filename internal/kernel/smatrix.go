package kernel

import (
	"math"

	"github.com/emsim-dev/emsim/internal/config"
	"github.com/emsim-dev/emsim/internal/grid"
)

// Beam is one plane-wave component of the compact scattering matrix: its
// pixel on the reciprocal grid and its spatial frequencies.
type Beam struct {
	J, I   int
	QX, QY float64
}

// SMatrix is the compact-basis scattering matrix: the sample's response to
// each beam, stored as real-space exit waves.
type SMatrix struct {
	Beams []Beam
	Waves []*grid.Cplx2D
}

// freqIndex maps an FFT-order array index to its signed frequency index.
func freqIndex(i, n int) int {
	if i < (n+1)/2 {
		return i
	}
	return i - n
}

// SelectBeams picks the plane waves inside the probe-forming aperture that
// fall on the interpolation-factor sublattice.
func SelectBeams(rec *grid.Reciprocal, cfg *config.Config, lambda float64) []Beam {
	qMax := cfg.ProbeSemiangle / 1000.0 / lambda
	f := cfg.InterpolationFactor
	if f < 1 {
		f = 1
	}
	var beams []Beam
	rows, cols := rec.Q.Rows, rec.Q.Cols
	for j := 0; j < rows; j++ {
		for i := 0; i < cols; i++ {
			if rec.Q.At(j, i) > qMax {
				continue
			}
			if freqIndex(j, rows)%f != 0 || freqIndex(i, cols)%f != 0 {
				continue
			}
			beams = append(beams, Beam{J: j, I: i, QX: rec.QX[i], QY: rec.QY[j]})
		}
	}
	return beams
}

// ComputeSMatrix propagates each selected beam through the potential and
// collects the exit waves.
func ComputeSMatrix(pot *grid.Real3D, rec *grid.Reciprocal, geo Geometry, cfg *config.Config, lambda float64) *SMatrix {
	beams := SelectBeams(rec, cfg, lambda)
	sigma := Sigma(lambda, cfg.E0)
	prop := Propagator(rec, lambda, geo.SliceThickness, cfg.AlphaBeamMax/1000.0/lambda)

	sm := &SMatrix{Beams: beams, Waves: make([]*grid.Cplx2D, len(beams))}
	norm := complex(1.0/math.Sqrt(float64(rec.Q.Rows*rec.Q.Cols)), 0)
	for b, beam := range beams {
		psi := grid.NewCplx2D(rec.Q.Rows, rec.Q.Cols)
		for j := 0; j < psi.Rows; j++ {
			for i := 0; i < psi.Cols; i++ {
				ph := 2.0 * math.Pi * (beam.QX*float64(i)*geo.PixelX + beam.QY*float64(j)*geo.PixelY)
				psi.Set(j, i, norm*complex(math.Cos(ph), math.Sin(ph)))
			}
		}
		sm.Waves[b] = Propagate(psi, pot, prop, sigma)
	}
	return sm
}

// Refocus applies a defocus shift of delta (angstroms) to every beam in
// place. The shift is a scalar phase per beam in the plane-wave basis, so
// the caller must pass deltas relative to the shift already applied.
func Refocus(sm *SMatrix, lambda, delta float64) {
	for b, beam := range sm.Beams {
		q2 := beam.QX*beam.QX + beam.QY*beam.QY
		ph := -math.Pi * lambda * q2 * delta
		factor := complex(math.Cos(ph), math.Sin(ph))
		for p := range sm.Waves[b].Data {
			sm.Waves[b].Data[p] *= factor
		}
	}
}

// Flatten packs the scattering matrix into a complex 3D array for
// persistence; beams are recorded separately as (j, i, qx, qy) rows.
func (sm *SMatrix) Flatten() (*grid.Cplx3D, []float64) {
	if len(sm.Waves) == 0 {
		return grid.NewCplx3D(0, 0, 0), nil
	}
	rows, cols := sm.Waves[0].Rows, sm.Waves[0].Cols
	waves := grid.NewCplx3D(len(sm.Waves), rows, cols)
	for b, w := range sm.Waves {
		copy(waves.Data[b*rows*cols:], w.Data)
	}
	meta := make([]float64, 0, len(sm.Beams)*4)
	for _, b := range sm.Beams {
		meta = append(meta, float64(b.J), float64(b.I), b.QX, b.QY)
	}
	return waves, meta
}

// UnflattenSMatrix rebuilds a scattering matrix from its persisted form.
func UnflattenSMatrix(waves *grid.Cplx3D, meta []float64) *SMatrix {
	nb := len(meta) / 4
	sm := &SMatrix{Beams: make([]Beam, nb), Waves: make([]*grid.Cplx2D, nb)}
	for b := 0; b < nb; b++ {
		sm.Beams[b] = Beam{
			J:  int(meta[b*4]),
			I:  int(meta[b*4+1]),
			QX: meta[b*4+2],
			QY: meta[b*4+3],
		}
		sm.Waves[b] = waves.Slice(b).Clone()
	}
	return sm
}
