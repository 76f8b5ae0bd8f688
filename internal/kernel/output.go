package kernel

import (
	"math"

	"github.com/emsim-dev/emsim/internal/config"
	"github.com/emsim-dev/emsim/internal/grid"
)

// Propagator builds the Fresnel free-space propagator for one slice,
// masked beyond qMax to suppress aliased scattering.
func Propagator(rec *grid.Reciprocal, lambda, dz, qMax float64) *grid.Cplx2D {
	prop := grid.NewCplx2D(rec.Q.Rows, rec.Q.Cols)
	for p, q := range rec.Q.Data {
		if q > qMax {
			continue
		}
		ph := -math.Pi * lambda * q * q * dz
		prop.Data[p] = complex(math.Cos(ph), math.Sin(ph))
	}
	return prop
}

// Propagate carries a wavefunction through every slice of the potential:
// transmit, transform, free-space propagate, transform back.
func Propagate(psi *grid.Cplx2D, pot *grid.Real3D, prop *grid.Cplx2D, sigma float64) *grid.Cplx2D {
	for k := 0; k < pot.D0; k++ {
		sl := pot.Slice(k)
		for p := range psi.Data {
			ph := sigma * sl.Data[p]
			psi.Data[p] *= complex(math.Cos(ph), math.Sin(ph))
		}
		psiK := FFT2(psi)
		for p := range psiK.Data {
			psiK.Data[p] *= prop.Data[p]
		}
		psi = IFFT2(psiK)
	}
	return psi
}

// Scan is the set of probe positions over the configured scan window.
type Scan struct {
	XS, YS []float64
}

func ScanPositions(geo Geometry, cfg *config.Config) Scan {
	xs := positions(cfg.ScanWindowXMin*geo.CellX, cfg.ScanWindowXMax*geo.CellX, cfg.ProbeStepX)
	ys := positions(cfg.ScanWindowYMin*geo.CellY, cfg.ScanWindowYMax*geo.CellY, cfg.ProbeStepY)
	return Scan{XS: xs, YS: ys}
}

func positions(lo, hi, step float64) []float64 {
	if step <= 0 || hi <= lo {
		return []float64{lo}
	}
	var ps []float64
	for x := lo; x < hi; x += step {
		ps = append(ps, x)
	}
	if len(ps) == 0 {
		ps = []float64{lo}
	}
	return ps
}

// Detector bins the far-field intensity into annular rings of
// DetectorAngleStep mrad, up to AlphaBeamMax.
type Detector struct {
	Bins   int
	Step   float64
	Lambda float64
}

func NewDetector(cfg *config.Config, lambda float64) Detector {
	bins := int(math.Ceil(cfg.AlphaBeamMax / cfg.DetectorAngleStep))
	if bins < 1 {
		bins = 1
	}
	return Detector{Bins: bins, Step: cfg.DetectorAngleStep, Lambda: lambda}
}

// Integrate accumulates the annular intensity bins and the center of mass
// of the diffraction pattern for one probe.
func (d Detector) Integrate(psiK *grid.Cplx2D, rec *grid.Reciprocal) (bins []float64, comX, comY float64) {
	bins = make([]float64, d.Bins)
	total := 0.0
	for p, v := range psiK.Data {
		inten := real(v)*real(v) + imag(v)*imag(v)
		theta := rec.Q.Data[p] * d.Lambda * 1000.0
		if b := int(theta / d.Step); b < d.Bins {
			bins[b] += inten
		}
		j := p / psiK.Cols
		i := p % psiK.Cols
		comX += inten * rec.QX[i]
		comY += inten * rec.QY[j]
		total += inten
	}
	if total > 0 {
		comX /= total
		comY /= total
	}
	return bins, comX, comY
}

// buildProbe fills the probe wavefunction in reciprocal space: an aperture
// cut at the probe semiangle, the aberration phase, and the shift to the
// probe position.
func buildProbe(rec *grid.Reciprocal, chi *grid.Cplx2D, lambda, qProbe, x0, y0 float64) *grid.Cplx2D {
	psiK := grid.NewCplx2D(rec.Q.Rows, rec.Q.Cols)
	for p, q := range rec.Q.Data {
		if q > qProbe {
			continue
		}
		j := p / psiK.Cols
		i := p % psiK.Cols
		ph := -real(chi.Data[p]) - 2.0*math.Pi*(rec.QX[i]*x0+rec.QY[j]*y0)
		psiK.Data[p] = complex(math.Cos(ph), math.Sin(ph))
	}
	Normalize(psiK)
	return psiK
}

// MultisliceOutput scans the probe over the sample and propagates it
// slice-by-slice through the potential. It returns the annular detector
// output [ny][nx][bins] and the 2-component center-of-mass map [2][ny][nx].
func MultisliceOutput(pot *grid.Real3D, rec *grid.Reciprocal, geo Geometry, cfg *config.Config, lambda float64, chi *grid.Cplx2D) (*grid.Real3D, *grid.Real3D) {
	scan := ScanPositions(geo, cfg)
	det := NewDetector(cfg, lambda)
	sigma := Sigma(lambda, cfg.E0)
	qProbe := cfg.ProbeSemiangle / 1000.0 / lambda
	prop := Propagator(rec, lambda, geo.SliceThickness, cfg.AlphaBeamMax/1000.0/lambda)

	out := grid.NewReal3D(len(scan.YS), len(scan.XS), det.Bins)
	com := grid.NewReal3D(2, len(scan.YS), len(scan.XS))

	for jp, y0 := range scan.YS {
		for ip, x0 := range scan.XS {
			psi := IFFT2(buildProbe(rec, chi, lambda, qProbe, x0, y0))
			psi = Propagate(psi, pot, prop, sigma)
			bins, cx, cy := det.Integrate(FFT2(psi), rec)
			for b, v := range bins {
				out.Set(jp, ip, b, v)
			}
			com.Set(0, jp, ip, cx)
			com.Set(1, jp, ip, cy)
		}
	}
	return out, com
}

// PRISMOutput forms each probe as a weighted sum over the compact-basis
// beams instead of propagating it through the sample.
func PRISMOutput(sm *SMatrix, rec *grid.Reciprocal, geo Geometry, cfg *config.Config, lambda float64, chi *grid.Cplx2D) (*grid.Real3D, *grid.Real3D) {
	scan := ScanPositions(geo, cfg)
	det := NewDetector(cfg, lambda)
	qProbe := cfg.ProbeSemiangle / 1000.0 / lambda

	// far-field response of every beam, computed once per output stage
	waveK := make([]*grid.Cplx2D, len(sm.Waves))
	for b, w := range sm.Waves {
		waveK[b] = FFT2(w)
	}

	out := grid.NewReal3D(len(scan.YS), len(scan.XS), det.Bins)
	com := grid.NewReal3D(2, len(scan.YS), len(scan.XS))
	psiK := grid.NewCplx2D(rec.Q.Rows, rec.Q.Cols)

	for jp, y0 := range scan.YS {
		for ip, x0 := range scan.XS {
			for p := range psiK.Data {
				psiK.Data[p] = 0
			}
			for b, beam := range sm.Beams {
				q := math.Hypot(beam.QX, beam.QY)
				if q > qProbe {
					continue
				}
				ph := -real(chi.At(beam.J, beam.I)) - 2.0*math.Pi*(beam.QX*x0+beam.QY*y0)
				coeff := complex(math.Cos(ph), math.Sin(ph))
				for p, v := range waveK[b].Data {
					psiK.Data[p] += coeff * v
				}
			}
			Normalize(psiK)
			bins, cx, cy := det.Integrate(psiK, rec)
			for b, v := range bins {
				out.Set(jp, ip, b, v)
			}
			com.Set(0, jp, ip, cx)
			com.Set(1, jp, ip, cy)
		}
	}
	return out, com
}
