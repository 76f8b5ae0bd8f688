// Package kernel holds the numerical collaborators of the simulation
// pipeline: projected potential calculation, compact scattering-matrix
// construction, and the multislice and PRISM output kernels.
package kernel

import (
	"math"

	"github.com/emsim-dev/emsim/internal/config"
	"github.com/emsim-dev/emsim/internal/grid"
	"github.com/emsim-dev/emsim/internal/sample"
)

// potBound is the radius (angstroms) beyond which an atom's projected
// potential is not accumulated.
const potBound = 2.0

// gaussWidth is the width of the Gaussian used for the projected atomic
// potential.
const gaussWidth = 0.5

// Geometry is the real-space sampling derived from the cell and config:
// pixel counts and the effective pixel sizes after fitting an integer
// number of pixels to the cell.
type Geometry struct {
	NX, NY           int
	PixelX, PixelY   float64
	NumSlices        int
	SliceThickness   float64
	CellX, CellY     float64
}

// NewGeometry fits the sampling grid to the (tiled) cell.
func NewGeometry(cell *sample.Cell, cfg *config.Config) Geometry {
	nx := int(math.Round(cell.DimX / cfg.PixelSizeX))
	if nx < 4 {
		nx = 4
	}
	ny := int(math.Round(cell.DimY / cfg.PixelSizeY))
	if ny < 4 {
		ny = 4
	}
	ns := int(math.Ceil(cell.DimZ / cfg.SliceThickness))
	if ns < 1 {
		ns = 1
	}
	return Geometry{
		NX:             nx,
		NY:             ny,
		PixelX:         cell.DimX / float64(nx),
		PixelY:         cell.DimY / float64(ny),
		NumSlices:      ns,
		SliceThickness: cfg.SliceThickness,
		CellX:          cell.DimX,
		CellY:          cell.DimY,
	}
}

// ComputePotential projects the displaced atomic configuration onto slices
// of the sampling grid. Each atom contributes a Gaussian of height Z within
// potBound of its site, with periodic wrap-around in x and y.
func ComputePotential(geo Geometry, atoms []sample.Atom) *grid.Real3D {
	pot := grid.NewReal3D(geo.NumSlices, geo.NY, geo.NX)
	w2 := 2.0 * gaussWidth * gaussWidth

	ry := int(math.Ceil(potBound / geo.PixelY))
	rx := int(math.Ceil(potBound / geo.PixelX))

	for _, a := range atoms {
		k := int(a.Z / geo.SliceThickness)
		if k < 0 {
			k = 0
		}
		if k >= geo.NumSlices {
			k = geo.NumSlices - 1
		}
		jc := int(math.Round(a.Y / geo.PixelY))
		ic := int(math.Round(a.X / geo.PixelX))
		z := float64(a.Species)

		for dj := -ry; dj <= ry; dj++ {
			for di := -rx; di <= rx; di++ {
				y := float64(jc+dj)*geo.PixelY - a.Y
				x := float64(ic+di)*geo.PixelX - a.X
				r2 := x*x + y*y
				if r2 > potBound*potBound {
					continue
				}
				j := ((jc+dj)%geo.NY + geo.NY) % geo.NY
				i := ((ic+di)%geo.NX + geo.NX) % geo.NX
				pot.Add(k, j, i, z*math.Exp(-r2/w2))
			}
		}
	}
	return pot
}

// Sigma returns the beam-sample interaction parameter (radians per V-angstrom)
// for the given wavelength (angstroms) and beam energy (keV).
func Sigma(lambda, e0 float64) float64 {
	const restEnergy = 510.99895 // keV
	v := e0 * 1e3
	return (2.0 * math.Pi / (lambda * v)) * (restEnergy + e0) / (2.0*restEnergy + e0)
}
