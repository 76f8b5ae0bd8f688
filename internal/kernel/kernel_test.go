package kernel

import (
	"math"
	"strings"
	"testing"

	"github.com/emsim-dev/emsim/internal/config"
	"github.com/emsim-dev/emsim/internal/grid"
	"github.com/emsim-dev/emsim/internal/sample"
)

func testCell(t *testing.T) *sample.Cell {
	t.Helper()
	src := "test cell\n4.0 4.0 4.0\n14 1.0 1.0 1.0 1.0 0.0\n14 3.0 3.0 3.0 1.0 0.0\n-1\n"
	cell, err := sample.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse cell: %v", err)
	}
	return cell
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.PixelSizeX = 0.5
	cfg.PixelSizeY = 0.5
	cfg.ProbeStepX = 2.0
	cfg.ProbeStepY = 2.0
	cfg.SliceThickness = 2.0
	cfg.InterpolationFactor = 1
	return cfg
}

func TestGeometryFitsCell(t *testing.T) {
	cell := testCell(t)
	geo := NewGeometry(cell, testConfig())
	if geo.NX != 8 || geo.NY != 8 {
		t.Errorf("expected 8x8 sampling, got %dx%d", geo.NY, geo.NX)
	}
	if geo.NumSlices != 2 {
		t.Errorf("expected 2 slices, got %d", geo.NumSlices)
	}
	if math.Abs(geo.PixelX-0.5) > 1e-12 {
		t.Errorf("effective pixel: got %f", geo.PixelX)
	}
}

func TestComputePotentialMass(t *testing.T) {
	cell := testCell(t)
	cfg := testConfig()
	geo := NewGeometry(cell, cfg)
	pot := ComputePotential(geo, cell.Atoms)

	total := 0.0
	for _, v := range pot.Data {
		if v < 0 {
			t.Fatal("potential should be non-negative")
		}
		total += v
	}
	if total == 0 {
		t.Fatal("potential is empty")
	}
	// both atoms land in distinct slices
	s0, s1 := 0.0, 0.0
	for _, v := range pot.Slice(0).Data {
		s0 += v
	}
	for _, v := range pot.Slice(1).Data {
		s1 += v
	}
	if s0 == 0 || s1 == 0 {
		t.Errorf("expected mass in both slices, got %f / %f", s0, s1)
	}
}

func TestPropagateConservesNorm(t *testing.T) {
	cell := testCell(t)
	cfg := testConfig()
	geo := NewGeometry(cell, cfg)
	rec := grid.NewReciprocal(geo.NY, geo.NX, geo.PixelY, geo.PixelX)
	pot := ComputePotential(geo, cell.Atoms)
	lambda := cfg.Wavelength()

	psi := grid.NewCplx2D(geo.NY, geo.NX)
	for p := range psi.Data {
		psi.Data[p] = complex(1.0/math.Sqrt(float64(len(psi.Data))), 0)
	}
	before := Norm(psi)

	// unmasked propagator: pure phase evolution preserves the L2 norm
	prop := Propagator(rec, lambda, geo.SliceThickness, math.Inf(1))
	psi = Propagate(psi, pot, prop, Sigma(lambda, cfg.E0))
	after := Norm(psi)
	if math.Abs(after-before) > 1e-9 {
		t.Errorf("norm drifted: %f -> %f", before, after)
	}
}

func TestSelectBeamsSublattice(t *testing.T) {
	cfg := testConfig()
	cfg.InterpolationFactor = 2
	rec := grid.NewReciprocal(8, 8, 0.5, 0.5)
	lambda := cfg.Wavelength()
	beams := SelectBeams(rec, cfg, lambda)
	if len(beams) == 0 {
		t.Fatal("expected beams inside aperture")
	}
	for _, b := range beams {
		if freqIndex(b.J, 8)%2 != 0 || freqIndex(b.I, 8)%2 != 0 {
			t.Errorf("beam (%d,%d) off the interpolation sublattice", b.J, b.I)
		}
	}
}

func TestRefocusIsPurePhase(t *testing.T) {
	cell := testCell(t)
	cfg := testConfig()
	cfg.Algorithm = config.AlgorithmPRISM
	geo := NewGeometry(cell, cfg)
	rec := grid.NewReciprocal(geo.NY, geo.NX, geo.PixelY, geo.PixelX)
	pot := ComputePotential(geo, cell.Atoms)
	lambda := cfg.Wavelength()

	sm := ComputeSMatrix(pot, rec, geo, cfg, lambda)
	before := make([]float64, len(sm.Waves))
	for b, w := range sm.Waves {
		before[b] = Norm(w)
	}
	Refocus(sm, lambda, 150.0)
	for b, w := range sm.Waves {
		if math.Abs(Norm(w)-before[b]) > 1e-9 {
			t.Errorf("refocus changed norm of beam %d", b)
		}
	}
}

func TestSMatrixFlattenRoundTrip(t *testing.T) {
	cell := testCell(t)
	cfg := testConfig()
	geo := NewGeometry(cell, cfg)
	rec := grid.NewReciprocal(geo.NY, geo.NX, geo.PixelY, geo.PixelX)
	pot := ComputePotential(geo, cell.Atoms)
	sm := ComputeSMatrix(pot, rec, geo, cfg, cfg.Wavelength())

	waves, meta := sm.Flatten()
	back := UnflattenSMatrix(waves, meta)
	if len(back.Beams) != len(sm.Beams) {
		t.Fatalf("beam count: got %d, expected %d", len(back.Beams), len(sm.Beams))
	}
	for b := range sm.Beams {
		if back.Beams[b] != sm.Beams[b] {
			t.Errorf("beam %d mismatch", b)
		}
		for p := range sm.Waves[b].Data {
			if sm.Waves[b].Data[p] != back.Waves[b].Data[p] {
				t.Fatalf("wave %d differs at pixel %d", b, p)
			}
		}
	}
}

func TestOutputShapes(t *testing.T) {
	cell := testCell(t)
	cfg := testConfig()
	geo := NewGeometry(cell, cfg)
	rec := grid.NewReciprocal(geo.NY, geo.NX, geo.PixelY, geo.PixelX)
	pot := ComputePotential(geo, cell.Atoms)
	lambda := cfg.Wavelength()
	chi := grid.NewCplx2D(geo.NY, geo.NX)

	out, com := MultisliceOutput(pot, rec, geo, cfg, lambda, chi)
	scan := ScanPositions(geo, cfg)
	det := NewDetector(cfg, lambda)
	if out.D0 != len(scan.YS) || out.D1 != len(scan.XS) || out.D2 != det.Bins {
		t.Errorf("output shape %dx%dx%d", out.D0, out.D1, out.D2)
	}
	if com.D0 != 2 {
		t.Errorf("com should have 2 components, got %d", com.D0)
	}

	total := 0.0
	for _, v := range out.Data {
		total += v
	}
	if total <= 0 {
		t.Error("multislice output carries no intensity")
	}
}

func TestPRISMOutputShapeMatchesMultislice(t *testing.T) {
	cell := testCell(t)
	cfg := testConfig()
	cfg.Algorithm = config.AlgorithmPRISM
	geo := NewGeometry(cell, cfg)
	rec := grid.NewReciprocal(geo.NY, geo.NX, geo.PixelY, geo.PixelX)
	pot := ComputePotential(geo, cell.Atoms)
	lambda := cfg.Wavelength()
	chi := grid.NewCplx2D(geo.NY, geo.NX)

	sm := ComputeSMatrix(pot, rec, geo, cfg, lambda)
	pOut, _ := PRISMOutput(sm, rec, geo, cfg, lambda, chi)
	mOut, _ := MultisliceOutput(pot, rec, geo, cfg, lambda, chi)
	if pOut.D0 != mOut.D0 || pOut.D1 != mOut.D1 || pOut.D2 != mOut.D2 {
		t.Errorf("prism %dx%dx%d vs multislice %dx%dx%d",
			pOut.D0, pOut.D1, pOut.D2, mOut.D0, mOut.D1, mOut.D2)
	}
	total := 0.0
	for _, v := range pOut.Data {
		total += v
	}
	if total <= 0 {
		t.Error("prism output carries no intensity")
	}
}
