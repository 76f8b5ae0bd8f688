package pipeline

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/emsim-dev/emsim/internal/config"
	"github.com/emsim-dev/emsim/internal/grid"
	"github.com/emsim-dev/emsim/internal/store"
)

func writeAtoms(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "cell.xyz")
	src := "test cell\n4.0 4.0 4.0\n14 1.0 1.0 1.0 1.0 0.08\n14 3.0 3.0 3.0 1.0 0.08\n-1\n"
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.FilenameAtoms = writeAtoms(t, dir)
	cfg.FilenameOutput = filepath.Join(dir, "out.emd")
	cfg.PixelSizeX = 0.5
	cfg.PixelSizeY = 0.5
	cfg.ProbeStepX = 2.0
	cfg.ProbeStepY = 2.0
	cfg.SliceThickness = 2.0
	cfg.InterpolationFactor = 1
	cfg.NumFP = 2
	cfg.Seed = 1234
	return cfg
}

func run(t *testing.T, cfg *config.Config) *store.File {
	t.Helper()
	r, err := NewRunner(cfg)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	f, err := store.Open(cfg.FilenameOutput)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	return f
}

func readOutput(t *testing.T, f *store.File, group string) []float64 {
	t.Helper()
	_, data, err := f.ReadDataset(group)
	if err != nil {
		t.Fatalf("read %s: %v", group, err)
	}
	return data
}

func TestAccumulatorAveraging(t *testing.T) {
	acc := NewAccumulator(3, true)
	mk := func(v float64) *grid.Real3D {
		a := grid.NewReal3D(1, 2, 2)
		for i := range a.Data {
			a.Data[i] = v
		}
		return a
	}
	for _, v := range []float64{1, 2, 6} {
		if err := acc.Add(mk(v), mk(v*10)); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	out, com, err := acc.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	for i, v := range out.Data {
		if math.Abs(v-3.0) > 1e-12 {
			t.Errorf("out[%d]: got %f, expected 3", i, v)
		}
	}
	for i, v := range com.Data {
		if math.Abs(v-30.0) > 1e-12 {
			t.Errorf("com[%d]: got %f, expected 30", i, v)
		}
	}
}

func TestAccumulatorShapeMismatch(t *testing.T) {
	acc := NewAccumulator(2, false)
	if err := acc.Add(grid.NewReal3D(1, 2, 2), nil); err != nil {
		t.Fatal(err)
	}
	if err := acc.Add(grid.NewReal3D(1, 3, 3), nil); err == nil {
		t.Error("expected shape mismatch error")
	}
}

func TestSeedSequenceReproducible(t *testing.T) {
	a := NewSeedSequence(99).Take(5)
	b := NewSeedSequence(99).Take(5)
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same seed should yield the same sequence")
		}
	}
}

func TestRunMultisliceDeterministic(t *testing.T) {
	cfg1 := testConfig(t)
	out1 := readOutput(t, run(t, cfg1), "stem/realslices/output")

	cfg2 := testConfig(t)
	out2 := readOutput(t, run(t, cfg2), "stem/realslices/output")

	if len(out1) != len(out2) {
		t.Fatal("output lengths differ")
	}
	for i := range out1 {
		if out1[i] != out2[i] {
			t.Fatalf("same seed produced different output at %d", i)
		}
	}
}

func TestRunParallelMatchesSequential(t *testing.T) {
	cfg1 := testConfig(t)
	cfg1.IncludeThermalEffects = false
	out1 := readOutput(t, run(t, cfg1), "stem/realslices/output")

	cfg2 := testConfig(t)
	cfg2.IncludeThermalEffects = false
	cfg2.Parallel = true
	out2 := readOutput(t, run(t, cfg2), "stem/realslices/output")

	for i := range out1 {
		if math.Abs(out1[i]-out2[i]) > 1e-12 {
			t.Fatalf("parallel and sequential diverge at %d", i)
		}
	}
}

func TestRunWithDPC(t *testing.T) {
	cfg := testConfig(t)
	cfg.SaveDPCCoM = true
	f := run(t, cfg)
	dims, _, err := f.ReadDataset("stem/realslices/DPC_CoM")
	if err != nil {
		t.Fatalf("read CoM: %v", err)
	}
	if len(dims) != 3 || dims[0] != 2 {
		t.Errorf("CoM dims: %v", dims)
	}
}

func TestSeriesTagsDoNotMix(t *testing.T) {
	cfg := testConfig(t)
	cfg.SimSeries = true
	cfg.SeriesTags = []string{"df0", "df200"}
	cfg.SeriesVals = []float64{0.0, 200.0}
	f := run(t, cfg)

	a := readOutput(t, f, "stem/series/df0")
	b := readOutput(t, f, "stem/series/df200")
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different defocus values should produce different outputs")
	}

	if _, err := os.Stat(cfg.FilenameOutput + "_scratch"); !os.IsNotExist(err) {
		t.Error("scratch store should be removed after finalization")
	}
}

func TestSeriesKeepsConfiguredDefocusInMetadata(t *testing.T) {
	cfg := testConfig(t)
	cfg.ProbeDefocus = 50.0
	cfg.SimSeries = true
	cfg.SeriesTags = []string{"df0", "df200"}
	cfg.SeriesVals = []float64{0.0, 200.0}
	f := run(t, cfg)

	meta, err := f.ReadMetadata()
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	if meta.ProbeDefocus != 50.0 {
		t.Errorf("metadata defocus: got %f, expected the configured 50.0", meta.ProbeDefocus)
	}
}

func TestSeriesMatchesPlainRun(t *testing.T) {
	// with thermal displacement off, a one-point series at defocus d must
	// match a plain run at defocus d
	cfg1 := testConfig(t)
	cfg1.IncludeThermalEffects = false
	cfg1.NumFP = 1
	cfg1.ProbeDefocus = 150.0
	plain := readOutput(t, run(t, cfg1), "stem/realslices/output")

	cfg2 := testConfig(t)
	cfg2.IncludeThermalEffects = false
	cfg2.NumFP = 1
	cfg2.SimSeries = true
	cfg2.SeriesTags = []string{"df150"}
	cfg2.SeriesVals = []float64{150.0}
	series := readOutput(t, run(t, cfg2), "stem/series/df150")

	if len(plain) != len(series) {
		t.Fatal("lengths differ")
	}
	for i := range plain {
		if math.Abs(plain[i]-series[i]) > 1e-10 {
			t.Fatalf("series and plain diverge at %d: %g vs %g", i, plain[i], series[i])
		}
	}
}

func TestPRISMImportSMatrix(t *testing.T) {
	cfg1 := testConfig(t)
	cfg1.Algorithm = config.AlgorithmPRISM
	cfg1.IncludeThermalEffects = false
	cfg1.NumFP = 1
	first := readOutput(t, run(t, cfg1), "stem/realslices/output")

	cfg2 := testConfig(t)
	cfg2.Algorithm = config.AlgorithmPRISM
	cfg2.IncludeThermalEffects = false
	cfg2.NumFP = 1
	cfg2.ImportSMatrix = true
	cfg2.ImportFile = cfg1.FilenameOutput
	second := readOutput(t, run(t, cfg2), "stem/realslices/output")

	for i := range first {
		if math.Abs(first[i]-second[i]) > 1e-10 {
			t.Fatalf("imported scattering matrix diverges at %d", i)
		}
	}
}

func TestMultisliceImportPotential(t *testing.T) {
	cfg1 := testConfig(t)
	cfg1.IncludeThermalEffects = false
	cfg1.NumFP = 1
	first := readOutput(t, run(t, cfg1), "stem/realslices/output")

	cfg2 := testConfig(t)
	cfg2.IncludeThermalEffects = false
	cfg2.NumFP = 1
	cfg2.ImportPotential = true
	cfg2.ImportFile = cfg1.FilenameOutput
	second := readOutput(t, run(t, cfg2), "stem/realslices/output")

	for i := range first {
		if math.Abs(first[i]-second[i]) > 1e-10 {
			t.Fatalf("imported potential diverges at %d", i)
		}
	}
}

func TestMissingImportArtifactIsFatal(t *testing.T) {
	cfg := testConfig(t)
	cfg.ImportPotential = true
	cfg.ImportFile = filepath.Join(t.TempDir(), "nope.emd")
	r, err := NewRunner(cfg)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	if err := r.Run(context.Background()); err == nil {
		t.Error("expected fatal error for missing import artifact")
	}
}

func TestMultisliceForcesSMatrixImportOff(t *testing.T) {
	cfg := testConfig(t)
	cfg.ImportSMatrix = true
	if _, err := NewRunner(cfg); err != nil {
		t.Fatalf("multislice should clear the smatrix import flag: %v", err)
	}
	if cfg.ImportSMatrix {
		t.Error("flag still set")
	}
}

func TestObserverReceivesProgress(t *testing.T) {
	cfg := testConfig(t)
	r, err := NewRunner(cfg)
	if err != nil {
		t.Fatal(err)
	}
	var got []Progress
	r.SetObserver(func(p Progress) { got = append(got, p) })
	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(got) != cfg.NumFP {
		t.Errorf("expected %d progress updates, got %d", cfg.NumFP, len(got))
	}
}
