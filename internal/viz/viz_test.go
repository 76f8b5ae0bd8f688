package viz

import (
	"strings"
	"testing"

	"github.com/emsim-dev/emsim/internal/grid"
)

func TestProgressBarBounds(t *testing.T) {
	cases := []struct {
		frac   float64
		filled int
	}{
		{-0.5, 0},
		{0.0, 0},
		{0.5, 5},
		{1.0, 10},
		{2.0, 10},
	}
	for _, c := range cases {
		bar := ProgressBar(c.frac, 10)
		if n := strings.Count(bar, "█"); n != c.filled {
			t.Errorf("ProgressBar(%f): %d filled, expected %d", c.frac, n, c.filled)
		}
	}
}

func TestHeatmapShape(t *testing.T) {
	img := grid.NewReal2D(3, 4)
	img.Set(1, 2, 5.0)
	out := Heatmap(img)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(lines))
	}
	if !strings.Contains(lines[1], "█") {
		t.Error("maximum pixel should render as full shade")
	}
	if strings.Contains(lines[0], "█") {
		t.Error("zero row should not render as full shade")
	}
}

func TestHeatmapAllZero(t *testing.T) {
	out := Heatmap(grid.NewReal2D(2, 2))
	if strings.ContainsAny(out, "░▒▓█") {
		t.Error("zero image should render blank")
	}
}

func TestIntegratedSumsBins(t *testing.T) {
	out := grid.NewReal3D(2, 2, 3)
	for k := 0; k < 3; k++ {
		out.Set(0, 0, k, float64(k+1))
	}
	img := Integrated(out, 0, 3)
	if img.Rows != 2 || img.Cols != 2 {
		t.Fatalf("image shape %dx%d, expected the 2x2 scan", img.Rows, img.Cols)
	}
	if img.At(0, 0) != 6.0 {
		t.Errorf("expected 6, got %f", img.At(0, 0))
	}
	img = Integrated(out, 1, 2)
	if img.At(0, 0) != 2.0 {
		t.Errorf("expected 2, got %f", img.At(0, 0))
	}
}

func TestIntegratedKeepsScanShape(t *testing.T) {
	// 1x2 probe scan, 24 detector bins: the detector image must have the
	// scan dimensions, not a scan-by-bin cross-section
	out := grid.NewReal3D(1, 2, 24)
	img := Integrated(out, 0, out.D2)
	if img.Rows != 1 || img.Cols != 2 {
		t.Fatalf("image shape %dx%d, expected 1x2", img.Rows, img.Cols)
	}
}

func TestBinMeansPerDetectorBin(t *testing.T) {
	out := grid.NewReal3D(1, 2, 24)
	for k := 0; k < out.D2; k++ {
		out.Set(0, 0, k, float64(k))
		out.Set(0, 1, k, float64(k)+2.0)
	}
	means := binMeans(out)
	if len(means) != 24 {
		t.Fatalf("expected one mean per bin, got %d", len(means))
	}
	for k, m := range means {
		want := float64(k) + 1.0
		if m != want {
			t.Errorf("bin %d: got %f, expected %f", k, m, want)
		}
	}
}

func TestBinImageSelectsBin(t *testing.T) {
	out := grid.NewReal3D(2, 2, 3)
	out.Set(1, 0, 2, 7.0)
	out.Set(1, 0, 1, 3.0)
	img := BinImage(out, 2)
	if img.Rows != 2 || img.Cols != 2 {
		t.Fatalf("image shape %dx%d, expected 2x2", img.Rows, img.Cols)
	}
	if img.At(1, 0) != 7.0 {
		t.Errorf("expected bin 2 value 7, got %f", img.At(1, 0))
	}
	if img.At(0, 0) != 0.0 {
		t.Errorf("expected 0 outside the set pixel, got %f", img.At(0, 0))
	}
}

func TestDownsample(t *testing.T) {
	img := grid.NewReal2D(4, 8)
	for i := range img.Data {
		img.Data[i] = 2.0
	}
	small := Downsample(img, 4)
	if small.Cols > 4 {
		t.Fatalf("columns not reduced: %d", small.Cols)
	}
	for _, v := range small.Data {
		if v != 2.0 {
			t.Errorf("block average of constant image should stay constant, got %f", v)
		}
	}

	if got := Downsample(img, 16); got != img {
		t.Error("small image should be returned unchanged")
	}
}

func TestCanvasLineStaysInBounds(t *testing.T) {
	c := NewCanvas(10, 5)
	c.DrawLine(-5, -5, 50, 50)
	s := c.String()
	if len(strings.Split(strings.TrimRight(s, "\n"), "\n")) != 5 {
		t.Error("canvas height changed")
	}
}

func TestVectorFieldZeroField(t *testing.T) {
	vy := grid.NewReal2D(2, 2)
	vx := grid.NewReal2D(2, 2)
	out := VectorField(vy, vx, 8)
	if out == "" {
		t.Error("expected non-empty rendering")
	}
}
