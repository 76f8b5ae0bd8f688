package pipeline

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/emsim-dev/emsim/internal/grid"
)

// Accumulator folds per-frozen-phonon results into running sums and
// normalizes them by the ensemble size. Add is safe to call from
// concurrent runs; the sum is commutative, so contribution order does not
// matter.
type Accumulator struct {
	mu      sync.Mutex
	numFP   int
	saveCoM bool
	out     *grid.Real3D
	com     *grid.Real3D
}

func NewAccumulator(numFP int, saveCoM bool) *Accumulator {
	return &Accumulator{numFP: numFP, saveCoM: saveCoM}
}

// Add folds one run's output (and center-of-mass signal, when tracked)
// into the running sums. The first contribution initializes the sums.
func (a *Accumulator) Add(out, com *grid.Real3D) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.out == nil {
		a.out = &grid.Real3D{D0: out.D0, D1: out.D1, D2: out.D2, Data: append([]float64(nil), out.Data...)}
		if a.saveCoM {
			a.com = &grid.Real3D{D0: com.D0, D1: com.D1, D2: com.D2, Data: append([]float64(nil), com.Data...)}
		}
		return nil
	}
	if len(a.out.Data) != len(out.Data) {
		return fmt.Errorf("pipeline: output shape changed between frozen phonons")
	}
	floats.Add(a.out.Data, out.Data)
	if a.saveCoM {
		floats.Add(a.com.Data, com.Data)
	}
	return nil
}

// Finalize divides the sums by the frozen-phonon count and returns them.
// The output average is coherent; the center-of-mass average uses the same
// divisor but is an incoherent average, since CoM derives from squared
// intensities rather than the summed wave.
func (a *Accumulator) Finalize() (*grid.Real3D, *grid.Real3D, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.out == nil {
		return nil, nil, fmt.Errorf("pipeline: no frozen-phonon results accumulated")
	}
	inv := 1.0 / float64(a.numFP)
	floats.Scale(inv, a.out.Data)
	if a.saveCoM {
		floats.Scale(inv, a.com.Data)
	}
	return a.out, a.com, nil
}
