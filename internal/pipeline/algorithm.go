package pipeline

import (
	"fmt"

	"github.com/emsim-dev/emsim/internal/aberration"
	"github.com/emsim-dev/emsim/internal/config"
	"github.com/emsim-dev/emsim/internal/grid"
	"github.com/emsim-dev/emsim/internal/kernel"
	"github.com/emsim-dev/emsim/internal/store"
)

// Algorithm is one propagation strategy. Stage methods mutate the run
// state: PreparePotential fills Pot, PrepareSMatrix fills SMatrix (a no-op
// for algorithms without a compact basis), and ComputeOutput fills Output
// and CoM from the current aberration set.
type Algorithm interface {
	Name() string
	PreparePotential(s *State) error
	PrepareSMatrix(s *State) error
	ComputeOutput(s *State) error
}

// Refocuser is implemented by algorithms whose scattering matrix carries a
// defocus-dependent shift that must be re-applied at every series point.
type Refocuser interface {
	Refocus(s *State)
}

// NewAlgorithm selects the strategy for the configured algorithm name.
func NewAlgorithm(cfg *config.Config) (Algorithm, error) {
	switch cfg.Algorithm {
	case config.AlgorithmMultislice:
		return multislice{}, nil
	case config.AlgorithmPRISM:
		return prism{}, nil
	default:
		return nil, fmt.Errorf("pipeline: unknown algorithm %q", cfg.Algorithm)
	}
}

func preparePotential(s *State) error {
	if s.Cfg.ImportPotential {
		s.log.WithField("file", s.Cfg.ImportFile).Info("using precalculated potential")
		return importPotential(s)
	}
	s.Pot = kernel.ComputePotential(s.Geo, s.Atoms)
	if s.FPIndex == 0 && s.File != nil {
		dims := []int{s.Pot.D0, s.Pot.D1, s.Pot.D2}
		if err := s.File.WriteDataset("import/potential", dims, s.Pot.Data); err != nil {
			return err
		}
	}
	return nil
}

func importPotential(s *State) error {
	f, err := store.Open(s.Cfg.ImportFile)
	if err != nil {
		return err
	}
	dims, data, err := f.ReadDataset("import/potential")
	if err != nil {
		return err
	}
	if len(dims) != 3 {
		return fmt.Errorf("pipeline: imported potential has rank %d, expected 3", len(dims))
	}
	s.Pot = &grid.Real3D{D0: dims[0], D1: dims[1], D2: dims[2], Data: data}
	return nil
}

func importSMatrix(s *State) error {
	f, err := store.Open(s.Cfg.ImportFile)
	if err != nil {
		return err
	}
	dims, waves, err := f.ReadComplexDataset("import/smatrix")
	if err != nil {
		return err
	}
	if len(dims) != 3 {
		return fmt.Errorf("pipeline: imported scattering matrix has rank %d, expected 3", len(dims))
	}
	_, meta, err := f.ReadDataset("import/beams")
	if err != nil {
		return err
	}
	s.SMatrix = kernel.UnflattenSMatrix(
		&grid.Cplx3D{D0: dims[0], D1: dims[1], D2: dims[2], Data: waves}, meta)
	s.appliedDefocus = 0
	return nil
}

type multislice struct{}

func (multislice) Name() string { return config.AlgorithmMultislice }

func (multislice) PreparePotential(s *State) error { return preparePotential(s) }

func (multislice) PrepareSMatrix(s *State) error { return nil }

func (multislice) ComputeOutput(s *State) error {
	chi := aberration.Chi(s.Rec, s.Lambda, s.Aberrations)
	s.Output, s.CoM = kernel.MultisliceOutput(s.Pot, s.Rec, s.Geo, s.Cfg, s.Lambda, chi)
	return nil
}

type prism struct{}

func (prism) Name() string { return config.AlgorithmPRISM }

func (prism) PreparePotential(s *State) error {
	if s.Cfg.ImportSMatrix {
		// the imported matrix replaces the whole potential stage
		s.log.WithField("file", s.Cfg.ImportFile).Info("skipping potential; using precalculated scattering matrix")
		return nil
	}
	return preparePotential(s)
}

func (prism) PrepareSMatrix(s *State) error {
	if s.Cfg.ImportSMatrix {
		if err := importSMatrix(s); err != nil {
			return err
		}
	} else {
		s.SMatrix = kernel.ComputeSMatrix(s.Pot, s.Rec, s.Geo, s.Cfg, s.Lambda)
		s.appliedDefocus = 0
		if s.FPIndex == 0 && s.File != nil {
			waves, meta := s.SMatrix.Flatten()
			dims := []int{waves.D0, waves.D1, waves.D2}
			if err := s.File.WriteComplexDataset("import/smatrix", dims, waves.Data); err != nil {
				return err
			}
			if err := s.File.WriteDataset("import/beams", []int{len(meta) / 4, 4}, meta); err != nil {
				return err
			}
		}
	}
	if s.Cfg.MatrixRefocus {
		s.applyRefocus()
	}
	return nil
}

func (prism) Refocus(s *State) { s.applyRefocus() }

func (prism) ComputeOutput(s *State) error {
	chi := aberration.Chi(s.Rec, s.Lambda, s.Aberrations)
	s.Output, s.CoM = kernel.PRISMOutput(s.SMatrix, s.Rec, s.Geo, s.Cfg, s.Lambda, chi)
	return nil
}
