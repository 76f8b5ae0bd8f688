// Package pipeline sequences the simulation stages: potential calculation,
// scattering-matrix construction, and output propagation, across
// frozen-phonon ensembles and optical-parameter series.
package pipeline

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/emsim-dev/emsim/internal/aberration"
	"github.com/emsim-dev/emsim/internal/config"
	"github.com/emsim-dev/emsim/internal/grid"
	"github.com/emsim-dev/emsim/internal/kernel"
	"github.com/emsim-dev/emsim/internal/sample"
	"github.com/emsim-dev/emsim/internal/store"
)

// State is the mutable context of one simulation invocation: metadata, the
// current aberration set, per-run intermediate artifacts, and the running
// ensemble accumulators. It is owned by a single invocation; parallel
// frozen-phonon runs work on copies from runCopy.
type State struct {
	Cfg    *config.Config
	Lambda float64

	Cell *sample.Cell
	Geo  kernel.Geometry
	Rec  *grid.Reciprocal

	BaseAberrations []aberration.Aberration
	Aberrations     []aberration.Aberration

	// per-run artifacts
	Atoms   []sample.Atom
	Pot     *grid.Real3D
	SMatrix *kernel.SMatrix
	Output  *grid.Real3D
	CoM     *grid.Real3D

	// defocus shift already applied to the scattering matrix, so series
	// steps refocus by the difference rather than compounding shifts
	appliedDefocus float64

	FPIndex    int
	Seed       int64
	CurrentTag string

	File    *store.File
	Scratch *store.Scratch

	log *logrus.Entry
}

// NewState builds the invocation context from validated configuration:
// sample model, sampling geometry, reciprocal grid, wavelength, and the
// base aberration set.
func NewState(cfg *config.Config) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.FilenameAtoms == "" {
		return nil, fmt.Errorf("pipeline: no atoms file configured")
	}
	cell, err := sample.Load(cfg.FilenameAtoms)
	if err != nil {
		return nil, err
	}
	cell = cell.Tile(cfg.TileX, cfg.TileY, cfg.TileZ)

	s := &State{
		Cfg:    cfg,
		Lambda: cfg.Wavelength(),
		Cell:   cell,
		Geo:    kernel.NewGeometry(cell, cfg),
		log:    logrus.WithField("algorithm", cfg.Algorithm),
	}
	s.Rec = grid.NewReciprocal(s.Geo.NY, s.Geo.NX, s.Geo.PixelY, s.Geo.PixelX)

	if cfg.AberrationFile != "" {
		terms, lines, err := aberration.ParseFile(cfg.AberrationFile)
		if err != nil {
			return nil, err
		}
		s.BaseAberrations = terms
		s.log.WithFields(logrus.Fields{
			"terms": len(terms),
			"lines": lines,
			"file":  cfg.AberrationFile,
		}).Info("extracted aberrations")
	}
	return s, nil
}

// runCopy returns a State for one frozen-phonon run: shared geometry and
// store handles, private config and artifacts.
func (s *State) runCopy() *State {
	rs := *s
	cfg := *s.Cfg
	rs.Cfg = &cfg
	rs.Atoms = nil
	rs.Pot = nil
	rs.SMatrix = nil
	rs.Output = nil
	rs.CoM = nil
	rs.appliedDefocus = 0
	return &rs
}

// applyRefocus shifts the scattering matrix to the current defocus. The
// shift is applied relative to what the matrix already carries.
func (s *State) applyRefocus() {
	if s.SMatrix == nil {
		return
	}
	delta := s.Cfg.ProbeDefocus - s.appliedDefocus
	if delta == 0 {
		return
	}
	kernel.Refocus(s.SMatrix, s.Lambda, delta)
	s.appliedDefocus = s.Cfg.ProbeDefocus
}

// updateAberrations re-derives the current aberration set from the base
// set and the explicit override scalars.
func (s *State) updateAberrations() {
	s.Aberrations = aberration.Update(s.BaseAberrations,
		s.Cfg.ProbeDefocus, s.Cfg.C3, s.Cfg.C5, s.Lambda)
}
