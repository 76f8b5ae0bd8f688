package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	AlgorithmMultislice = "multislice"
	AlgorithmPRISM      = "prism"
)

const (
	DefaultPixelSize      = 0.1
	DefaultE0             = 80.0
	DefaultProbeSemiangle = 20.0
	DefaultAlphaBeamMax   = 24.0
	DefaultProbeStep      = 0.25
	DefaultSliceThickness = 2.0
	DefaultNumFP          = 1
	DefaultDetectorStep   = 1.0
	DefaultInterpFactor   = 4
)

// Config is the simulation metadata: sample and sampling geometry, probe
// optics, algorithm mode flags, and output selection. Field units follow
// the conventions of the legacy format: lengths in angstroms, angles in
// mrad, beam energy in keV.
type Config struct {
	Algorithm      string `yaml:"algorithm"`
	FilenameAtoms  string `yaml:"filename_atoms"`
	FilenameOutput string `yaml:"filename_output"`

	PixelSizeX float64 `yaml:"pixel_size_x"`
	PixelSizeY float64 `yaml:"pixel_size_y"`
	TileX      int     `yaml:"tile_x"`
	TileY      int     `yaml:"tile_y"`
	TileZ      int     `yaml:"tile_z"`

	E0             float64 `yaml:"e0"`
	ProbeSemiangle float64 `yaml:"probe_semiangle"`
	AlphaBeamMax   float64 `yaml:"alpha_beam_max"`
	ProbeStepX     float64 `yaml:"probe_step_x"`
	ProbeStepY     float64 `yaml:"probe_step_y"`
	SliceThickness float64 `yaml:"slice_thickness"`

	ScanWindowXMin float64 `yaml:"scan_window_x_min"`
	ScanWindowXMax float64 `yaml:"scan_window_x_max"`
	ScanWindowYMin float64 `yaml:"scan_window_y_min"`
	ScanWindowYMax float64 `yaml:"scan_window_y_max"`

	DetectorAngleStep float64 `yaml:"detector_angle_step"`

	InterpolationFactor int  `yaml:"interpolation_factor"`
	MatrixRefocus       bool `yaml:"matrix_refocus"`

	ProbeDefocus   float64 `yaml:"probe_defocus"`
	C3             float64 `yaml:"c3"`
	C5             float64 `yaml:"c5"`
	AberrationFile string  `yaml:"aberration_file"`

	NumFP                 int   `yaml:"num_fp"`
	Seed                  int64 `yaml:"seed"`
	Parallel              bool  `yaml:"parallel"`
	IncludeThermalEffects bool  `yaml:"include_thermal_effects"`
	IncludeOccupancy      bool  `yaml:"include_occupancy"`

	ImportPotential bool   `yaml:"import_potential"`
	ImportSMatrix   bool   `yaml:"import_smatrix"`
	ImportFile      string `yaml:"import_file"`

	SimSeries  bool      `yaml:"sim_series"`
	SeriesTags []string  `yaml:"series_tags"`
	SeriesVals []float64 `yaml:"series_vals"`

	SaveDPCCoM bool `yaml:"save_dpc_com"`
}

func DefaultConfig() *Config {
	return &Config{
		Algorithm:             AlgorithmMultislice,
		FilenameOutput:        "output.emd",
		PixelSizeX:            DefaultPixelSize,
		PixelSizeY:            DefaultPixelSize,
		TileX:                 1,
		TileY:                 1,
		TileZ:                 1,
		E0:                    DefaultE0,
		ProbeSemiangle:        DefaultProbeSemiangle,
		AlphaBeamMax:          DefaultAlphaBeamMax,
		ProbeStepX:            DefaultProbeStep,
		ProbeStepY:            DefaultProbeStep,
		SliceThickness:        DefaultSliceThickness,
		ScanWindowXMax:        1.0,
		ScanWindowYMax:        1.0,
		DetectorAngleStep:     DefaultDetectorStep,
		InterpolationFactor:   DefaultInterpFactor,
		NumFP:                 DefaultNumFP,
		IncludeThermalEffects: true,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ErrConflictingImports reports both import modes enabled at once; the
// potential and scattering-matrix import paths are mutually exclusive.
var ErrConflictingImports = errors.New("config: import_potential and import_smatrix are mutually exclusive")

func (c *Config) Validate() error {
	switch c.Algorithm {
	case AlgorithmMultislice, AlgorithmPRISM:
	default:
		return fmt.Errorf("config: unknown algorithm %q", c.Algorithm)
	}
	if c.NumFP < 1 {
		return fmt.Errorf("config: num_fp must be >= 1, got %d", c.NumFP)
	}
	if c.PixelSizeX <= 0 || c.PixelSizeY <= 0 {
		return errors.New("config: pixel sizes must be positive")
	}
	if c.E0 <= 0 {
		return fmt.Errorf("config: beam energy must be positive, got %f", c.E0)
	}
	if c.ImportPotential && c.ImportSMatrix {
		return ErrConflictingImports
	}
	if (c.ImportPotential || c.ImportSMatrix) && c.ImportFile == "" {
		return errors.New("config: import mode requires import_file")
	}
	if c.ImportSMatrix && c.Algorithm != AlgorithmPRISM {
		return errors.New("config: import_smatrix requires the prism algorithm")
	}
	if c.SimSeries {
		if len(c.SeriesVals) == 0 {
			return errors.New("config: sim_series requires series_vals")
		}
		if len(c.SeriesTags) != len(c.SeriesVals) {
			return fmt.Errorf("config: series_tags (%d) and series_vals (%d) must match",
				len(c.SeriesTags), len(c.SeriesVals))
		}
	}
	if c.Algorithm == AlgorithmPRISM && c.InterpolationFactor < 1 {
		return fmt.Errorf("config: interpolation_factor must be >= 1, got %d", c.InterpolationFactor)
	}
	return nil
}

// Wavelength returns the relativistic electron wavelength in angstroms for
// the configured beam energy.
func (c *Config) Wavelength() float64 {
	const (
		me = 9.10938356e-31
		el = 1.6021766208e-19
		cl = 299792458.0
		h  = 6.62607004e-34
	)
	v := c.E0 * 1e3
	return h / math.Sqrt(2*me*el*v) / math.Sqrt(1+el*v/(2*me*cl*cl)) * 1e10
}
