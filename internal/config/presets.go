package config

// Presets are named starting configurations for common experiment shapes.
var presets = map[string]func(*Config){
	"quick": func(c *Config) {
		c.NumFP = 1
		c.PixelSizeX = 0.2
		c.PixelSizeY = 0.2
		c.ProbeStepX = 1.0
		c.ProbeStepY = 1.0
	},
	"dpc": func(c *Config) {
		c.SaveDPCCoM = true
		c.NumFP = 4
	},
	"defocus-series": func(c *Config) {
		c.SimSeries = true
		c.SeriesTags = []string{"df-100", "df0", "df100"}
		c.SeriesVals = []float64{-100.0, 0.0, 100.0}
	},
	"prism": func(c *Config) {
		c.Algorithm = AlgorithmPRISM
		c.InterpolationFactor = 4
		c.MatrixRefocus = true
	},
}

// GetPreset returns a fresh config with the named preset applied, or nil if
// the preset does not exist.
func GetPreset(name string) *Config {
	fn, ok := presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	fn(cfg)
	return cfg
}

// ListPresets returns the available preset names.
func ListPresets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	return names
}
