package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/emsim-dev/emsim/internal/aberration"
	"github.com/emsim-dev/emsim/internal/config"
	"github.com/emsim-dev/emsim/internal/grid"
	"github.com/emsim-dev/emsim/internal/pipeline"
	"github.com/emsim-dev/emsim/internal/store"
	"github.com/emsim-dev/emsim/internal/viz"
)

var (
	configFile     string
	preset         string
	algorithm      string
	atomsFile      string
	outputFile     string
	numFP          int
	seed           int64
	defocus        float64
	c3             float64
	c5             float64
	aberrationFile string
	seriesTags     []string
	seriesVals     []float64
	saveDPC        bool
	parallel       bool
	noThermal      bool
	live           bool
	verbose        bool
	// plot options
	plotBin  int
	plotBins int
	plotRow  int
	plotDPC  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "emsim",
		Short: "scanning transmission electron microscopy image simulation",
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a simulation",
		RunE:  runSimulation,
	}
	runCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	runCmd.Flags().StringVar(&preset, "preset", "", "start from a named preset")
	runCmd.Flags().StringVar(&algorithm, "algorithm", "", "multislice or prism")
	runCmd.Flags().StringVar(&atomsFile, "atoms", "", "atomic coordinates file")
	runCmd.Flags().StringVarP(&outputFile, "output", "o", "", "output file")
	runCmd.Flags().IntVar(&numFP, "fp", 0, "number of frozen phonon configurations")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 derives one from the clock)")
	runCmd.Flags().Float64Var(&defocus, "defocus", 0, "probe defocus in angstroms")
	runCmd.Flags().Float64Var(&c3, "c3", 0, "third order spherical aberration")
	runCmd.Flags().Float64Var(&c5, "c5", 0, "fifth order spherical aberration")
	runCmd.Flags().StringVar(&aberrationFile, "aberrations", "", "aberration coefficient file")
	runCmd.Flags().StringSliceVar(&seriesTags, "series-tags", nil, "defocus series output tags")
	runCmd.Flags().Float64SliceVar(&seriesVals, "series-vals", nil, "defocus series values")
	runCmd.Flags().BoolVar(&saveDPC, "dpc", false, "save center-of-mass maps")
	runCmd.Flags().BoolVar(&parallel, "parallel", false, "run configurations in parallel")
	runCmd.Flags().BoolVar(&noThermal, "no-thermal", false, "disable thermal displacements")
	runCmd.Flags().BoolVar(&live, "live", false, "live progress view")

	describeCmd := &cobra.Command{
		Use:   "describe [file]",
		Short: "describe a result file",
		Args:  cobra.ExactArgs(1),
		RunE:  describeRun,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [file] [dataset]",
		Short: "plot a stored dataset",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntVar(&plotBin, "bin", -1, "single detector bin to image")
	plotCmd.Flags().IntVar(&plotBins, "bins", 0, "integrate the first N bins")
	plotCmd.Flags().IntVar(&plotRow, "row", -1, "trace one scan row instead of imaging")
	plotCmd.Flags().BoolVar(&plotDPC, "dpc", false, "render the center-of-mass deflection field")

	listCmd := &cobra.Command{
		Use:   "list [dir]",
		Short: "list result files in a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listRuns,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range config.ListPresets() {
				fmt.Println(p)
			}
			return nil
		},
	}

	aberrationsCmd := &cobra.Command{
		Use:   "aberrations [file]",
		Short: "inspect an aberration coefficient file",
		Args:  cobra.ExactArgs(1),
		RunE:  showAberrations,
	}

	configCmd := &cobra.Command{
		Use:   "config [file]",
		Short: "write a default config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if preset != "" {
				if cfg = config.GetPreset(preset); cfg == nil {
					return fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
				}
			}
			return config.Save(args[0], cfg)
		},
	}
	configCmd.Flags().StringVar(&preset, "preset", "", "start from a named preset")

	rootCmd.AddCommand(runCmd, describeCmd, plotCmd, listCmd, presetsCmd, aberrationsCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	// CLI flags override preset and config file
	if cmd.Flags().Changed("algorithm") {
		cfg.Algorithm = algorithm
	}
	if cmd.Flags().Changed("atoms") {
		cfg.FilenameAtoms = atomsFile
	}
	if cmd.Flags().Changed("output") {
		cfg.FilenameOutput = outputFile
	}
	if cmd.Flags().Changed("fp") {
		cfg.NumFP = numFP
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = seed
	}
	if cmd.Flags().Changed("defocus") {
		cfg.ProbeDefocus = defocus
	}
	if cmd.Flags().Changed("c3") {
		cfg.C3 = c3
	}
	if cmd.Flags().Changed("c5") {
		cfg.C5 = c5
	}
	if cmd.Flags().Changed("aberrations") {
		cfg.AberrationFile = aberrationFile
	}
	if cmd.Flags().Changed("series-tags") {
		cfg.SimSeries = true
		cfg.SeriesTags = seriesTags
	}
	if cmd.Flags().Changed("series-vals") {
		cfg.SimSeries = true
		cfg.SeriesVals = seriesVals
	}
	if cmd.Flags().Changed("dpc") {
		cfg.SaveDPCCoM = saveDPC
	}
	if cmd.Flags().Changed("parallel") {
		cfg.Parallel = parallel
	}
	if cmd.Flags().Changed("no-thermal") {
		cfg.IncludeThermalEffects = !noThermal
	}

	return cfg, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	runner, err := pipeline.NewRunner(cfg)
	if err != nil {
		return err
	}

	start := time.Now()

	if live {
		if err := runLive(runner, cfg); err != nil {
			return err
		}
	} else {
		runner.SetObserver(func(p pipeline.Progress) {
			logrus.WithFields(logrus.Fields{
				"fp":        p.FP + 1,
				"of":        p.NumFP,
				"tag":       p.Tag,
				"intensity": fmt.Sprintf("%.6g", p.MeanIntensity),
			}).Info("configuration complete")
		})
		if err := runner.Run(context.Background()); err != nil {
			return err
		}
	}

	fmt.Printf("completed in %v\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("output: %s\n", cfg.FilenameOutput)
	return nil
}

func runLive(runner *pipeline.Runner, cfg *config.Config) error {
	updates := make(chan pipeline.Progress, 16)
	done := make(chan error, 1)
	runner.SetObserver(func(p pipeline.Progress) { updates <- p })

	go func() {
		done <- runner.Run(context.Background())
		close(updates)
	}()

	total := cfg.NumFP
	if cfg.SimSeries {
		total *= len(cfg.SeriesTags)
	}
	title := fmt.Sprintf("emsim %s", cfg.Algorithm)
	model := viz.NewLiveModel(title, total, updates, done)

	final, err := tea.NewProgram(model).Run()
	if err != nil {
		return err
	}
	if m, ok := final.(viz.LiveModel); ok {
		return m.Err()
	}
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tALGORITHM\tATOMS\tFP\tSERIES")
	found := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		f, err := store.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		cfg, err := f.ReadMetadata()
		if err != nil {
			continue
		}
		found++
		series := "-"
		if cfg.SimSeries {
			series = strings.Join(cfg.SeriesTags, ",")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			e.Name(), cfg.Algorithm, cfg.FilenameAtoms, cfg.NumFP, series)
	}
	if found == 0 {
		fmt.Println("no result files found")
		return nil
	}
	return w.Flush()
}

func describeRun(cmd *cobra.Command, args []string) error {
	f, err := store.Open(args[0])
	if err != nil {
		return err
	}

	cfg, err := f.ReadMetadata()
	if err != nil {
		return err
	}

	fmt.Println(viz.HeaderStyle.Render(args[0]))
	fmt.Println(viz.Field("algorithm", cfg.Algorithm))
	fmt.Println(viz.Field("atoms", cfg.FilenameAtoms))
	fmt.Println(viz.Field("energy (keV)", fmt.Sprintf("%.1f", cfg.E0)))
	fmt.Println(viz.Field("wavelength (A)", fmt.Sprintf("%.6f", cfg.Wavelength())))
	fmt.Println(viz.Field("defocus (A)", fmt.Sprintf("%.1f", cfg.ProbeDefocus)))
	fmt.Println(viz.Field("frozen phonons", fmt.Sprintf("%d", cfg.NumFP)))
	if cfg.SimSeries {
		fmt.Println(viz.Field("series tags", strings.Join(cfg.SeriesTags, ", ")))
	}

	names, err := f.Datasets()
	if err != nil {
		return err
	}
	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATASET\tDIMS")
	for _, name := range names {
		dims, _, err := f.ReadDataset(name)
		if err != nil {
			// complex datasets are listed without dims
			fmt.Fprintf(w, "%s\t(complex)\n", name)
			continue
		}
		parts := make([]string, len(dims))
		for i, d := range dims {
			parts[i] = fmt.Sprintf("%d", d)
		}
		fmt.Fprintf(w, "%s\t%s\n", name, strings.Join(parts, "x"))
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	f, err := store.Open(args[0])
	if err != nil {
		return err
	}

	if plotDPC {
		name := "stem/realslices/DPC_CoM"
		if len(args) > 1 {
			name = args[1]
		}
		dims, data, err := f.ReadDataset(name)
		if err != nil {
			return err
		}
		if len(dims) != 3 || dims[0] != 2 {
			return fmt.Errorf("dataset %s is not a 2-component field", name)
		}
		com := &grid.Real3D{D0: dims[0], D1: dims[1], D2: dims[2], Data: data}
		fmt.Println(viz.VectorField(com.Slice(1), com.Slice(0), 8))
		return nil
	}

	name := "stem/realslices/output"
	if len(args) > 1 {
		name = args[1]
	}

	dims, data, err := f.ReadDataset(name)
	if err != nil {
		return err
	}
	if len(dims) != 3 {
		return fmt.Errorf("dataset %s has rank %d, expected 3", name, len(dims))
	}
	out := &grid.Real3D{D0: dims[0], D1: dims[1], D2: dims[2], Data: data}

	fmt.Println(viz.BinProfile(out, "mean intensity per detector bin"))
	fmt.Println()

	if plotRow >= 0 {
		if plotRow >= out.D0 {
			return fmt.Errorf("row %d out of range (%d rows)", plotRow, out.D0)
		}
		bin := plotBin
		if bin < 0 {
			bin = 0
		}
		fmt.Println(viz.LineTrace(out, bin, plotRow))
		return nil
	}

	var img *grid.Real2D
	switch {
	case plotBin >= 0:
		if plotBin >= out.D2 {
			return fmt.Errorf("bin %d out of range (%d bins)", plotBin, out.D2)
		}
		img = viz.BinImage(out, plotBin)
	case plotBins > 0:
		img = viz.Integrated(out, 0, plotBins)
	default:
		img = viz.Integrated(out, 0, out.D2)
	}
	fmt.Println(viz.Heatmap(viz.Downsample(img, 64)))
	return nil
}

func showAberrations(cmd *cobra.Command, args []string) error {
	terms, lines, err := aberration.ParseFile(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%d terms (%d lines)\n\n", len(terms), lines)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "M\tN\tMAGNITUDE\tANGLE")
	for _, t := range terms {
		fmt.Fprintf(w, "%d\t%d\t%.6g\t%.2f\n", t.M, t.N, t.Mag, t.Angle)
	}
	return w.Flush()
}
