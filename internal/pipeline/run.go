package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/emsim-dev/emsim/internal/config"
	"github.com/emsim-dev/emsim/internal/store"
)

// Progress is reported to the observer after each completed output stage.
type Progress struct {
	FP, NumFP     int
	Step, Steps   int
	Tag           string
	MeanIntensity float64
}

// Observer receives progress updates. It is called from whichever
// goroutine finished the run, so implementations must be safe for
// concurrent use when parallel mode is on.
type Observer func(Progress)

// Runner executes one full invocation: all frozen-phonon runs, the series
// sweep when configured, and output finalization.
type Runner struct {
	state *State
	alg   Algorithm
	acc   *Accumulator

	scratchMu sync.Mutex
	outDims   []int
	comDims   []int

	observer Observer
	log      *logrus.Entry
}

func NewRunner(cfg *config.Config) (*Runner, error) {
	if cfg.Algorithm == config.AlgorithmMultislice {
		// in case it is accidentally set; multislice has no compact basis
		cfg.ImportSMatrix = false
	}
	s, err := NewState(cfg)
	if err != nil {
		return nil, err
	}
	alg, err := NewAlgorithm(cfg)
	if err != nil {
		return nil, err
	}
	return &Runner{state: s, alg: alg, log: s.log}, nil
}

func (r *Runner) SetObserver(fn Observer) { r.observer = fn }

// State exposes the invocation context, mainly for inspection after Run.
func (r *Runner) State() *State { return r.state }

// Run executes the whole invocation. Any stage failure is fatal: the
// returned error aborts everything and no partial output is valid.
func (r *Runner) Run(ctx context.Context) error {
	cfg := r.state.Cfg

	f, err := store.Create(cfg.FilenameOutput)
	if err != nil {
		return err
	}
	r.state.File = f

	seeds := NewSeedSequence(cfg.Seed).Take(cfg.NumFP)

	if cfg.SimSeries {
		err = r.runSeries(ctx, seeds)
	} else {
		err = r.runPlain(ctx, seeds)
	}
	if err != nil {
		return err
	}

	if err := f.WriteMetadata(cfg); err != nil {
		return err
	}
	r.log.Info("calculation complete")
	return f.Close()
}

func (r *Runner) forEachFP(ctx context.Context, seeds []int64, run func(ctx context.Context, fp int, seed int64) error) error {
	if r.state.Cfg.Parallel {
		g, gctx := errgroup.WithContext(ctx)
		for fp, seed := range seeds {
			fp, seed := fp, seed
			g.Go(func() error { return run(gctx, fp, seed) })
		}
		return g.Wait()
	}
	for fp, seed := range seeds {
		if err := run(ctx, fp, seed); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runPlain(ctx context.Context, seeds []int64) error {
	cfg := r.state.Cfg
	r.state.updateAberrations()
	r.acc = NewAccumulator(cfg.NumFP, cfg.SaveDPCCoM)

	if err := r.forEachFP(ctx, seeds, r.runFP); err != nil {
		return err
	}

	r.log.Info("all frozen phonon configurations complete, writing output")
	out, com, err := r.acc.Finalize()
	if err != nil {
		return err
	}
	if err := r.state.File.WriteDataset("stem/realslices/output",
		[]int{out.D0, out.D1, out.D2}, out.Data); err != nil {
		return err
	}
	if cfg.SaveDPCCoM {
		if err := r.state.File.WriteDataset("stem/realslices/DPC_CoM",
			[]int{com.D0, com.D1, com.D2}, com.Data); err != nil {
			return err
		}
	}
	return nil
}

// runFP executes the stage sequence for one frozen-phonon run: potential,
// scattering matrix where the algorithm has one, output, accumulate.
func (r *Runner) runFP(ctx context.Context, fp int, seed int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rs := r.state.runCopy()
	rs.FPIndex = fp
	rs.Seed = seed
	rs.Aberrations = r.state.Aberrations
	rs.log = r.log.WithFields(logrus.Fields{"fp": fp, "seed": seed})
	rs.log.Info("frozen phonon")

	rng := rand.New(rand.NewSource(seed))
	rs.Atoms = rs.Cell.Displace(rng, rs.Cfg.IncludeThermalEffects, rs.Cfg.IncludeOccupancy)

	if err := r.alg.PreparePotential(rs); err != nil {
		return err
	}
	if err := r.alg.PrepareSMatrix(rs); err != nil {
		return err
	}
	if err := r.alg.ComputeOutput(rs); err != nil {
		return err
	}
	if err := r.acc.Add(rs.Output, rs.CoM); err != nil {
		return err
	}
	r.notify(rs, 0, 1)
	return nil
}

func (r *Runner) runSeries(ctx context.Context, seeds []int64) error {
	if err := r.forEachFP(ctx, seeds, r.seriesRunFP); err != nil {
		return err
	}
	return r.finalizeSeries()
}

// seriesRunFP amortizes the expensive stages: potential and scattering
// matrix are computed once per frozen phonon, then every series point
// reuses them with re-derived aberrations and refocus.
func (r *Runner) seriesRunFP(ctx context.Context, fp int, seed int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rs := r.state.runCopy()
	rs.FPIndex = fp
	rs.Seed = seed
	rs.log = r.log.WithFields(logrus.Fields{"fp": fp, "seed": seed})
	rs.log.Info("frozen phonon")

	rng := rand.New(rand.NewSource(seed))
	rs.Atoms = rs.Cell.Displace(rng, rs.Cfg.IncludeThermalEffects, rs.Cfg.IncludeOccupancy)

	if err := r.alg.PreparePotential(rs); err != nil {
		return err
	}
	if err := r.alg.PrepareSMatrix(rs); err != nil {
		return err
	}

	for i, tag := range rs.Cfg.SeriesTags {
		if err := ctx.Err(); err != nil {
			return err
		}
		rs.log.WithFields(logrus.Fields{"step": i, "tag": tag}).Info("series iteration")
		rs.CurrentTag = tag
		rs.Cfg.ProbeDefocus = rs.Cfg.SeriesVals[i]
		// aberration update must precede refocus: the shift depends on
		// the updated defocus term
		rs.updateAberrations()
		if rf, ok := r.alg.(Refocuser); ok && rs.Cfg.MatrixRefocus {
			rf.Refocus(rs)
		}
		if err := r.alg.ComputeOutput(rs); err != nil {
			return err
		}
		if err := r.accumulateScratch(tag, rs); err != nil {
			return err
		}
		r.notify(rs, i, len(rs.Cfg.SeriesTags))
	}
	return nil
}

func (r *Runner) accumulateScratch(tag string, rs *State) error {
	r.scratchMu.Lock()
	defer r.scratchMu.Unlock()
	if r.state.Scratch == nil {
		r.log.Info("creating scratch store")
		sc, err := store.CreateScratch(rs.Cfg.FilenameOutput + "_scratch")
		if err != nil {
			return err
		}
		r.state.Scratch = sc
		r.outDims = []int{rs.Output.D0, rs.Output.D1, rs.Output.D2}
		r.comDims = []int{rs.CoM.D0, rs.CoM.D1, rs.CoM.D2}
	}
	if err := r.state.Scratch.Accumulate(tag, rs.Output.Data); err != nil {
		return err
	}
	if rs.Cfg.SaveDPCCoM {
		if err := r.state.Scratch.Accumulate(tag+"_DPC", rs.CoM.Data); err != nil {
			return err
		}
	}
	return nil
}

// finalizeSeries reads each tag's accumulated arrays back, averages over
// the frozen-phonon count, persists the per-tag result, and deletes the
// scratch store. Series points never mix: each tag is finalized on its
// own.
func (r *Runner) finalizeSeries() error {
	cfg := r.state.Cfg
	sc := r.state.Scratch
	if sc == nil {
		return fmt.Errorf("pipeline: series run produced no scratch data")
	}
	inv := 1.0 / float64(cfg.NumFP)

	for _, tag := range cfg.SeriesTags {
		out, err := sc.Read(tag)
		if err != nil {
			return err
		}
		floats.Scale(inv, out)
		if err := r.state.File.WriteDataset("stem/series/"+tag, r.outDims, out); err != nil {
			return err
		}
		if err := sc.Release(tag); err != nil {
			return err
		}

		if cfg.SaveDPCCoM {
			com, err := sc.Read(tag + "_DPC")
			if err != nil {
				return err
			}
			// incoherent average: CoM derives from squared intensities
			floats.Scale(inv, com)
			if err := r.state.File.WriteDataset("stem/series/"+tag+"_DPC", r.comDims, com); err != nil {
				return err
			}
			if err := sc.Release(tag + "_DPC"); err != nil {
				return err
			}
		}
	}

	r.state.Scratch = nil
	return sc.Remove()
}

func (r *Runner) notify(rs *State, step, steps int) {
	if r.observer == nil {
		return
	}
	mean := 0.0
	if n := len(rs.Output.Data); n > 0 {
		mean = floats.Sum(rs.Output.Data) / float64(n)
	}
	r.observer(Progress{
		FP:            rs.FPIndex,
		NumFP:         rs.Cfg.NumFP,
		Step:          step,
		Steps:         steps,
		Tag:           rs.CurrentTag,
		MeanIntensity: mean,
	})
}
