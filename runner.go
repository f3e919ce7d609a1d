package vatblend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/airbusgeo/vatblend/log"
	"github.com/tbonfort/gobs"
	"go.uber.org/zap"
)

// A Unit is an independent piece of work: one source raster, or one tile of it
type Unit struct {
	// Name identifies the unit in logs and reports
	Name   string
	Source string
	// Tile restricts the read to an extent of Source, and switches outputs to
	// tile naming. Nil processes the whole raster.
	Tile   *Extent
	OutDir string
	// Stem is the source name used for non tiled outputs
	Stem string
}

// Status of a processed unit
type Status int

const (
	Done Status = iota
	Skipped
	Failed
)

func (s Status) String() string {
	switch s {
	case Done:
		return "done"
	case Skipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Result reports the outcome of a unit
type Result struct {
	Unit     string
	Status   Status
	Written  []string
	Err      error
	Duration time.Duration
}

// Report lists the results of a batch in completion order
type Report struct {
	Results []Result
}

func (r Report) count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

func (r Report) Done() int    { return r.count(Done) }
func (r Report) Skipped() int { return r.count(Skipped) }
func (r Report) Failed() int  { return r.count(Failed) }

// Err summarizes the failed units, or returns nil if there were none
func (r Report) Err() error {
	var msgs []string
	for _, res := range r.Results {
		if res.Status == Failed {
			msgs = append(msgs, fmt.Sprintf("%s: %v", res.Unit, res.Err))
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("%d/%d units failed: %s", len(msgs), len(r.Results), strings.Join(msgs, "; "))
}

// Runner processes units of work on a bounded worker pool
type Runner struct {
	Dispatcher Dispatcher
	Graph      *Graph
	Sink       RasterSink
	Store      Store
	Workers    int
}

type job struct {
	unit    Unit
	plan    Plan
	outputs []Output
}

// Run renders the requested products for every unit. Invalid requests are
// rejected before any raster is read. Units whose outputs all exist are
// skipped, the others only produce their missing outputs. A failing unit does
// not stop the others; failures are listed in the returned report.
func (r Runner) Run(ctx context.Context, units []Unit, products ...string) (Report, error) {
	if len(products) == 0 {
		return Report{}, invalidArgumentf("no product requested")
	}
	plan, err := r.Graph.Plan(products...)
	if err != nil {
		return Report{}, err
	}
	if _, err := r.Dispatcher.Buffer(plan.Keys); err != nil {
		return Report{}, err
	}
	workers := r.Workers
	if workers < 1 {
		workers = 1
	}
	logger := log.Logger(ctx)

	report := Report{}
	var jobs []job
	for _, u := range units {
		j, err := r.pending(ctx, u, plan)
		if err != nil {
			report.Results = append(report.Results, Result{Unit: u.Name, Status: Failed, Err: err})
			logger.Error("unit failed", zap.String("unit", u.Name), zap.Error(err))
			continue
		}
		if len(j.outputs) == 0 {
			report.Results = append(report.Results, Result{Unit: u.Name, Status: Skipped})
			logger.Info("outputs already exist, skipping", zap.String("unit", u.Name))
			continue
		}
		jobs = append(jobs, j)
	}

	results := make(chan Result, len(jobs))
	go func() {
		pool := gobs.NewPool(workers)
		batch := pool.Batch()
		for _, j := range jobs {
			j := j
			batch.Submit(func() error {
				results <- r.process(ctx, j)
				return nil
			})
		}
		_ = batch.Wait()
		close(results)
	}()
	for res := range results {
		report.Results = append(report.Results, res)
		switch res.Status {
		case Done:
			logger.Info("unit done", zap.String("unit", res.Unit),
				zap.Strings("outputs", res.Written), zap.Duration("took", res.Duration))
		default:
			logger.Error("unit failed", zap.String("unit", res.Unit), zap.Error(res.Err))
		}
	}
	return report, nil
}

// pending returns the outputs of u that do not exist yet, and the plan
// restricted to the products producing them
func (r Runner) pending(ctx context.Context, u Unit, plan Plan) (job, error) {
	j := job{unit: u}
	var ids []string
	for _, p := range plan.Requested {
		missing := false
		for _, o := range u.Outputs(p) {
			ok, err := r.Store.Exists(ctx, o.Path)
			if err != nil {
				return j, IOError(o.Path, err)
			}
			if !ok {
				j.outputs = append(j.outputs, o)
				missing = true
			}
		}
		if missing {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return j, nil
	}
	sub, err := r.Graph.Plan(ids...)
	if err != nil {
		return j, err
	}
	j.plan = sub
	return j, nil
}

func (r Runner) process(ctx context.Context, j job) Result {
	start := time.Now()
	res := Result{Unit: j.unit.Name, Status: Failed}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	ctx = log.With(ctx, zap.String("unit", j.unit.Name))
	derivs, err := r.Dispatcher.Compute(ctx, j.unit.Source, j.unit.Tile, j.plan.Keys)
	if err != nil {
		res.Err = err
		return res
	}
	arena := NewArena(r.Graph, derivs)
	for _, o := range j.outputs {
		img, err := arena.Get(o.Product.ID)
		if err != nil {
			res.Err = err
			return res
		}
		if err := r.write(ctx, derivs.Window.Profile, o, img); err != nil {
			res.Err = err
			return res
		}
		res.Written = append(res.Written, o.Path)
	}
	res.Status = Done
	res.Duration = time.Since(start)
	return res
}

func (r Runner) write(ctx context.Context, base Profile, o Output, img Image) error {
	profile := base.WithData(img, o.DataType)
	if o.DataType == Float32 {
		return r.Sink.WriteFloat32(ctx, o.Path, profile, img)
	}
	bands, err := ByteScale(img, o.ByteRange.Min, o.ByteRange.Max)
	if err != nil {
		return fmt.Errorf("byte scale %s: %w", o.Product.ID, err)
	}
	return r.Sink.WriteByte(ctx, o.Path, profile, bands)
}

// IsConfigError reports whether err invalidates a whole batch, as opposed to a
// single unit
func IsConfigError(err error) bool {
	var ce ErrConfiguration
	var ia ErrInvalidArgument
	return errors.As(err, &ce) || errors.As(err, &ia)
}
