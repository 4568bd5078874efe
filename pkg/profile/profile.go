// Package profile records per-frame scheduler activity and plots it.
package profile

import (
	"errors"
	"github.com/thelolagemann/devsched/internal/machine"
	"github.com/thelolagemann/devsched/internal/scheduler"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
	"image/color"
	"io"
	"sync"
	"time"
)

// ErrNoSamples is returned when plotting a profiler that has not
// recorded anything.
var ErrNoSamples = errors.New("profile: no samples")

// DefaultLimit is the number of frames kept by default.
const DefaultLimit = 100

// Sample is the scheduler activity of a single frame.
type Sample struct {
	Frame          uint64
	Timeslices     uint64
	TimersExecuted uint64
	Aborts         uint64
	ActiveTimers   int
	Wall           time.Duration
}

// Profiler keeps the samples of the most recent frames. Record may be
// called from the machine's goroutine while another goroutine plots.
type Profiler struct {
	mu      sync.Mutex
	samples []Sample
	limit   int

	last     scheduler.Stats
	lastWall time.Time
	now      func() time.Time
}

// New returns a profiler keeping the last limit frames. A limit of 0
// uses DefaultLimit.
func New(limit int) *Profiler {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Profiler{limit: limit, now: time.Now}
}

// Record adds the frame described by snap. Counters are stored as the
// difference from the previously recorded frame.
func (p *Profiler) Record(snap machine.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	s := Sample{
		Frame:          snap.Frame,
		Timeslices:     snap.Scheduler.Timeslices - p.last.Timeslices,
		TimersExecuted: snap.Scheduler.TimersExecuted - p.last.TimersExecuted,
		Aborts:         snap.Scheduler.Aborts - p.last.Aborts,
		ActiveTimers:   snap.Scheduler.ActiveTimers,
	}
	if !p.lastWall.IsZero() {
		s.Wall = now.Sub(p.lastWall)
	}
	p.last = snap.Scheduler
	p.lastWall = now

	if len(p.samples) == p.limit {
		copy(p.samples, p.samples[1:])
		p.samples = p.samples[:len(p.samples)-1]
	}
	p.samples = append(p.samples, s)
}

// Samples returns a copy of the recorded samples, oldest first.
func (p *Profiler) Samples() []Sample {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Sample(nil), p.samples...)
}

// Plot builds a plot of timeslices, executed timers and active timers
// per frame.
func (p *Profiler) Plot() (*plot.Plot, error) {
	samples := p.Samples()
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	pl := plot.New()
	pl.Title.Text = "Scheduler activity"
	pl.X.Label.Text = "Frame"
	pl.Y.Label.Text = "Count"
	pl.Add(plotter.NewGrid())

	series := []struct {
		name  string
		value func(Sample) float64
		color color.Color
	}{
		{"timeslices", func(s Sample) float64 { return float64(s.Timeslices) }, color.RGBA{R: 0xd0, A: 0xff}},
		{"timers", func(s Sample) float64 { return float64(s.TimersExecuted) }, color.RGBA{G: 0x90, A: 0xff}},
		{"active", func(s Sample) float64 { return float64(s.ActiveTimers) }, color.RGBA{B: 0xd0, A: 0xff}},
	}
	for _, sr := range series {
		xys := make(plotter.XYs, len(samples))
		for i, s := range samples {
			xys[i].X = float64(s.Frame)
			xys[i].Y = sr.value(s)
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return nil, err
		}
		line.Color = sr.color
		pl.Add(line)
		pl.Legend.Add(sr.name, line)
	}
	pl.Legend.Top = true

	return pl, nil
}

// WritePNG draws the plot as a PNG image of the given size.
func (p *Profiler) WritePNG(w io.Writer, width, height vg.Length) error {
	pl, err := p.Plot()
	if err != nil {
		return err
	}

	c := vgimg.New(width, height)
	pl.Draw(draw.New(c))
	_, err = vgimg.PngCanvas{Canvas: c}.WriteTo(w)
	return err
}

// Save writes the plot to path, in the format given by its extension.
func (p *Profiler) Save(path string, width, height vg.Length) error {
	pl, err := p.Plot()
	if err != nil {
		return err
	}
	return pl.Save(width, height, path)
}
