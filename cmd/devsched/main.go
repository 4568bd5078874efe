package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
	"github.com/thelolagemann/devsched/internal/machine"
	"github.com/thelolagemann/devsched/internal/vtime"
	"github.com/thelolagemann/devsched/pkg/log"
	"github.com/thelolagemann/devsched/pkg/monitor"
	"github.com/thelolagemann/devsched/pkg/profile"
	"github.com/thelolagemann/devsched/pkg/savestate"
	"github.com/thelolagemann/devsched/pkg/script"
	"golang.org/x/term"
	"gonum.org/v1/plot/vg"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"time"
)

func main() {
	frames := flag.Int("frames", 60, "The number of frames to run (0 runs until interrupted)")
	stateFile := flag.String("state", "", "The state file to load")
	saveFile := flag.String("save", "", "The file to save the state to when the run ends")
	frameRate := flag.Uint64("rate", machine.FrameRate, "The frame rate of the machine in Hz")
	quantum := flag.Float64("quantum", 0, "The scheduling quantum in seconds (0 uses the default)")
	boost := flag.Float64("boost", 0, "How long, in seconds, a latch write boosts interleave for")
	realtime := flag.Bool("realtime", false, "Pace frames to the wall clock")
	monitorAddr := flag.String("monitor", "", "Serve live snapshots over websocket on this address")
	profileFile := flag.String("profile", "", "Write a plot of scheduler activity to this file")
	scriptFile := flag.String("script", "", "A Lua script to run against every frame")
	graphFile := flag.String("graph", "", "Write a graphviz dump of the pending timers when the run ends")
	dump := flag.Bool("dump", false, "Log the pending timers when the run ends")
	statsAddr := flag.String("statsview", "", "Serve runtime statistics on this address")
	pprofAddr := flag.String("pprof", "", "Serve pprof on this address")
	debug := flag.Bool("debug", false, "Panic on scheduler assertions and log debug output")
	flag.Parse()

	logger := log.NewWithWriter(os.Stdout, *debug)
	if err := run(logger, config{
		frames:      *frames,
		stateFile:   *stateFile,
		saveFile:    *saveFile,
		frameRate:   *frameRate,
		quantum:     *quantum,
		boost:       *boost,
		realtime:    *realtime,
		monitorAddr: *monitorAddr,
		profileFile: *profileFile,
		scriptFile:  *scriptFile,
		graphFile:   *graphFile,
		dump:        *dump,
		statsAddr:   *statsAddr,
		pprofAddr:   *pprofAddr,
		debug:       *debug,
	}); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

type config struct {
	frames      int
	stateFile   string
	saveFile    string
	frameRate   uint64
	quantum     float64
	boost       float64
	realtime    bool
	monitorAddr string
	profileFile string
	scriptFile  string
	graphFile   string
	dump        bool
	statsAddr   string
	pprofAddr   string
	debug       bool
}

func run(logger log.Logger, cfg config) error {
	if cfg.pprofAddr != "" {
		go func() {
			if err := http.ListenAndServe(cfg.pprofAddr, nil); err != nil {
				logger.Errorf("pprof: %v", err)
			}
		}()
	}
	if cfg.statsAddr != "" {
		go func() {
			viewer.SetConfiguration(viewer.WithAddr(cfg.statsAddr))
			statsview.New().Start()
		}()
		logger.Infof("stats server available at %s/debug/statsview", cfg.statsAddr)
	}

	opts := []machine.Opt{
		machine.WithLogger(logger),
		machine.WithFrameRate(cfg.frameRate),
	}
	if cfg.debug {
		opts = append(opts, machine.Debug())
	}
	if cfg.quantum > 0 {
		opts = append(opts, machine.WithQuantum(vtime.FromSeconds(cfg.quantum)))
	}
	if cfg.boost > 0 {
		opts = append(opts, machine.WithBoost(vtime.FromSeconds(cfg.boost)))
	}
	if cfg.stateFile != "" {
		state, err := savestate.Read(cfg.stateFile)
		if err != nil {
			return err
		}
		opts = append(opts, machine.WithState(state))
	}

	m, err := machine.New(opts...)
	if err != nil {
		return err
	}

	var prof *profile.Profiler
	if cfg.profileFile != "" {
		prof = profile.New(max(cfg.frames, profile.DefaultLimit))
		m.OnFrame(prof.Record)
	}

	if cfg.monitorAddr != "" {
		hub := monitor.NewHub(monitor.WithLogger(logger))
		go hub.Run()
		defer hub.Stop()
		go func() {
			if err := hub.ListenAndServe(cfg.monitorAddr); err != nil {
				logger.Errorf("monitor: %v", err)
			}
		}()
		m.OnFrame(func(s machine.Snapshot) {
			if err := hub.Publish(s); err != nil {
				logger.Errorf("%v", err)
			}
		})
		logger.Infof("monitor available at ws://%s/", cfg.monitorAddr)
	}

	var sc *script.Script
	if cfg.scriptFile != "" {
		sc, err = script.Load(cfg.scriptFile, logger)
		if err != nil {
			return err
		}
		defer sc.Close()
		m.OnFrame(sc.OnFrame)
	}

	progress := term.IsTerminal(int(os.Stdout.Fd()))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	frameTime := time.Second / time.Duration(cfg.frameRate)
	ticker := time.NewTicker(frameTime)
	defer ticker.Stop()

	// a loaded machine continues from its saved frame count
	first := m.Frames()
loop:
	for cfg.frames == 0 || m.Frames()-first < uint64(cfg.frames) {
		select {
		case <-ctx.Done():
			break loop
		default:
		}

		m.Frame()
		if sc != nil && sc.Done() {
			break
		}
		if progress {
			fmt.Printf("\rframe %d (%s)", m.Frames(), m.Scheduler().Time())
		}
		if cfg.realtime {
			select {
			case <-ctx.Done():
				break loop
			case <-ticker.C:
			}
		}
	}
	if progress {
		fmt.Println()
	}

	elapsed := time.Since(start)
	ran := m.Frames() - first
	logger.Infof("ran %d frames (%s virtual) in %s", ran, vtime.FromHz(cfg.frameRate).Mul(uint32(ran)), elapsed)

	if sc != nil && sc.Err() != nil && !errors.Is(sc.Err(), script.ErrStopped) {
		return sc.Err()
	}
	if cfg.dump {
		m.Scheduler().DumpTimers()
	}
	if cfg.graphFile != "" {
		f, err := os.Create(cfg.graphFile)
		if err != nil {
			return err
		}
		m.Scheduler().DumpGraph(f)
		if err := f.Close(); err != nil {
			return err
		}
	}
	if prof != nil {
		if err := prof.Save(cfg.profileFile, 8*vg.Inch, 5*vg.Inch); err != nil {
			return err
		}
	}
	if cfg.saveFile != "" {
		if err := savestate.Write(cfg.saveFile, m); err != nil {
			return err
		}
		logger.Infof("state saved to %s", cfg.saveFile)
	}
	return nil
}
