package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/sarchlab/gpucs/config"
	"github.com/sarchlab/gpucs/datarecording"
	"github.com/sarchlab/gpucs/harness"
	"github.com/sarchlab/gpucs/idgen"
	"github.com/sarchlab/gpucs/monitoring"
	"github.com/sarchlab/gpucs/simdev"
	"github.com/sarchlab/gpucs/submit"
	"github.com/sarchlab/gpucs/tracing"
)

// A session is a device with a platform wired to it, plus whatever records
// and serves the run.
type session struct {
	cfg      config.Config
	dev      *simdev.Device
	platform *harness.Platform

	recorder datarecording.DataRecorder
	tracer   *tracing.DBTracer
	runInfo  *datarecording.RunRecorder
	monitor  *monitoring.Monitor
}

func newSession(cfg config.Config, command string) *session {
	s := &session{cfg: cfg}

	ids := idgen.NewSequential()
	if cfg.ParallelIDs {
		idgen.UseParallelIDGenerator()
		ids = idgen.GetIDGenerator()
	}

	s.dev = cfg.Sim.Build("GPU")

	b := harness.MakePlatformBuilder().
		WithTimeout(cfg.Timeout).
		WithIDGenerator(ids).
		WithHook(submit.NewLogHook(
			log.New(os.Stderr, "", log.LstdFlags), cfg.Verbose))

	if cfg.DBPath != "" {
		clock := tracing.NewWallClock()

		s.recorder = datarecording.New(cfg.DBPath)
		s.tracer = tracing.NewDBTracer(clock, s.recorder)
		s.runInfo = datarecording.NewRunRecorder(s.recorder)
		s.runInfo.Start()
		s.runInfo.Set("Subcommand", command)
		s.runInfo.Set("Backend", cfg.Backend)
		s.runInfo.Set("Engines", cfg.Engines.String())
		s.runInfo.Set("Secure", fmt.Sprint(cfg.Secure))

		b = b.WithHook(tracing.NewResultRecorder(s.recorder, clock))
	}

	s.platform = b.Build(s.dev)

	if s.tracer != nil {
		tracing.CollectTrace(s.platform.Engine, s.tracer)
	}

	if cfg.Monitor {
		s.monitor = monitoring.NewMonitor().
			WithPortNumber(cfg.MonitorPort).
			WithBrowser(cfg.OpenBrowser).
			WithAssetDir(cfg.MonitorAssets)
		s.monitor.RegisterLanes(s.platform.Lanes)
		s.monitor.RegisterProgress(s.platform.Runner.Progress())
		s.monitor.StartServer()
	}

	return s
}

// leaked returns an error if the device still holds objects.
func (s *session) leaked() error {
	stats := s.dev.Stats()
	if stats.Total() == 0 {
		return nil
	}

	return fmt.Errorf("device still holds %d objects: %+v",
		stats.Total(), stats)
}

func (s *session) close() error {
	var errs []error

	if s.tracer != nil {
		s.tracer.Terminate()
	}

	if s.runInfo != nil {
		s.runInfo.End()
	}

	if s.recorder != nil {
		errs = append(errs, s.recorder.Close())
	}

	if s.monitor != nil {
		errs = append(errs, s.monitor.StopServer())
	}

	s.dev.Close()

	return errors.Join(errs...)
}
