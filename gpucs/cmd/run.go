package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sarchlab/gpucs/config"
	"github.com/sarchlab/gpucs/device"
	"github.com/sarchlab/gpucs/harness"
	"github.com/sarchlab/gpucs/monitoring"
	"github.com/spf13/cobra"
)

// Tests that run can execute.
const (
	TestWriteLinear      = "write-linear"
	TestWriteLinearMulti = "write-linear-multi"
	TestConstFill        = "const-fill"
	TestCopyLinear       = "copy-linear"
	TestNop              = "nop"
)

var allTests = []string{
	TestWriteLinear,
	TestWriteLinearMulti,
	TestConstFill,
	TestCopyLinear,
	TestNop,
}

type testCase struct {
	name string
	run  func(r *harness.Runner) error
}

func (a *app) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [test...]",
		Short: "Run submission tests on every lane.",
		Long: "Run submission tests on every lane of the selected engine " +
			"classes. Tests: " + strings.Join(allTests, ", ") +
			". All tests run when none is named.",
		ValidArgs: allTests,
		Args:      cobra.OnlyValidArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cases, err := buildCases(a.cfg, args)
			if err != nil {
				return err
			}

			return a.run(cmd.OutOrStdout(), cases)
		},
	}
}

func buildCases(cfg config.Config, names []string) ([]testCase, error) {
	if len(names) == 0 {
		names = allTests
	}

	var cases []testCase

	for _, p := range cfg.Protocols {
		for _, name := range names {
			if name == TestWriteLinearMulti {
				cases = append(cases, testCase{
					name: fmt.Sprintf("%s/%s/%s", name, cfg.Engines, p),
					run: func(r *harness.Runner) error {
						return r.WriteLinearMulti(cfg.Engines, p, cfg.Secure)
					},
				})

				continue
			}

			for _, e := range cfg.Engines.Engines() {
				run, err := caseFunc(cfg, name, e, p)
				if err != nil {
					return nil, err
				}

				cases = append(cases, testCase{
					name: fmt.Sprintf("%s/%s/%s", name, e, p),
					run:  run,
				})
			}
		}
	}

	return cases, nil
}

func caseFunc(
	cfg config.Config,
	name string,
	e device.EngineClass,
	p device.Protocol,
) (func(r *harness.Runner) error, error) {
	switch name {
	case TestWriteLinear:
		return func(r *harness.Runner) error {
			return r.WriteLinear(e, p, cfg.Secure)
		}, nil
	case TestConstFill:
		return func(r *harness.Runner) error {
			return r.ConstFill(e, p)
		}, nil
	case TestCopyLinear:
		return func(r *harness.Runner) error {
			return r.CopyLinear(e, p)
		}, nil
	case TestNop:
		return func(r *harness.Runner) error {
			return r.Nop(e, p, cfg.NopRounds)
		}, nil
	default:
		return nil, fmt.Errorf("unknown test %q", name)
	}
}

func (a *app) run(out io.Writer, cases []testCase) (err error) {
	leaks, err := startLeakCheck(a.cfg, out)
	if err != nil {
		return err
	}

	s := newSession(a.cfg, "run")
	defer func() {
		err = errors.Join(err, s.close())
	}()

	var bar *monitoring.ProgressBar
	if s.monitor != nil {
		bar = s.monitor.CreateProgressBar("tests", uint64(len(cases)))
		defer s.monitor.CompleteProgressBar(bar)
	}

	failed := 0

	for _, tc := range cases {
		if bar != nil {
			bar.IncrementInProgress(1)
		}

		err := tc.run(s.platform.Runner)

		switch {
		case err == nil:
			fmt.Fprintf(out, "[PASS] %s\n", tc.name)
		case harness.Skipped(err):
			fmt.Fprintf(out, "[SKIP] %s: %v\n", tc.name, err)
		default:
			failed++
			fmt.Fprintf(out, "[FAIL] %s: %v\n", tc.name, err)
		}

		if bar != nil {
			bar.MoveInProgressToFinished(1)
		}
	}

	st := s.platform.Runner.Progress().Status()
	fmt.Fprintf(out, "%d rounds, %d verified, %d skipped, %.3fs\n",
		st.Rounds, st.Verified, st.Skipped, st.Elapsed)

	if err := s.leaked(); err != nil {
		return err
	}

	if err := leaks.finish(out); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d tests failed", failed, len(cases))
	}

	return nil
}
