package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/sarchlab/gpucs/config"
	"github.com/sarchlab/gpucs/leakcheck"
	"github.com/sarchlab/gpucs/ring"
	"github.com/spf13/cobra"
)

// kernelLeaks checks kmemleak around a run. A nil checker does nothing.
type kernelLeaks struct {
	checker *leakcheck.Checker
}

func startLeakCheck(cfg config.Config, out io.Writer) (*kernelLeaks, error) {
	if !cfg.LeakCheck {
		return &kernelLeaks{}, nil
	}

	return openLeakCheck(leakcheck.DefaultPath, out)
}

func openLeakCheck(path string, out io.Writer) (*kernelLeaks, error) {
	checker, err := leakcheck.New(path)
	if errors.Is(err, leakcheck.ErrUnavailable) {
		fmt.Fprintf(out, "[SKIP] leak check: %v\n", err)
		return &kernelLeaks{}, nil
	}

	if err != nil {
		return nil, err
	}

	if err := checker.Clear(true); err != nil {
		return nil, err
	}

	return &kernelLeaks{checker: checker}, nil
}

func (k *kernelLeaks) finish(out io.Writer) error {
	if k.checker == nil {
		return nil
	}

	ok, report, err := k.checker.NoLeak()
	if err != nil {
		return err
	}

	if !ok {
		fmt.Fprint(out, report)
		return fmt.Errorf("kmemleak reported leaks, see %s",
			k.checker.Path())
	}

	fmt.Fprintln(out, "[PASS] leak check")

	return nil
}

func (a *app) leakCmd() *cobra.Command {
	var (
		path       string
		iterations int
	)

	cmd := &cobra.Command{
		Use:   "leak",
		Short: "Create and destroy every lane repeatedly and check for leaks.",
		Long: "Create and destroy the lanes of the selected engine classes " +
			"and protocols, then check that the device holds no objects " +
			"and that kmemleak found nothing.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.leak(cmd.OutOrStdout(), path, iterations)
		},
	}

	cmd.Flags().StringVar(&path, "kmemleak", leakcheck.DefaultPath,
		"kmemleak file")
	cmd.Flags().IntVar(&iterations, "iterations", 1,
		"number of create and destroy cycles")

	return cmd
}

func (a *app) leak(out io.Writer, path string, iterations int) (err error) {
	leaks, err := openLeakCheck(path, out)
	if err != nil {
		return err
	}

	s := newSession(a.cfg, "leak")
	defer func() {
		err = errors.Join(err, s.close())
	}()

	opt := ring.Options{Secure: a.cfg.Secure}

	for i := 0; i < iterations; i++ {
		for _, p := range a.cfg.Protocols {
			for _, e := range a.cfg.Engines.Engines() {
				cs, err := s.platform.Lanes.CreateLanes(e, p, opt)
				if err != nil {
					fmt.Fprintf(out, "[SKIP] %s/%s: %v\n", e, p, err)
					continue
				}

				if err := s.platform.Lanes.DestroyLanes(cs); err != nil {
					return err
				}
			}
		}
	}

	if err := s.leaked(); err != nil {
		return err
	}

	fmt.Fprintln(out, "[PASS] device objects")

	return leaks.finish(out)
}
