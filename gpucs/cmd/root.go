// Package cmd provides the command-line interface of gpucs.
package cmd

import (
	"github.com/sarchlab/gpucs/config"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

type app struct {
	cfg     config.Config
	envFile string
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: config.Defaults()}

	rootCmd := &cobra.Command{
		Use: "gpucs",
		Short: "gpucs submits command streams to GPU queues and checks " +
			"that they complete.",
		Long: `gpucs creates queues on every available lane of the selected ` +
			`engine classes, submits write, fill, copy and nop programs ` +
			`through kernel-mode or user-mode queues, waits for them and ` +
			`verifies the results.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.load,
	}

	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env",
		"file to read GPUCS_* settings from")
	a.cfg.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		a.runCmd(),
		a.lanesCmd(),
		a.leakCmd(),
		a.reportCmd(),
	)

	return rootCmd
}

func (a *app) load(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.envFile)
	if err != nil {
		return err
	}

	if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
		return err
	}

	a.cfg = cfg

	return cfg.Validate()
}

// Execute runs the command line and exits, flushing recorders on the way.
func Execute() {
	err := newRootCmd().Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
