package cmd

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sarchlab/gpucs/lanes"
	"github.com/sarchlab/gpucs/ring"
	"github.com/spf13/cobra"
)

func (a *app) lanesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lanes",
		Short: "List the lanes that queues can be created on.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.lanes(cmd.OutOrStdout())
		},
	}
}

func (a *app) lanes(out io.Writer) (err error) {
	s := newSession(a.cfg, "lanes")
	defer func() {
		err = errors.Join(err, s.close())
	}()

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tENGINE\tLANE\tPROTOCOL\tSECURE\tSTATE")

	opt := ring.Options{Secure: a.cfg.Secure}

	for _, p := range a.cfg.Protocols {
		for _, e := range a.cfg.Engines.Engines() {
			cs, err := s.platform.Lanes.CreateLanes(e, p, opt)
			if errors.Is(err, lanes.ErrNotAvailable) {
				fmt.Fprintf(w, "-\t%s\t-\t%s\t-\tnot available\n", e, p)
				continue
			}

			if err != nil {
				return err
			}

			for _, st := range s.platform.Lanes.Status() {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%t\t%s\n",
					st.Name, st.Engine, st.Lane, st.Protocol, st.Secure,
					st.State)
			}

			if err := s.platform.Lanes.DestroyLanes(cs); err != nil {
				return err
			}
		}
	}

	if err := w.Flush(); err != nil {
		return err
	}

	return s.leaked()
}
