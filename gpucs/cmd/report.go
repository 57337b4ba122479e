package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/sarchlab/gpucs/datarecording"
	"github.com/sarchlab/gpucs/tracing"
	"github.com/spf13/cobra"
)

func (a *app) reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <db>",
		Short: "Summarize the rounds recorded in a database.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return report(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
}

func report(ctx context.Context, out io.Writer, path string) error {
	if !strings.HasSuffix(path, ".sqlite3") {
		path += ".sqlite3"
	}

	reader, err := datarecording.NewReader(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	reader.MapTable(datarecording.RunInfoTable, datarecording.RunProperty{})
	reader.MapTable(tracing.RoundTable, tracing.RoundEntry{})

	props, _, err := reader.Query(ctx, datarecording.RunInfoTable,
		datarecording.QueryParams{})
	if err != nil {
		return err
	}

	for _, p := range props {
		prop := p.(*datarecording.RunProperty)
		fmt.Fprintf(out, "%s: %s\n", prop.Property, prop.Value)
	}

	rounds, total, err := reader.Query(ctx, tracing.RoundTable,
		datarecording.QueryParams{OrderBy: "Time"})
	if err != nil {
		return err
	}

	type counts map[string]int

	byContext := map[string]counts{}
	var failures []*tracing.RoundEntry

	for _, r := range rounds {
		entry := r.(*tracing.RoundEntry)

		if byContext[entry.Context] == nil {
			byContext[entry.Context] = counts{}
		}

		byContext[entry.Context][entry.Outcome]++

		if entry.Outcome == tracing.OutcomeFail ||
			entry.Outcome == tracing.OutcomeError {
			failures = append(failures, entry)
		}
	}

	names := make([]string, 0, len(byContext))
	for name := range byContext {
		names = append(names, name)
	}

	sort.Strings(names)

	fmt.Fprintf(out, "\n%d rounds\n", total)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LANE\tPASS\tTOLERATED\tEXPECT_FAILURE\tFAIL\tERROR")

	for _, name := range names {
		c := byContext[name]
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n", name,
			c[tracing.OutcomePass], c[tracing.OutcomeTolerated],
			c[tracing.OutcomeExpectFailure], c[tracing.OutcomeFail],
			c[tracing.OutcomeError])
	}

	if err := w.Flush(); err != nil {
		return err
	}

	for _, f := range failures {
		fmt.Fprintf(out, "round %s on %s: %s\n", f.Round, f.Context, f.Error)
	}

	return nil
}
