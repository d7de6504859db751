package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/swimport/internal/ir"
)

// PassOptions holds flags for the pass command.
type PassOptions struct {
	*RootOptions
	UntilIdle bool
	Max       int
}

// PassResult summarizes the passes run by one command.
type PassResult struct {
	Passes int           `json:"passes"`
	Report ir.PassReport `json:"report"`
}

// NewPassCommand creates the pass command.
func NewPassCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PassOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pass",
		Short: "Run orchestrator passes over the queue",
		Long: `Run one orchestrator pass: every pending record attempts its next depth,
and records that become fully solved commit their own entity.

With --until-idle, passes repeat until nothing is selected or a pass makes no
progress, bounded by --max (default: the graph depth plus one).

Interrupting the command stops at a record boundary without partial writes.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPass(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.UntilIdle, "until-idle", false, "repeat passes until the queue stops progressing")
	cmd.Flags().IntVar(&opts.Max, "max", 0, "maximum passes with --until-idle (0 = graph depth + 1)")

	return cmd
}

func runPass(opts *PassOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	q, err := openQueue(opts.RootOptions, cmd, f)
	if err != nil {
		return err
	}
	defer q.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var result PassResult
	if opts.UntilIdle {
		result.Passes, result.Report, err = q.engine.RunUntilIdle(ctx, opts.Max)
	} else {
		result.Passes = 1
		result.Report, err = q.engine.RunPass(ctx)
	}
	if errors.Is(err, context.Canceled) {
		f.VerboseLog("Interrupted, stopping at a record boundary")
		err = nil
	}
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "pass failed", err)
	}

	return f.Render(result, func(w io.Writer) {
		r := result.Report
		fmt.Fprintf(w, "%d pass(es): %d selected, %d advanced, %d stalled, %d committed",
			result.Passes, r.Selected, r.Advanced, r.Stalled, r.Committed)
		if r.CommitFailures > 0 || r.Conflicts > 0 {
			fmt.Fprintf(w, ", %d commit failure(s), %d conflict(s)", r.CommitFailures, r.Conflicts)
		}
		fmt.Fprintln(w)
	})
}
