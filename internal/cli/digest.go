package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/swimport/internal/ir"
)

// StuckOptions holds flags for the stuck command.
type StuckOptions struct {
	*RootOptions
	Fail bool
}

// NewDigestCommand creates the digest command.
func NewDigestCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Remove committed records and report stuck ones",
		Long: `Delete done records whose committed entity exists. A done record whose
entity cannot be found is kept and listed as missing. Records that have not
advanced for longer than --stuck-after are reported, never deleted.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigest(rootOpts, cmd)
		},
	}

	return cmd
}

func runDigest(opts *RootOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	q, err := openQueue(opts, cmd, f)
	if err != nil {
		return err
	}
	defer q.Close()

	report, err := q.engine.Digest(cmd.Context())
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "digest failed", err)
	}

	return f.Render(report, func(w io.Writer) {
		fmt.Fprintf(w, "Removed %d done record(s)\n", report.Removed)
		if len(report.Missing) > 0 {
			fmt.Fprintf(w, "Kept %d done record(s) whose entity is missing:\n", len(report.Missing))
			for _, id := range report.Missing {
				fmt.Fprintf(w, "  %s\n", id)
			}
		}
		printStuck(w, report.Stuck)
	})
}

// NewStuckCommand creates the stuck command.
func NewStuckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StuckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stuck",
		Short: "List records that stopped progressing",
		Long: `List pending records whose last attempt failed and whose solvable depth
has not advanced for longer than --stuck-after, oldest first.

With --fail the command exits 1 when any record is stuck, for use in cron
jobs and health checks.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStuck(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Fail, "fail", false, "exit 1 when any record is stuck")

	return cmd
}

func runStuck(opts *StuckOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	q, err := openQueue(opts.RootOptions, cmd, f)
	if err != nil {
		return err
	}
	defer q.Close()

	stuck, err := q.engine.Stuck(cmd.Context())
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "stuck report failed", err)
	}
	if opts.Fail && len(stuck) > 0 {
		return f.Fail(ExitFailure, ErrCodeStuck, fmt.Sprintf("%d stuck record(s)", len(stuck)), nil)
	}
	return f.Render(stuck, func(w io.Writer) { printStuck(w, stuck) })
}

func printStuck(w io.Writer, stuck []ir.StuckRecord) {
	if len(stuck) == 0 {
		fmt.Fprintln(w, "No stuck records")
		return
	}
	fmt.Fprintf(w, "%d stuck record(s):\n", len(stuck))
	for _, s := range stuck {
		fmt.Fprintf(w, "  %s %s depth %d/%d/%d, %d attempt(s), %s for %s",
			s.ID, s.Kind,
			s.Progress.Solvable, s.Progress.Processed, s.Progress.Requested,
			s.Attempts, s.LastOutcome, s.StalledFor.Truncate(time.Second))
		if s.LastError != "" {
			fmt.Fprintf(w, ": %s", s.LastError)
		}
		fmt.Fprintln(w)
	}
}
