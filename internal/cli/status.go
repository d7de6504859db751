package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/swimport/internal/ir"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Batch string
}

// StatusResult is the queue summary, or the records of one batch.
type StatusResult struct {
	Depths  []ir.DepthStats `json:"depths,omitempty"`
	Batch   string          `json:"batch,omitempty"`
	Records []RecordStatus  `json:"records,omitempty"`
}

// RecordStatus is one record of a batch listing.
type RecordStatus struct {
	ID          string      `json:"id"`
	Kind        string      `json:"kind"`
	Owner       string      `json:"owner"`
	Done        bool        `json:"done"`
	Progress    ir.Progress `json:"progress"`
	Attempts    int         `json:"attempts"`
	LastOutcome ir.Outcome  `json:"last_outcome,omitempty"`
	LastError   string      `json:"last_error,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Summarize the queue by requested depth",
		Long: `Count pending, stalled and done records per requested depth.

With --batch, list every record enqueued under that batch key instead, with
its depths and last outcome.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Batch, "batch", "", "list the records of one batch")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	q, err := openQueue(opts.RootOptions, cmd, f)
	if err != nil {
		return err
	}
	defer q.Close()

	if opts.Batch != "" {
		mts, err := q.store.ReadBatch(cmd.Context(), opts.Batch)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, "failed to read batch", err)
		}
		result := StatusResult{Batch: opts.Batch, Records: make([]RecordStatus, len(mts))}
		for i, mt := range mts {
			result.Records[i] = RecordStatus{
				ID:          mt.ID,
				Kind:        mt.Kind,
				Owner:       mt.Owner,
				Done:        mt.Done,
				Progress:    mt.Progress,
				Attempts:    mt.Attempts,
				LastOutcome: mt.LastOutcome,
				LastError:   mt.LastError,
			}
		}
		return f.Render(result, func(w io.Writer) { printBatch(w, result) })
	}

	stats, err := q.store.Stats(cmd.Context())
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to read queue stats", err)
	}
	result := StatusResult{Depths: stats}
	return f.Render(result, func(w io.Writer) { printStats(w, stats) })
}

func printStats(w io.Writer, stats []ir.DepthStats) {
	if len(stats) == 0 {
		fmt.Fprintln(w, "Queue is empty")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEPTH\tPENDING\tSTALLED\tDONE")
	for _, s := range stats {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\n", s.Depth, s.Pending, s.Stalled, s.Done)
	}
	tw.Flush()
}

func printBatch(w io.Writer, r StatusResult) {
	if len(r.Records) == 0 {
		fmt.Fprintf(w, "No records in batch %s\n", r.Batch)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tDEPTHS\tDONE\tATTEMPTS\tOUTCOME")
	for _, rec := range r.Records {
		fmt.Fprintf(tw, "%s\t%s\t%d/%d/%d\t%t\t%d\t%s\n",
			rec.ID, rec.Kind,
			rec.Progress.Solvable, rec.Progress.Processed, rec.Progress.Requested,
			rec.Done, rec.Attempts, rec.LastOutcome)
	}
	tw.Flush()
}
