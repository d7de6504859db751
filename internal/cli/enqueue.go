package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/swimport/internal/engine"
)

// EnqueueOptions holds flags for the enqueue command.
type EnqueueOptions struct {
	*RootOptions
	Owner string
	Batch string
}

// EnqueueResult lists the records a request file produced.
type EnqueueResult struct {
	Records []string `json:"records"`
}

// NewEnqueueCommand creates the enqueue command.
func NewEnqueueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EnqueueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "enqueue <requests-file>",
		Short: "Queue import requests",
		Long: `Validate and queue the requests of a YAML or JSON file.

A file with several requests is queued in one transaction: if any request is
malformed nothing is written. Requests without a batch key share a generated
one. Repeating an identical request returns the existing record.

Examples:
  swimport enqueue result.yaml --owner import-csiprova1
  swimport enqueue relay.json --batch relay-m200x --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnqueue(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Owner, "owner", "", "owner of requests that name none")
	cmd.Flags().StringVar(&opts.Batch, "batch", "", "batch key for requests that name none")

	return cmd
}

func runEnqueue(opts *EnqueueOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	reqs, err := readRequests(f, path, opts.Owner, opts.Batch)
	if err != nil {
		return err
	}

	q, err := openQueue(opts.RootOptions, cmd, f)
	if err != nil {
		return err
	}
	defer q.Close()

	var ids []string
	if len(reqs) == 1 {
		var id string
		id, err = q.engine.Enqueue(cmd.Context(), reqs[0])
		ids = []string{id}
	} else {
		ids, err = q.engine.EnqueueBatch(cmd.Context(), reqs)
	}
	if err != nil {
		if engine.IsMalformed(err) {
			return f.Fail(ExitFailure, ErrorCode(err), "request rejected", err)
		}
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to enqueue", err)
	}

	return f.Render(EnqueueResult{Records: ids}, func(w io.Writer) {
		fmt.Fprintf(w, "Enqueued %d record(s)\n", len(ids))
		for _, id := range ids {
			fmt.Fprintf(w, "  %s\n", id)
		}
	})
}

// readRequests loads a request file, reporting read and parse errors.
func readRequests(f *OutputFormatter, path, owner, batch string) ([]engine.Request, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeNotFound, "requests file not found", err)
	}
	reqs, err := LoadRequests(path, owner, batch)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeParseFailed, "invalid requests file", err)
	}
	f.VerboseLog("Read %d request(s) from %s", len(reqs), path)
	return reqs, nil
}
