package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/swimport/internal/depgraph"
	"github.com/roach88/swimport/internal/engine"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Kinds    int               `json:"kinds"`
	Requests int               `json:"requests"`
	Errors   []ValidationIssue `json:"errors,omitempty"`
}

// ValidationIssue is one rejected request.
type ValidationIssue struct {
	Request  int      `json:"request"`
	Kind     string   `json:"kind"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Problems []string `json:"problems,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [requests-file]",
		Short: "Check the graph and request files without queueing",
		Long: `Compile and check the dependency graph. With a requests file, also check
every request against it: the kind must be declared, the owner set and the
payload must carry a section for each kind of its closure.

Nothing is written to the database.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	g, err := loadGraph(opts, f)
	if err != nil {
		return err
	}
	result := ValidationResult{Valid: true, Kinds: len(g.Kinds())}

	if path != "" {
		reqs, err := readRequests(f, path, "", "")
		if err != nil {
			return err
		}
		result.Requests = len(reqs)

		// Validate only consults the graph.
		e := engine.New(nil, g, nil)
		for i, req := range reqs {
			if err := e.Validate(req); err != nil {
				result.Valid = false
				result.Errors = append(result.Errors, issueFor(i, req, err))
			}
		}
	}

	if err := f.Render(result, func(w io.Writer) { printValidation(w, result) }); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d request(s) rejected", len(result.Errors)))
	}
	return nil
}

func issueFor(i int, req engine.Request, err error) ValidationIssue {
	issue := ValidationIssue{Request: i, Kind: req.Kind, Code: ErrorCode(err), Message: err.Error()}
	var pe *depgraph.PayloadError
	if errors.As(err, &pe) {
		issue.Problems = pe.Problems
	}
	return issue
}

func printValidation(w io.Writer, r ValidationResult) {
	if r.Valid {
		if r.Requests > 0 {
			fmt.Fprintf(w, "✓ graph valid (%d kinds), %d request(s) valid\n", r.Kinds, r.Requests)
			return
		}
		fmt.Fprintf(w, "✓ graph valid (%d kinds)\n", r.Kinds)
		return
	}

	fmt.Fprintf(w, "✗ %d of %d request(s) rejected\n", len(r.Errors), r.Requests)
	for _, issue := range r.Errors {
		fmt.Fprintf(w, "  request %d (%s) [%s]: %s\n", issue.Request, issue.Kind, issue.Code, issue.Message)
	}
}
