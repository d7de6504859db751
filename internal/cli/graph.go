package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/swimport/internal/ir"
)

// GraphResult describes the compiled dependency graph.
type GraphResult struct {
	MaxDepth int           `json:"max_depth"`
	Kinds    []ir.KindSpec `json:"kinds"`
}

// NewGraphCommand creates the graph command.
func NewGraphCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the entity dependency graph by depth",
		Long: `Compile the dependency graph and print every kind with its depth,
prerequisites and natural key. Creatable kinds are created on demand when a
deeper record needs them.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(rootOpts, cmd)
		},
	}

	return cmd
}

func runGraph(opts *RootOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	g, err := loadGraph(opts, f)
	if err != nil {
		return err
	}

	result := GraphResult{MaxDepth: g.MaxDepth(), Kinds: g.Kinds()}
	return f.Render(result, func(w io.Writer) { printGraph(w, result) })
}

func printGraph(w io.Writer, r GraphResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEPTH\tKIND\tREQUIRES\tKEY\tCREATABLE")
	for _, k := range r.Kinds {
		requires := "-"
		if len(k.Requires) > 0 {
			requires = strings.Join(k.Requires, ",")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\n", k.Depth, k.Name, requires, strings.Join(k.Key, ","), k.Creatable)
	}
	tw.Flush()
}
