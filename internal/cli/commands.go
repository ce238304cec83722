package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gameflow/internal/domain/flow"
	"gameflow/internal/domain/layout"
	"gameflow/internal/persistence"

	"github.com/spf13/cobra"
)

// ErrNoSavedFlow is returned when the server holds no flow.
var ErrNoSavedFlow = errors.New("server has no saved flow")

type statusResult struct {
	Server string `json:"server"`
	Saved  bool   `json:"saved"`
	Nodes  int    `json:"nodes"`
	Edges  int    `json:"edges"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show what the server has stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res := statusResult{Server: opts.config.ServerURL}
			g, err := opts.api().Fetch(cmd.Context())
			switch {
			case err == nil:
				res.Saved, res.Nodes, res.Edges = true, len(g.Nodes), len(g.Edges)
			case !errors.Is(err, persistence.ErrNoSnapshot):
				return err
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return json.NewEncoder(out).Encode(res)
			}
			if !res.Saved {
				fmt.Fprintf(out, "%s: no saved flow\n", res.Server)
				return nil
			}
			fmt.Fprintf(out, "%s: %d nodes, %d edges\n", res.Server, res.Nodes, res.Edges)
			return nil
		},
	}
}

// NewExportCommand creates the export command.
func NewExportCommand(opts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the flow as an export document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := fetch(cmd, opts)
			if err != nil {
				return err
			}
			data, err := flow.Export(g, time.Now()).Marshal()
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, data)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

// NewImportCommand creates the import command.
func NewImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the server flow with an export document",
		Long: `Replace the server flow with the contents of an export document.

Missing node or edge lists are treated as empty; edges without an id,
source or target are dropped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			g, err := flow.ParseDocument(data)
			if err != nil {
				return err
			}
			if err := opts.api().Save(cmd.Context(), g); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d nodes, %d edges\n", len(g.Nodes), len(g.Edges))
			return nil
		},
	}
}

// NewLayoutCommand creates the layout command.
func NewLayoutCommand(opts *RootOptions) *cobra.Command {
	var (
		output string
		apply  bool
	)

	cmd := &cobra.Command{
		Use:   "layout [file]",
		Short: "Arrange nodes in layers",
		Long: `Arrange nodes in layers: roots on the first row, every other node one
row below its deepest predecessor, rows centered and ordered by id.

Reads the given export document, or the server flow when no file is given.
With --apply the result is saved to the server.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				g   flow.Graph
				err error
			)
			if len(args) == 1 {
				var data []byte
				if data, err = os.ReadFile(args[0]); err != nil {
					return err
				}
				g, err = flow.ParseDocument(data)
			} else {
				g, err = fetch(cmd, opts)
			}
			if err != nil {
				return err
			}

			nodes, err := layout.Layout(g.Nodes, g.Edges)
			if err != nil {
				return err
			}
			g.Nodes = nodes

			if apply {
				if err := opts.api().Save(cmd.Context(), g); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "arranged %d nodes\n", len(g.Nodes))
				return nil
			}
			data, err := json.MarshalIndent(g, "", "  ")
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, data)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().BoolVar(&apply, "apply", false, "save the arranged flow to the server")
	return cmd
}

func fetch(cmd *cobra.Command, opts *RootOptions) (flow.Graph, error) {
	g, err := opts.api().Fetch(cmd.Context())
	if errors.Is(err, persistence.ErrNoSnapshot) {
		return flow.Graph{}, ErrNoSavedFlow
	}
	return g, err
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	data = append(data, '\n')
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
