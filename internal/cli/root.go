// Package cli implements the flow-client commands.
package cli

import (
	"fmt"

	"gameflow/internal/config"
	"gameflow/internal/observability"
	"gameflow/internal/persistence"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ServerURL string
	ClientID  string
	Verbose   bool
	Format    string // "json" | "text"

	config *config.Client
	logger *zap.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the flow client.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "flow-client",
		Short: "Work with a shared game flow",
		Long:  "Inspect, lay out, export and import the flow stored on a flow server, or follow it live.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init()
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ServerURL, "server", "", "flow server URL (default $FLOW_SERVER_URL or http://localhost:3000)")
	cmd.PersistentFlags().StringVar(&opts.ClientID, "client-id", "", "identity used for echo suppression (default random)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewLayoutCommand(opts))
	cmd.AddCommand(NewSessionCommand(opts))

	return cmd
}

func (o *RootOptions) init() error {
	if !isValidFormat(o.Format) {
		return fmt.Errorf("invalid format %q: must be one of %v", o.Format, ValidFormats)
	}

	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	if o.ServerURL != "" {
		cfg.ServerURL = o.ServerURL
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if o.ClientID == "" {
		o.ClientID = cfg.ClientID
	}
	if o.ClientID == "" {
		o.ClientID = uuid.NewString()
	}
	o.config = cfg

	level := cfg.LogLevel
	if level == "" {
		level = "warn"
	}
	if o.Verbose {
		level = "debug"
	}
	logger, err := observability.NewLogger(config.Development, level)
	if err != nil {
		return err
	}
	o.logger = logger
	return nil
}

func (o *RootOptions) api() *persistence.APIClient {
	return persistence.NewAPIClient(o.config.ServerURL,
		persistence.WithClientID(o.ClientID),
		persistence.WithLogger(o.logger),
	)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
