// Package workflows implements the workflows command and its subcommands.
package workflows

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agentstation/shopfloor"
	"github.com/agentstation/shopfloor/pkg/workflow"
)

// AppContext defines what the workflows commands need from the app.
type AppContext interface {
	Session(extra ...shopfloor.Option) (shopfloor.Shopfloor, error)
	Logger() *zerolog.Logger
	OutputFormat() string
}

// NewCommand creates the workflows command.
func NewCommand(app AppContext) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:     "workflows",
		Aliases: []string{"workflow", "wf"},
		GroupID: "core",
		Short:   "Inspect and drive production workflows",
		Long: `Workflows lists, shows and runs the workflow definitions known to the
engine: the built-in production-start, production-stages and
quality-control chains plus any definitions loaded with --file.`,
		Example: `  shopfloor workflows list
  shopfloor workflows show quality-control --format yaml
  shopfloor workflows run production-stages --file ./plant.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return fmt.Errorf("unknown subcommand: %s", args[0])
		},
	}
	cmd.PersistentFlags().StringVarP(&file, "file", "f", "", "YAML file with extra workflow definitions")

	cmd.AddCommand(newListCommand(app, &file))
	cmd.AddCommand(newShowCommand(app, &file))
	cmd.AddCommand(newRunCommand(app, &file))
	return cmd
}

// offline creates a session without socket or polling, with the definitions
// from file registered.
func offline(app AppContext, file string, extra ...shopfloor.Option) (shopfloor.Shopfloor, error) {
	opts := []shopfloor.Option{
		shopfloor.WithSocket(false),
		shopfloor.WithPolling(false),
	}
	if file != "" {
		defs, err := workflow.LoadFile(file)
		if err != nil {
			return nil, err
		}
		opts = append(opts, shopfloor.WithWorkflows(defs...))
	}
	return app.Session(append(opts, extra...)...)
}
