package workflows

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentstation/shopfloor/internal/output"
	"github.com/agentstation/shopfloor/pkg/errors"
	"github.com/agentstation/shopfloor/pkg/workflow"
)

// definitionTable renders definitions as one row each.
type definitionTable []workflow.Definition

func (t definitionTable) Table() output.Data {
	d := output.Data{
		Headers:   output.Headers("id", "name", "steps", "start_step", "end_step", "start_status", "complete_status"),
		Alignment: []output.Align{output.AlignLeft, output.AlignLeft, output.AlignRight},
	}
	for _, def := range t {
		d.Rows = append(d.Rows, []string{
			def.ID,
			def.Name,
			strconv.Itoa(len(def.Steps)),
			def.StartStep,
			def.EndStep,
			string(def.StartStatus),
			string(def.CompleteStatus),
		})
	}
	return d
}

func (t definitionTable) Value() any { return workflow.File{Workflows: t} }

func newListCommand(app AppContext, file *string) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List workflow definitions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sf, err := offline(app, *file)
			if err != nil {
				return err
			}
			defer sf.Stop()

			defs := sf.Engine().Definitions()
			format := output.DetectFormat(app.OutputFormat())
			return output.NewFormatter(format).Format(cmd.OutOrStdout(), definitionTable(defs))
		},
	}
}

// stepTable renders the steps of one definition in declaration order.
type stepTable workflow.Definition

func (t stepTable) Table() output.Data {
	d := output.Data{Headers: output.Headers("step", "name", "required", "next")}
	for _, s := range t.Steps {
		next := s.Next
		if next == "" {
			next = "-"
		}
		d.Rows = append(d.Rows, []string{s.ID, s.Name, strconv.FormatBool(s.Required), next})
	}
	return d
}

func (t stepTable) Value() any { return workflow.Definition(t) }

func newShowCommand(app AppContext, file *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <workflow-id>",
		Short: "Show the steps of one workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sf, err := offline(app, *file)
			if err != nil {
				return err
			}
			defer sf.Stop()

			def, ok := sf.Engine().Definition(args[0])
			if !ok {
				return unknownWorkflow(args[0], sf.Engine().Definitions())
			}
			format := output.DetectFormat(app.OutputFormat())
			return output.NewFormatter(format).Format(cmd.OutOrStdout(), stepTable(def))
		},
	}
}

func unknownWorkflow(id string, defs []workflow.Definition) error {
	ids := make([]string, 0, len(defs))
	for _, d := range defs {
		ids = append(ids, d.ID)
	}
	return fmt.Errorf("%w (known: %s)", errors.NewNotFoundError("workflow", id), strings.Join(ids, ", "))
}
