package workflows

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentstation/shopfloor/internal/output"
	"github.com/agentstation/shopfloor/pkg/events"
	"github.com/agentstation/shopfloor/pkg/workflow"
)

// maxSteps bounds a run without --steps, since definitions may cycle.
const maxSteps = 1000

// snapshotTable renders an instance snapshot as property rows.
type snapshotTable workflow.Snapshot

func (t snapshotTable) Table() output.Data {
	steps := make([]string, 0, len(t.CompletedSteps))
	for _, c := range t.CompletedSteps {
		steps = append(steps, c.StepID)
	}
	return output.Data{
		Headers: output.Headers("property", "value"),
		Rows: [][]string{
			{"Workflow", t.WorkflowID},
			{"Instance", t.InstanceID},
			{"Status", string(t.Status)},
			{"Current Step", t.CurrentStep},
			{"Completed", strings.Join(steps, ", ")},
			{"Progress", strconv.Itoa(t.Progress) + "%"},
			{"Error", t.Error},
		},
	}
}

func (t snapshotTable) Value() any { return workflow.Snapshot(t) }

func newRunCommand(app AppContext, file *string) *cobra.Command {
	var (
		steps int
		data  map[string]string
	)
	cmd := &cobra.Command{
		Use:   "run <workflow-id>",
		Short: "Start a workflow and advance it step by step",
		Long: `Run starts the workflow on an offline session and completes its steps
in order, printing the final instance snapshot. With --steps the run stops
after that many steps and the instance is left running.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sf, err := offline(app, *file)
			if err != nil {
				return err
			}
			defer sf.Stop()

			engine := sf.Engine()
			if _, ok := engine.Definition(args[0]); !ok {
				return unknownWorkflow(args[0], engine.Definitions())
			}

			logger := app.Logger()
			sf.Bus().Subscribe(events.StepCompleted, func(e events.Event) {
				if tr, ok := e.Payload.(workflow.Transition); ok {
					logger.Info().
						Str("workflow_id", tr.WorkflowID).
						Str("completed", tr.Completed.ID).
						Str("current", tr.Current.ID).
						Int("progress", tr.Progress).
						Msg("Step completed")
				}
			})

			payload := make(map[string]any, len(data))
			for k, v := range data {
				payload[k] = v
			}
			if err := engine.Start(args[0], payload); err != nil {
				return err
			}

			limit := steps
			if limit <= 0 {
				limit = maxSteps
			}
			for n := 0; n < limit && engine.Current() != ""; n++ {
				if err := engine.Next(payload); err != nil {
					return err
				}
			}
			if steps <= 0 && engine.Current() != "" {
				return fmt.Errorf("workflow %s still running after %d steps; use --steps for cyclic workflows", args[0], maxSteps)
			}

			snap, err := engine.Status(args[0])
			if err != nil {
				return err
			}
			format := output.DetectFormat(app.OutputFormat())
			return output.NewFormatter(format).Format(cmd.OutOrStdout(), snapshotTable(snap))
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "complete at most this many steps (0 runs to the end)")
	cmd.Flags().StringToStringVar(&data, "data", nil, "step data as key=value pairs")
	return cmd
}
