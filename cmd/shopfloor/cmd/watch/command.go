// Package watch implements the watch command.
package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agentstation/shopfloor"
	"github.com/agentstation/shopfloor/pkg/events"
	"github.com/agentstation/shopfloor/pkg/notify"
	"github.com/agentstation/shopfloor/pkg/state"
)

// AppContext defines what the watch command needs from the app.
type AppContext interface {
	Session(extra ...shopfloor.Option) (shopfloor.Shopfloor, error)
	Logger() *zerolog.Logger
}

type options struct {
	duration     time.Duration
	alerts       string
	operatorID   string
	operatorName string
	noSocket     bool
	noPoll       bool
}

// NewCommand creates the watch command.
func NewCommand(app AppContext) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:     "watch",
		GroupID: "core",
		Short:   "Follow the production server and print alerts",
		Long: `Watch runs a headless dashboard session against the configured origin.
It keeps the push socket open, polls the production endpoints and prints
every operator-facing alert until interrupted.`,
		Example: `  shopfloor watch --origin https://plant.example.com
  shopfloor watch --operator-id 7 --operator-name Ayse --alerts json
  shopfloor watch --duration 10m --no-poll`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, app, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().StringVar(&opts.alerts, "alerts", string(notify.FormatText), "alert format: text, json, yaml")
	cmd.Flags().StringVar(&opts.operatorID, "operator-id", "", "operator to register on the socket")
	cmd.Flags().StringVar(&opts.operatorName, "operator-name", "", "operator display name")
	cmd.Flags().BoolVar(&opts.noSocket, "no-socket", false, "do not open the push socket")
	cmd.Flags().BoolVar(&opts.noPoll, "no-poll", false, "do not poll the REST endpoints")

	return cmd
}

func run(cmd *cobra.Command, app AppContext, opts *options) error {
	format := notify.Format(opts.alerts)
	switch format {
	case notify.FormatText, notify.FormatJSON, notify.FormatYAML:
	default:
		return fmt.Errorf("invalid alert format %q: must be one of: text, json, yaml", opts.alerts)
	}

	extra := []shopfloor.Option{
		shopfloor.WithAlertWriter(notify.NewFormatWriter(cmd.OutOrStdout(), format)),
		shopfloor.WithSocket(!opts.noSocket),
		shopfloor.WithPolling(!opts.noPoll),
	}
	if opts.operatorID != "" {
		extra = append(extra, shopfloor.WithOperator(opts.operatorID, opts.operatorName))
	}

	sf, err := app.Session(extra...)
	if err != nil {
		return err
	}
	defer sf.Stop()

	logger := app.Logger()
	sf.Bus().Subscribe(events.TabChanged, func(e events.Event) {
		if d, ok := e.Payload.(state.TabDescriptor); ok {
			logger.Info().Str("tab", string(d.ID)).Str("status", string(d.Status)).Msg("Tab changed")
		}
	})
	sf.Bus().Subscribe(events.StateUpdated, func(e events.Event) {
		if c, ok := e.Payload.(state.Change); ok {
			logger.Debug().Str("key", string(c.Key)).Msg("State updated")
		}
	})

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	if err := sf.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	st := sf.Status()
	logger.Info().
		Str("socket", string(st.Socket)).
		Str("workflow_status", string(st.WorkflowStatus)).
		Msg("Watch finished")
	return nil
}
