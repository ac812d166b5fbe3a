// Package status implements the status command.
package status

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/agentstation/shopfloor"
	"github.com/agentstation/shopfloor/internal/matcher"
	"github.com/agentstation/shopfloor/internal/output"
	"github.com/agentstation/shopfloor/pkg/polling"
	"github.com/agentstation/shopfloor/pkg/state"
)

// AppContext defines what the status command needs from the app.
type AppContext interface {
	Session(extra ...shopfloor.Option) (shopfloor.Shopfloor, error)
	OutputFormat() string
	Locale() string
}

// Report is the result of one poll cycle.
type Report struct {
	Healthy        bool                     `json:"healthy" yaml:"healthy"`
	WorkflowStatus string                   `json:"workflowStatus" yaml:"workflow_status"`
	Resources      []polling.ResourceStatus `json:"resources" yaml:"resources"`
	Tabs           []TabRow                 `json:"tabs" yaml:"tabs"`
}

// TabRow is one tab descriptor with its display label.
type TabRow struct {
	ID      state.TabID     `json:"id" yaml:"id"`
	Label   string          `json:"label" yaml:"label"`
	Status  state.TabStatus `json:"status" yaml:"status"`
	Enabled bool            `json:"enabled" yaml:"enabled"`
}

// NewCommand creates the status command.
func NewCommand(app AppContext) *cobra.Command {
	var resources []string
	cmd := &cobra.Command{
		Use:     "status",
		GroupID: "core",
		Short:   "Poll every endpoint once and report its health",
		Long: `Status runs one poll cycle against the configured origin and prints
the outcome per resource followed by the tab table the results produce.
A resource answering 404 is reported as skipped. Server errors and
malformed bodies make the command fail after printing.`,
		Example: `  shopfloor status
  shopfloor status --resource production-active --format json
  shopfloor status --resource 'production-*' --resource 're:stage-.+'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sf, err := app.Session(shopfloor.WithSocket(false), shopfloor.WithPolling(true))
			if err != nil {
				return err
			}
			defer sf.Stop()

			keys, err := selectResources(sf.Poller(), resources)
			if err != nil {
				return err
			}
			pollErr := sf.Poller().Trigger(cmd.Context(), keys...)

			tag, err := language.Parse(app.Locale())
			if err != nil {
				tag = language.English
			}
			report := buildReport(sf, tag)

			format := output.DetectFormat(app.OutputFormat())
			if err := write(cmd.OutOrStdout(), format, report); err != nil {
				return err
			}
			return pollErr
		},
	}
	cmd.Flags().StringSliceVar(&resources, "resource", nil, "resource keys or patterns to poll (glob, or regex with a re: prefix; default all)")
	return cmd
}

// selectResources expands patterns against the registered keys. No
// patterns means every resource.
func selectResources(poller *polling.Scheduler, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	var keys []string
	for _, r := range poller.Resources() {
		keys = append(keys, r.Key)
	}
	return matcher.Expand(keys, patterns...)
}

func buildReport(sf shopfloor.Shopfloor, tag language.Tag) Report {
	st := sf.Status()
	r := Report{
		WorkflowStatus: state.StatusLabel(tag, st.WorkflowStatus),
	}
	if st.Poll != nil {
		r.Healthy = st.Poll.Healthy()
		r.Resources = st.Poll.Resources
	}
	for _, d := range st.Tabs {
		r.Tabs = append(r.Tabs, TabRow{
			ID:      d.ID,
			Label:   state.Label(tag, string(d.ID)),
			Status:  d.Status,
			Enabled: d.Enabled,
		})
	}
	return r
}

func write(w io.Writer, format output.Format, r Report) error {
	if format != output.FormatTable && format != output.FormatMarkdown {
		return output.NewFormatter(format).Format(w, r)
	}

	table := output.NewFormatter(format)
	resources := output.Data{
		Headers:   output.Headers("resource", "path", "frequency", "updates", "failures", "skipped", "last_update", "last_error"),
		Alignment: []output.Align{output.AlignLeft, output.AlignLeft, output.AlignRight, output.AlignRight, output.AlignRight, output.AlignRight},
	}
	for _, res := range r.Resources {
		last := "-"
		if res.LastUpdate != nil {
			last = res.LastUpdate.Format(time.TimeOnly)
		}
		resources.Rows = append(resources.Rows, []string{
			res.Key,
			res.Path,
			res.Frequency.String(),
			strconv.Itoa(res.Updates),
			strconv.Itoa(res.Failures),
			strconv.Itoa(res.Skipped),
			last,
			res.LastError,
		})
	}
	if err := table.Format(w, resources); err != nil {
		return err
	}

	tabs := output.Data{Headers: output.Headers("tab", "label", "status", "enabled")}
	for _, t := range r.Tabs {
		tabs.Rows = append(tabs.Rows, []string{string(t.ID), t.Label, string(t.Status), strconv.FormatBool(t.Enabled)})
	}
	if _, err := fmt.Fprintf(w, "\nWorkflow: %s\n", r.WorkflowStatus); err != nil {
		return err
	}
	return table.Format(w, tabs)
}
