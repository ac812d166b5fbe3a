package status

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/shopfloor"
	"github.com/agentstation/shopfloor/internal/appcontext"
	"github.com/agentstation/shopfloor/internal/testserver"
	"github.com/agentstation/shopfloor/pkg/constants"
	"github.com/agentstation/shopfloor/pkg/notify"
)

func mockApp(srv *testserver.Server, format, locale string) *appcontext.Mock {
	return &appcontext.Mock{
		SessionFunc: func(extra ...shopfloor.Option) (shopfloor.Shopfloor, error) {
			logger := zerolog.Nop()
			opts := []shopfloor.Option{
				shopfloor.WithLogger(&logger),
				shopfloor.WithOrigin(srv.URL),
				shopfloor.WithAlertWriter(notify.Discard),
			}
			return shopfloor.New(append(opts, extra...)...)
		},
		OutputFormatFunc: func() string { return format },
		LocaleFunc:       func() string { return locale },
	}
}

func execute(t *testing.T, app AppContext, args ...string) (string, error) {
	t.Helper()
	cmd := NewCommand(app)
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestStatus_Healthy(t *testing.T) {
	srv := testserver.New(t)
	srv.SetJSON(constants.PathActiveProductions, http.StatusOK, []map[string]any{
		{"id": 3, "status": "in_progress"},
	})

	out, err := execute(t, mockApp(srv, "json", "en"), "--resource", "production-active")
	require.NoError(t, err)

	assert.Contains(t, out, `"healthy": true`)
	assert.Contains(t, out, `"workflowStatus": "Producing"`)
	assert.Contains(t, out, `"updates": 1`)
	assert.Equal(t, 1, srv.Requests(constants.PathActiveProductions))
	assert.Equal(t, 0, srv.Requests(constants.PathProductionPlans))
}

func TestStatus_AllResources(t *testing.T) {
	srv := testserver.New(t)
	srv.SetJSON(constants.PathActiveProductions, http.StatusOK, []any{})
	srv.SetJSON(constants.PathProductionPlans, http.StatusInternalServerError, map[string]string{"error": "db down"})

	out, err := execute(t, mockApp(srv, "table", "tr"))
	require.Error(t, err)

	assert.Contains(t, out, "production-plans")
	assert.Contains(t, out, "stage-templates")
	assert.Contains(t, out, "Beklemede")
	assert.Contains(t, out, "Kalite")
	for _, path := range []string{
		constants.PathActiveProductions,
		constants.PathProductionPlans,
		constants.PathProductionHistory,
		constants.PathStageTemplates,
		constants.PathQualityCheckpoints,
	} {
		assert.Equal(t, 1, srv.Requests(path), path)
	}
}

func TestStatus_UnknownResource(t *testing.T) {
	srv := testserver.New(t)
	out, err := execute(t, mockApp(srv, "yaml", "en"), "--resource", "nope")
	require.Error(t, err)
	assert.Contains(t, out, "healthy: true")
}

func TestStatus_ResourcePattern(t *testing.T) {
	srv := testserver.New(t)
	srv.SetJSON(constants.PathActiveProductions, http.StatusOK, []any{})
	srv.SetJSON(constants.PathProductionPlans, http.StatusOK, []any{})

	_, err := execute(t, mockApp(srv, "json", "en"), "--resource", "production-*")
	require.NoError(t, err)

	assert.Equal(t, 1, srv.Requests(constants.PathActiveProductions))
	assert.Equal(t, 1, srv.Requests(constants.PathProductionPlans))
	assert.Equal(t, 1, srv.Requests(constants.PathProductionHistory))
	assert.Equal(t, 0, srv.Requests(constants.PathStageTemplates))
	assert.Equal(t, 0, srv.Requests(constants.PathQualityCheckpoints))
}

func TestStatus_InvalidPattern(t *testing.T) {
	srv := testserver.New(t)
	_, err := execute(t, mockApp(srv, "json", "en"), "--resource", "re:(")
	require.Error(t, err)
	assert.Equal(t, 0, srv.Requests(constants.PathActiveProductions))
}

func TestStatus_Markdown(t *testing.T) {
	srv := testserver.New(t)
	srv.SetJSON(constants.PathActiveProductions, http.StatusOK, []any{})

	out, err := execute(t, mockApp(srv, "markdown", "en"), "--resource", "production-active")
	require.NoError(t, err)

	assert.Contains(t, out, "production-active")
	assert.Contains(t, out, "Workflow: Idle")
	assert.Contains(t, out, "|")
}
