package polling

import (
	"context"
	"encoding/json"
	"time"

	"github.com/agentstation/shopfloor/pkg/constants"
	"github.com/agentstation/shopfloor/pkg/errors"
)

// Resource keys of the dashboard endpoints polled by default.
const (
	ActiveProductions  = "production-active"
	ProductionHistory  = "production-history"
	StageTemplates     = "stage-templates"
	QualityCheckpoints = "quality-checkpoints"
	ProductionPlans    = "production-plans"
)

// Handler consumes the JSON body of one successful poll.
type Handler func(ctx context.Context, data json.RawMessage) error

// Typed adapts fn to a Handler that decodes the body into T first.
func Typed[T any](fn func(ctx context.Context, v T) error) Handler {
	return func(ctx context.Context, data json.RawMessage) error {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return errors.WrapParse("json", "poll payload", err)
		}
		return fn(ctx, v)
	}
}

// Resource is one polled endpoint.
type Resource struct {
	Key       string
	Path      string
	Frequency time.Duration
	Handler   Handler
}

func (r Resource) validate() error {
	if r.Key == "" {
		return errors.NewValidationError("key", r.Key, "resource key is required")
	}
	if r.Path == "" {
		return errors.NewValidationError("path", r.Path, "resource path is required")
	}
	if r.Frequency <= 0 {
		return errors.NewValidationError("frequency", r.Frequency, "frequency must be positive")
	}
	return nil
}

// DefaultResources returns the dashboard endpoints with their default periods.
func DefaultResources() []Resource {
	return []Resource{
		{Key: ActiveProductions, Path: constants.PathActiveProductions, Frequency: constants.ActiveProductionInterval},
		{Key: ProductionPlans, Path: constants.PathProductionPlans, Frequency: constants.ProductionPlansInterval},
		{Key: ProductionHistory, Path: constants.PathProductionHistory, Frequency: constants.ProductionHistoryInterval},
		{Key: StageTemplates, Path: constants.PathStageTemplates, Frequency: constants.TemplatesInterval},
		{Key: QualityCheckpoints, Path: constants.PathQualityCheckpoints, Frequency: constants.TemplatesInterval},
	}
}

// Update is the payload of data-updated.
type Update struct {
	ResourceKey string          `json:"resourceKey"`
	Data        json.RawMessage `json:"data"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Failure is the payload of sync-error.
type Failure struct {
	ResourceKey string          `json:"resourceKey"`
	Category    errors.Category `json:"category"`
	Err         error           `json:"-"`
	Message     string          `json:"message"`
}

// Error implements error so a Failure can be passed on as one.
func (f Failure) Error() string {
	return f.ResourceKey + ": " + f.Message
}

// Unwrap returns the underlying error.
func (f Failure) Unwrap() error {
	return f.Err
}
