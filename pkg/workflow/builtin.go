package workflow

import "github.com/agentstation/shopfloor/pkg/state"

// Built-in workflow ids.
const (
	ProductionStart  = "production-start"
	ProductionStages = "production-stages"
	QualityControl   = "quality-control"
)

// chain links steps in order and marks each one required.
func chain(steps ...Step) []Step {
	for i := range steps {
		steps[i].Required = true
		if i+1 < len(steps) {
			steps[i].Next = steps[i+1].ID
		}
	}
	return steps
}

// Builtin returns the predeclared workflow definitions.
func Builtin() []Definition {
	return []Definition{
		{
			ID:   ProductionStart,
			Name: "Production Start",
			Steps: chain(
				Step{ID: "select-plan", Name: "Select production plan"},
				Step{ID: "assign-operator", Name: "Assign operator"},
				Step{ID: "verify-materials", Name: "Verify materials"},
				Step{ID: "start-production", Name: "Start production"},
			),
			StartStep:      "select-plan",
			EndStep:        "start-production",
			StartStatus:    state.StatusPlanning,
			CompleteStatus: state.StatusProducing,
		},
		{
			ID:   ProductionStages,
			Name: "Production Stages",
			Steps: chain(
				Step{ID: "cutting", Name: "Cutting"},
				Step{ID: "assembly", Name: "Assembly"},
				Step{ID: "finishing", Name: "Finishing"},
				Step{ID: "packaging", Name: "Packaging"},
			),
			StartStep:      "cutting",
			EndStep:        "packaging",
			StartStatus:    state.StatusProducing,
			CompleteStatus: state.StatusQualityCheck,
		},
		{
			ID:   QualityControl,
			Name: "Quality Control",
			Steps: chain(
				Step{ID: "visual-inspection", Name: "Visual inspection"},
				Step{ID: "dimension-check", Name: "Dimension check"},
				Step{ID: "function-test", Name: "Function test"},
				Step{ID: "approval", Name: "Final approval"},
			),
			StartStep:      "visual-inspection",
			EndStep:        "approval",
			StartStatus:    state.StatusQualityCheck,
			CompleteStatus: state.StatusCompleted,
		},
	}
}
