package coord

import "time"

// Priority orders planned work. High sorts first.
type Priority string

// Priorities.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// PlanStatus tracks a work plan through its lifecycle.
type PlanStatus string

// Plan statuses. Completed and failed are terminal; such plans live only in
// the append-only completed log.
const (
	PlanPlanned   PlanStatus = "planned"
	PlanActive    PlanStatus = "active"
	PlanCompleted PlanStatus = "completed"
	PlanFailed    PlanStatus = "failed"
)

// WorkPlan is a pre-negotiated, feature-level unit of work. Richer than a
// backlog item: agents declare intent before claiming, so overlapping plans
// are rejected up front instead of colliding mid-task.
type WorkPlan struct {
	ID                     string     `json:"id"`
	AgentID                string     `json:"agentId"`
	Title                  string     `json:"title"`
	Description            string     `json:"description"`
	Files                  []string   `json:"files"`
	Features               []string   `json:"features"`
	Priority               Priority   `json:"priority"`
	Status                 PlanStatus `json:"status"`
	CreatedAt              time.Time  `json:"createdAt"`
	StartedAt              *time.Time `json:"startedAt,omitempty"`
	CompletedAt            *time.Time `json:"completedAt,omitempty"`
	BusinessValue          string     `json:"businessValue,omitempty"`
	TechnicalJustification string     `json:"technicalJustification,omitempty"`
}
