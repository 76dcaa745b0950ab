// Package work turns raw diagnostic reports into a prioritized, chunked
// backlog and hands out conflict-free batches to agents.
package work

import "time"

// ItemType classifies a backlog entry.
type ItemType string

// Item types parsed from report lines.
const (
	TypeError       ItemType = "error"
	TypeWarning     ItemType = "warning"
	TypeImprovement ItemType = "improvement"
	TypeFeature     ItemType = "feature"
)

// Priority orders backlog entries. High sorts first.
type Priority string

// Priorities.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// rank returns the sort rank of a priority (lower sorts first).
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

// ItemStatus tracks an item through assignment.
type ItemStatus string

// Item statuses.
const (
	StatusPending   ItemStatus = "pending"
	StatusAssigned  ItemStatus = "assigned"
	StatusCompleted ItemStatus = "completed"
	StatusFailed    ItemStatus = "failed"
)

// Item is one unit of backlog work. ID is a content hash of the raw report
// line, so re-parsing the same diagnostic maps to the same item.
type Item struct {
	ID         string     `json:"id"`
	Type       ItemType   `json:"type"`
	File       string     `json:"file"`
	Line       int        `json:"line,omitempty"`
	Message    string     `json:"message"`
	Priority   Priority   `json:"priority"`
	Status     ItemStatus `json:"status"`
	AssignedTo string     `json:"assignedTo,omitempty"`
	Attempts   int        `json:"attempts"`
}

// Chunk is an atomic batch of items handed to one agent. While a chunk is
// active every item in it is assigned; on release unfinished items revert to
// pending with attempts incremented.
type Chunk struct {
	ID          string     `json:"id"`
	ItemIDs     []string   `json:"itemIds"`
	AssignedTo  string     `json:"assignedTo"`
	AssignedAt  time.Time  `json:"assignedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Statistics summarizes distributor state for scaling heuristics and status
// output.
type Statistics struct {
	Total        int `json:"total"`
	Pending      int `json:"pending"`
	Assigned     int `json:"assigned"`
	Completed    int `json:"completed"`
	Failed       int `json:"failed"`
	ActiveChunks int `json:"activeChunks"`
}
