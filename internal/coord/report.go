package coord

import (
	"fmt"
	"strings"
	"time"
)

// Report renders a human-readable markdown snapshot of coordination state:
// held locks, active plans, the planned queue, and recent completions.
func (c *Coordinator) Report() string {
	locks := c.Locks()
	active := c.ActivePlans()
	planned := c.PlannedQueue()
	completed := c.CompletedLog()

	var b strings.Builder
	b.WriteString("# Coordination Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", time.Now().Format(time.RFC3339))

	b.WriteString("## Active Locks\n\n")
	if len(locks) == 0 {
		b.WriteString("None.\n\n")
	} else {
		b.WriteString("| Agent | Held Since | Files | Features | Description |\n")
		b.WriteString("|-------|------------|-------|----------|-------------|\n")
		for _, l := range locks {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				l.AgentID,
				l.Timestamp.Format(time.RFC3339),
				strings.Join(l.Files, ", "),
				strings.Join(l.Features, ", "),
				l.Description,
			)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Active Plans\n\n")
	if len(active) == 0 {
		b.WriteString("None.\n\n")
	} else {
		for _, p := range active {
			fmt.Fprintf(&b, "- **%s** (%s) — agent %s", p.Title, p.Priority, p.AgentID)
			if p.StartedAt != nil {
				fmt.Fprintf(&b, ", started %s", p.StartedAt.Format(time.RFC3339))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("## Planned Queue\n\n")
	if len(planned) == 0 {
		b.WriteString("Empty.\n\n")
	} else {
		for i, p := range planned {
			fmt.Fprintf(&b, "%d. **%s** (%s) — %s\n", i+1, p.Title, p.Priority, p.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Completed\n\n")
	if len(completed) == 0 {
		b.WriteString("None.\n")
	} else {
		// Newest last in the log; show the most recent first, capped.
		const maxShown = 20
		start := 0
		if len(completed) > maxShown {
			start = len(completed) - maxShown
		}
		for i := len(completed) - 1; i >= start; i-- {
			p := completed[i]
			status := "done"
			if p.Status == PlanFailed {
				status = "failed"
			}
			fmt.Fprintf(&b, "- **%s** — agent %s, %s\n", p.Title, p.AgentID, status)
		}
	}

	return b.String()
}
