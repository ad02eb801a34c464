// Package schedule gates overlay activity to configured hours.
package schedule

import (
	"fmt"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// Gate decides whether the overlay should be active at a given time,
// driven by a standard 5-field cron expression. The expression describes
// the minutes during which the overlay is allowed to run, so window-style
// expressions use a wildcard minute field:
//
//	"* 9-17 * * MON-FRI"  office hours, weekdays
//	"* 0-8,20-23 * * *"   mornings and evenings
//
// An empty expression means always active.
type Gate struct {
	expr  string
	sched cronlib.Schedule
}

// NewGate parses the expression. Empty input yields an always-active gate.
func NewGate(expr string) (*Gate, error) {
	if expr == "" {
		return &Gate{}, nil
	}
	parser := cronlib.NewParser(cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor)
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid active_hours expression %q: %w", expr, err)
	}
	return &Gate{expr: expr, sched: sched}, nil
}

// Active reports whether the gate allows activity during now's minute.
func (g *Gate) Active(now time.Time) bool {
	if g.sched == nil {
		return true
	}
	// The schedule fires on minute boundaries. The gate is open during any
	// minute the expression matches, so ask for the next firing strictly
	// after the previous minute and check it lands on this one.
	minute := now.Truncate(time.Minute)
	return g.sched.Next(minute.Add(-time.Second)).Equal(minute)
}

// String returns the configured expression, or "always" when unset.
func (g *Gate) String() string {
	if g.expr == "" {
		return "always"
	}
	return g.expr
}
