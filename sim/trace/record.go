// Package trace records per-event activity traces during a simulation run.
// This package has no dependencies on sim/: it stores pure data types and
// renders them as a formatted table or CSV.
package trace

import (
	"fmt"
	"strings"
)

// Action identifies what a traced object did.
type Action string

const (
	// MoveTo traces an entity moving to a location.
	MoveTo Action = "Move-to"
	// Acquiring traces an entity requesting resources.
	Acquiring Action = "Acquiring"
	// Acquired traces an entity being assigned resources.
	Acquired Action = "Acquired"
	// Release traces an entity releasing resources.
	Release Action = "Release"
	// Down traces a resource going down.
	Down Action = "Down"
	// Up traces a resource coming back up.
	Up Action = "Up"
)

// Record captures a single traced event: the simulated time, the acting
// object (typically an entity or resource), the action, its argument
// objects, and the sampled values of any configured columns.
type Record struct {
	Time    float64
	Object  string
	Action  Action
	Args    []string
	Columns []string
}

// ArgsString formats the argument objects as a single field, collapsing
// duplicates to "name (n)" in first-appearance order.
func (r Record) ArgsString() string {
	if len(r.Args) == 0 {
		return ""
	}
	if len(r.Args) == 1 {
		return r.Args[0]
	}
	counts := make(map[string]int, len(r.Args))
	for _, arg := range r.Args {
		counts[arg]++
	}
	var b strings.Builder
	seen := make(map[string]bool, len(counts))
	for _, arg := range r.Args {
		if seen[arg] {
			continue
		}
		seen[arg] = true
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		if n := counts[arg]; n > 1 {
			fmt.Fprintf(&b, "%s (%d)", arg, n)
		} else {
			b.WriteString(arg)
		}
	}
	return b.String()
}
