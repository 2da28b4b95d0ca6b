package workflow

import (
	"fmt"
	"regexp"
	"slices"
)

var pascalCaseRe = regexp.MustCompile(`^[A-Z][a-zA-Z0-9]*$`)

// ValidationResult holds errors and warnings from workflow validation.
type ValidationResult struct {
	Errors   []string // Blocking: invalid references, unreachable states
	Warnings []string // Non-blocking: naming, cycles
}

// HasErrors returns true if there are blocking validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Validate checks a Spec for structural problems. The engine refuses to
// start with a spec that has errors.
func Validate(spec *Spec) *ValidationResult {
	r := &ValidationResult{}
	if len(spec.States) == 0 {
		r.Errors = append(r.Errors, "workflow.states must be non-empty")
		return r
	}
	if _, ok := spec.States[spec.Entry]; !ok {
		r.Errors = append(r.Errors, fmt.Sprintf(
			"workflow.entry %q does not reference a key in states", spec.Entry))
		return r
	}

	for _, name := range sortedStates(spec) {
		validateEvents(spec, name, spec.States[name], r)
	}
	validateTerminal(spec, r)
	validateReachability(spec, r)
	validateCycles(spec, r)
	return r
}

// validateEvents checks event targets and PascalCase names.
func validateEvents(spec *Spec, name string, state *State, r *ValidationResult) {
	if state == nil {
		r.Errors = append(r.Errors, fmt.Sprintf("workflow.states[%q] is nil", name))
		return
	}
	for _, event := range SortedEvents(state.OnEvent) {
		target := state.OnEvent[event]
		if _, ok := spec.States[target]; !ok {
			r.Errors = append(r.Errors, fmt.Sprintf(
				"workflow.states[%q].on_event[%q] target %q does not exist in states",
				name, event, target))
		}
		if !pascalCaseRe.MatchString(event) {
			r.Warnings = append(r.Warnings, fmt.Sprintf(
				"workflow.states[%q].on_event[%q]: event name should be PascalCase",
				name, event))
		}
	}
}

// validateTerminal requires at least one terminal state and that every state
// can reach one, so no session can loop forever without a timeout path.
func validateTerminal(spec *Spec, r *ValidationResult) {
	var terminals []string
	for _, name := range sortedStates(spec) {
		if s := spec.States[name]; s != nil && len(s.OnEvent) == 0 {
			terminals = append(terminals, name)
		}
	}
	if len(terminals) == 0 {
		r.Errors = append(r.Errors, "workflow has no terminal state")
		return
	}

	reverse := make(map[string][]string)
	for name, s := range spec.States {
		if s == nil {
			continue
		}
		for _, target := range s.OnEvent {
			reverse[target] = append(reverse[target], name)
		}
	}
	canFinish := walk(terminals, func(n string) []string { return reverse[n] })
	for _, name := range sortedStates(spec) {
		if !canFinish[name] {
			r.Errors = append(r.Errors, fmt.Sprintf(
				"workflow.states[%q] cannot reach a terminal state", name))
		}
	}
}

// validateReachability reports states that cannot be reached from the entry.
func validateReachability(spec *Spec, r *ValidationResult) {
	reached := walk([]string{spec.Entry}, func(n string) []string {
		s := spec.States[n]
		if s == nil {
			return nil
		}
		out := make([]string, 0, len(s.OnEvent))
		for _, target := range s.OnEvent {
			out = append(out, target)
		}
		return out
	})
	for _, name := range sortedStates(spec) {
		if !reached[name] {
			r.Errors = append(r.Errors, fmt.Sprintf(
				"workflow.states[%q] is unreachable from entry %q", name, spec.Entry))
		}
	}
}

// validateCycles reports cycles as warnings; retry loops are legitimate.
func validateCycles(spec *Spec, r *ValidationResult) {
	for _, cycle := range detectCycles(spec) {
		r.Warnings = append(r.Warnings, fmt.Sprintf("workflow contains a cycle: %s", cycle))
	}
}

// walk returns every node reachable from roots.
func walk(roots []string, next func(string) []string) map[string]bool {
	seen := make(map[string]bool)
	queue := append([]string(nil), roots...)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if seen[n] {
			continue
		}
		seen[n] = true
		queue = append(queue, next(n)...)
	}
	return seen
}

// detectCycles uses DFS to find cycles in the state graph.
func detectCycles(spec *Spec) []string {
	const (
		white = iota // unvisited
		gray         // in current DFS path
		black        // fully explored
	)

	color := make(map[string]int, len(spec.States))
	var cycles []string

	var dfs func(state string)
	dfs = func(state string) {
		color[state] = gray
		s := spec.States[state]
		if s == nil {
			color[state] = black
			return
		}
		for _, event := range SortedEvents(s.OnEvent) {
			target := s.OnEvent[event]
			switch color[target] {
			case gray:
				cycles = append(cycles, fmt.Sprintf("%s -> %s", state, target))
			case white:
				dfs(target)
			}
		}
		color[state] = black
	}

	for _, name := range sortedStates(spec) {
		if color[name] == white {
			dfs(name)
		}
	}

	return cycles
}

func sortedStates(spec *Spec) []string {
	names := make([]string, 0, len(spec.States))
	for name := range spec.States {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
