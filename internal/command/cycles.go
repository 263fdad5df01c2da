package command

import (
	"sort"

	"github.com/batalabs/convo/internal/domain"
)

// CheckCycles rejects pipelines that reach themselves through any chain of
// steps, direct (A -> A) or indirect (A -> B -> A). Steps that name unknown
// commands are not an error here; they fail at dispatch time.
func CheckCycles(defs map[string]domain.CommandDefinition) error {
	const (
		unvisited = iota
		active
		done
	)
	state := make(map[string]int, len(defs))
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case active:
			start := 0
			for i, n := range stack {
				if n == name {
					start = i
					break
				}
			}
			path := append(append([]string{}, stack[start:]...), name)
			return &domain.PipelineCycleError{Path: path}
		case done:
			return nil
		}
		def, ok := defs[name]
		if !ok || def.Kind != domain.CommandPipeline || def.Pipeline == nil {
			state[name] = done
			return nil
		}
		state[name] = active
		stack = append(stack, name)
		for _, step := range def.Pipeline.Steps {
			if err := visit(step.CommandName); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		return nil
	}

	// Deterministic order keeps the reported path stable.
	names := make([]string, 0, len(defs))
	for n := range defs {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if err := visit(n); err != nil {
			return err
		}
	}
	return nil
}
