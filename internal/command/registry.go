// Package command holds the command registry, the pipeline cycle check,
// the template expander and the on-disk command library.
package command

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/batalabs/convo/internal/domain"
)

// Snapshot is an immutable view of the user-defined command table.
// Readers may hold on to a snapshot for as long as they like; writers
// always build a new one.
type Snapshot struct {
	version uint64
	byName  map[string]domain.CommandDefinition
	ordered []domain.CommandDefinition
}

// Version increases by one on every successful Replace.
func (s *Snapshot) Version() uint64 { return s.version }

// Len returns the number of user-defined commands.
func (s *Snapshot) Len() int { return len(s.ordered) }

// Lookup returns the definition with exactly this name.
func (s *Snapshot) Lookup(name string) (domain.CommandDefinition, bool) {
	d, ok := s.byName[name]
	return d, ok
}

// Commands returns the definitions ordered favorites first, then by sort
// order, then by name. The slice is a copy.
func (s *Snapshot) Commands() []domain.CommandDefinition {
	out := make([]domain.CommandDefinition, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// Names returns the command names in display order.
func (s *Snapshot) Names() []string {
	names := make([]string, len(s.ordered))
	for i, d := range s.ordered {
		names[i] = d.Name
	}
	return names
}

// ResolutionKind tells which table a name resolved against.
type ResolutionKind int

const (
	NotFound ResolutionKind = iota
	ResolvedDirective
	ResolvedCommand
)

// Resolution is the result of resolving a command name. NotFound is a
// normal outcome, not an error.
type Resolution struct {
	Kind      ResolutionKind
	Name      string
	Directive domain.Directive
	Command   domain.CommandDefinition
}

// Found reports whether the name resolved to anything.
func (r Resolution) Found() bool { return r.Kind != NotFound }

// Option configures a Registry.
type Option func(*Registry)

// WithShadowing lets user commands reuse built-in directive names. Such
// commands are still never reached through Resolve, which checks built-ins
// first; they are only reachable as pipeline steps.
func WithShadowing() Option {
	return func(r *Registry) { r.allowShadow = true }
}

// Registry owns the current command snapshot. Replace swaps the whole
// snapshot atomically so readers never observe a partial table.
type Registry struct {
	current     atomic.Pointer[Snapshot]
	allowShadow bool
}

// NewRegistry returns a registry holding an empty snapshot.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{}
	for _, o := range opts {
		o(r)
	}
	r.current.Store(&Snapshot{byName: map[string]domain.CommandDefinition{}})
	return r
}

// Snapshot returns the current snapshot.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Replace validates defs and installs them as the new snapshot. On error the
// previous snapshot stays in place.
func (r *Registry) Replace(defs []domain.CommandDefinition) (*Snapshot, error) {
	byName := make(map[string]domain.CommandDefinition, len(defs))
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate command name %q", d.Name)
		}
		if !r.allowShadow && domain.IsDirective(d.Name) {
			return nil, fmt.Errorf("command name %q is reserved by a built-in directive", d.Name)
		}
		byName[d.Name] = d
	}
	if err := CheckCycles(byName); err != nil {
		return nil, err
	}

	ordered := make([]domain.CommandDefinition, 0, len(byName))
	for _, d := range byName {
		ordered = append(ordered, d)
	}
	SortCommands(ordered)

	for {
		prev := r.current.Load()
		next := &Snapshot{version: prev.version + 1, byName: byName, ordered: ordered}
		if r.current.CompareAndSwap(prev, next) {
			return next, nil
		}
	}
}

// Resolve looks up name against the built-in directives first and the
// user-defined table second. Matching is exact and case-sensitive.
func (r *Registry) Resolve(name string) Resolution {
	return Resolve(r.Snapshot(), name)
}

// Resolve resolves name against a specific snapshot.
func Resolve(s *Snapshot, name string) Resolution {
	if d, ok := domain.LookupDirective(name); ok {
		return Resolution{Kind: ResolvedDirective, Name: name, Directive: d}
	}
	if s != nil {
		if c, ok := s.Lookup(name); ok {
			return Resolution{Kind: ResolvedCommand, Name: name, Command: c}
		}
	}
	return Resolution{Kind: NotFound, Name: name}
}

// SortCommands orders definitions favorites first, then by sort order,
// then by name.
func SortCommands(defs []domain.CommandDefinition) {
	sort.SliceStable(defs, func(i, j int) bool {
		a, b := defs[i], defs[j]
		if a.IsFavorite != b.IsFavorite {
			return a.IsFavorite
		}
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return a.Name < b.Name
	})
}
