// Package routine implements the Routine Registry and Subroutine Library
// (spec §4.F/§4.H): the catalog of named, agent-directed tasks the REST
// boundary can start, and the pathfinding/mining building blocks they
// compose. Grounded on original_source/routines/base.py's Routine base
// class and original_source/routines/subroutines.py's algorithms.
package routine

import (
	"context"
	"sort"

	"github.com/denecity/taas/internal/command"
)

// Routine is the contract every registry entry satisfies, mirroring
// original_source's Routine ABC: a name, a human label, a description, a
// config template advertised to clients, and the entry point itself.
type Routine interface {
	Name() string
	HumanLabel() string
	Description() string
	ConfigTemplate() map[string]any
	Run(ctx context.Context, agent *command.Agent, config map[string]any) error
}

// Registry is the immutable catalog of routines available to start.
type Registry struct {
	byName map[string]Routine
}

// NewRegistry builds the registry of every routine this orchestrator ships,
// analogous to original_source's discover_routines() directory scan — here
// expressed as an explicit literal list, since Go has no equivalent dynamic
// module discovery to imitate idiomatically.
func NewRegistry() *Registry {
	all := []Routine{
		&executeCommandRoutine{},
		&setLabelRoutine{},
		&digToCoordinateRoutine{},
		&moveToCoordinateRoutine{},
		&mineFullChunkRoutine{},
		&autoChunkMinerRoutine{},
		&smartMineFullRoutine{},
		&simpleWalkRoutine{},
		&avoidGoldDigDiamondRoutine{},
	}

	byName := make(map[string]Routine, len(all))
	for _, r := range all {
		byName[r.Name()] = r
	}
	return &Registry{byName: byName}
}

// Get looks up a routine by name.
func (r *Registry) Get(name string) (Routine, bool) {
	rt, ok := r.byName[name]
	return rt, ok
}

// List returns every routine sorted by name, for the GET /routines listing.
func (r *Registry) List() []Routine {
	out := make([]Routine, 0, len(r.byName))
	for _, rt := range r.byName {
		out = append(out, rt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
