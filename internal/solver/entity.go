package solver

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/swimport/internal/depgraph"
	"github.com/roach88/swimport/internal/ir"
	"github.com/roach88/swimport/internal/store"
)

// EntityStore is the slice of the permanent store the entity solver needs.
// *store.Store implements it.
type EntityStore interface {
	FindEntities(ctx context.Context, kind, keyHash string) ([]ir.Entity, error)
	FindOrCreateEntity(ctx context.Context, e ir.Entity, update bool) (int64, bool, error)
	EntityExists(ctx context.Context, kind string, id int64) (bool, error)
	UpdateEntity(ctx context.Context, kind string, id int64, attrs ir.Object) (bool, error)
}

// EntitySolver resolves any kind of a graph by exact natural-key match.
//
// The natural key of a kind is built from the kind's section of the request
// payload plus, for "<prerequisite>_id" components, the IDs already in the
// solved payload. String components are normalized before hashing.
// A section carrying "id" bypasses the key. Resolving it only checks the
// row exists; committing it merges the section's fields into that row.
type EntitySolver struct {
	graph    *depgraph.Graph
	entities EntityStore
}

// NewEntitySolver returns a solver for every kind of g backed by entities.
func NewEntitySolver(g *depgraph.Graph, entities EntityStore) *EntitySolver {
	return &EntitySolver{graph: g, entities: entities}
}

// Solve implements Solver.
func (s *EntitySolver) Solve(ctx context.Context, in Input) (Result, error) {
	spec, ok := s.graph.Kind(in.Kind)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", depgraph.ErrUnknownKind, in.Kind)
	}
	section, _ := in.Request.Section(in.Kind)
	ref := ir.RefField(in.Kind)

	if in.Mode != ModeResolve {
		for _, req := range spec.Requires {
			if _, ok := in.Solved.GetInt(ir.RefField(req)); !ok {
				return Unsolved("%s: prerequisite %s not resolved", in.Kind, req), nil
			}
		}
	}

	if id, ok := section.GetInt(ir.IDField); ok {
		if in.Mode == ModeCommit {
			found, err := s.entities.UpdateEntity(ctx, in.Kind, id, attributes(spec, section, in.Solved))
			if err != nil {
				return Result{}, err
			}
			if !found {
				return Unsolved("%s: id %d not found", in.Kind, id), nil
			}
			return Solved(ir.Object{ref: ir.Int(id)}), nil
		}
		exists, err := s.entities.EntityExists(ctx, in.Kind, id)
		if err != nil {
			return Result{}, err
		}
		if !exists {
			return Unsolved("%s: id %d not found", in.Kind, id), nil
		}
		return Solved(ir.Object{ref: ir.Int(id)}), nil
	}

	entity, err := s.Entity(spec, section, in.Solved)
	var missing *MissingKeyError
	if errors.As(err, &missing) {
		return Unsolved("%s", missing.Error()), nil
	}
	if err != nil {
		return Result{}, err
	}
	entity.CreatedBy = in.RecordID

	switch {
	case in.Mode == ModeCommit:
		return s.findOrCreate(ctx, entity, true)
	case in.Mode == ModeResolve && spec.Creatable:
		return s.findOrCreate(ctx, entity, false)
	}

	found, err := s.entities.FindEntities(ctx, in.Kind, entity.KeyHash)
	if err != nil {
		return Result{}, err
	}
	switch len(found) {
	case 0:
		if in.Mode == ModeTarget {
			return Solved(ir.Object{}), nil
		}
		return Unsolved("%s: no match for natural key", in.Kind), nil
	case 1:
		return Solved(ir.Object{ref: ir.Int(found[0].ID)}), nil
	default:
		ids := make([]int64, len(found))
		for i, e := range found {
			ids[i] = e.ID
		}
		amb := &store.AmbiguousError{Kind: in.Kind, KeyHash: entity.KeyHash, IDs: ids}
		return Ambiguous(amb.Error()), nil
	}
}

func (s *EntitySolver) findOrCreate(ctx context.Context, e ir.Entity, update bool) (Result, error) {
	id, _, err := s.entities.FindOrCreateEntity(ctx, e, update)
	var amb *store.AmbiguousError
	if errors.As(err, &amb) {
		return Ambiguous(amb.Error()), nil
	}
	if err != nil {
		return Result{}, err
	}
	return Solved(ir.Object{ir.RefField(e.Kind): ir.Int(id)}), nil
}

// MissingKeyError names a natural-key component that could not be filled.
type MissingKeyError struct {
	Kind  string
	Field string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("%s: key component %s not available", e.Kind, e.Field)
}

// Entity builds the entity row a section describes: its normalized natural
// key, the key hash, and attributes holding the section's fields as given
// plus every resolved prerequisite ID.
func (s *EntitySolver) Entity(spec ir.KindSpec, section, solved ir.Object) (ir.Entity, error) {
	key := make(ir.Object, len(spec.Key))
	for _, field := range spec.Key {
		if req, ok := depgraph.RefKind(spec, field); ok {
			id, ok := solved.GetInt(ir.RefField(req))
			if !ok {
				return ir.Entity{}, &MissingKeyError{Kind: spec.Name, Field: field}
			}
			key[field] = ir.Int(id)
			continue
		}
		v, ok := section[field]
		if !ok {
			return ir.Entity{}, &MissingKeyError{Kind: spec.Name, Field: field}
		}
		key[field] = v
	}
	key = NormalizeKey(key)

	keyHash, err := ir.KeyHash(spec.Name, key)
	if err != nil {
		return ir.Entity{}, err
	}

	return ir.Entity{
		Kind:       spec.Name,
		KeyHash:    keyHash,
		NaturalKey: key,
		Attributes: attributes(spec, section, solved),
	}, nil
}

// attributes holds the section's fields, except "id", plus every resolved
// prerequisite ID.
func attributes(spec ir.KindSpec, section, solved ir.Object) ir.Object {
	attrs := make(ir.Object, len(section)+len(spec.Requires))
	for field, v := range section {
		if field == ir.IDField {
			continue
		}
		attrs[field] = v
	}
	for _, req := range spec.Requires {
		if id, ok := solved.GetInt(ir.RefField(req)); ok {
			attrs[ir.RefField(req)] = ir.Int(id)
		}
	}
	return attrs.Clone()
}
