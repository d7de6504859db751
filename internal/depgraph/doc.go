// Package depgraph holds the static entity dependency graph.
//
// Each kind has a depth: every prerequisite of a kind sits at a strictly
// smaller depth. The default graph for swimming-competition data is declared
// in kinds.cue and embedded at build time; an alternative graph can be loaded
// from a CUE file with the same shape.
//
// Cycle detection is delegated to the OCM dag package while edges are added,
// so a bad declaration is rejected before any depth is derived.
package depgraph
