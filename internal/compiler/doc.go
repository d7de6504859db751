// Package compiler turns the CUE declaration of the entity dependency graph
// into ir.KindSpec values.
//
// Each kind declares its depth (optional), its prerequisite kinds, its
// natural key and the typed fields a request section may carry. The compiler
// only checks each kind in isolation; graph-wide rules live in depgraph.
package compiler
