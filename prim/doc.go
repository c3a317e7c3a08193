// Package prim defines the flat primitive records consumed by the raymarch
// kernel and written to saved scenes.
//
// A [Buffer] is an ordered list of [Primitive] values in breadth-first order.
// Every record refers to its parent by position in the same buffer, with -1
// for the root, and a parent always precedes its children. Indices are valid
// only for the buffer they were taken from: a rebuild replaces the whole
// buffer.
package prim
