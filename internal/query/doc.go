// Package query provides the small predicate language collections are queried with.
//
// A Predicate is evaluated in-process by Match (memory collections) or compiled
// to SQL by package querysql (SQLite collections). Both backends must agree on
// the semantics below:
//
//   - Paths are dotted field paths ("authorId", "author.name", "tags.0")
//   - A missing field never matches, not even Eq{Value: ir.Null{}}
//   - Eq compares with ir.Equal; Int and Float never match each other
//   - Contains matches when the field is an array holding an element equal to Value
//   - And with no predicates, and a nil Predicate, match every document
//
// There is no OR and no ordering: resolvers and
// field functions only need "find the documents that reference X".
package query
