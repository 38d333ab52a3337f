// Package fields provides ready-made field functions and resolvers for the
// common denormalization shapes: embedding referenced documents, counting,
// copying, plucking and concatenating text.
//
// Every builder treats missing references as absence, never as an error:
// a dangling id yields no value, a missing array counts as empty and a
// missing path renders as the empty string.
package fields
