// Package compiler turns declarative CUE view declarations into engine
// definitions.
//
// A view declaration names its source and target collections, the fields
// computed in each stage and the refresh bindings that keep it fresh:
//
//	view: DENORMALIZED_POST_COLLECTION: {
//		source: "posts"
//		target: "postsView"
//		sync: {
//			commentsCache: lookupMany: {from: "comments", path: "commentIds"}
//			authorCache: lookup: {from: "authors", path: "authorId"}
//		}
//		postSync: {
//			wholeText: concat: {
//				sep: ", "
//				parts: [
//					{path: "text"},
//					{joined: {path: "commentsCache", field: "text", sep: ", "}},
//					{path: "authorCache.name"},
//				]
//			}
//			numberOfComments: count: "commentsCache"
//		}
//		refreshBy: [{trigger: "authors", referencedBy: "authorId"}]
//	}
//
// Compilation happens in three steps: CompileView parses CUE into a ViewSpec,
// Validate checks it, and Bind resolves collection names through a Catalog
// and builds the field functions.
package compiler

// Field operations.
const (
	OpLookup      = "lookup"
	OpLookupMany  = "lookupMany"
	OpReferencing = "referencing"
	OpCount       = "count"
	OpCopy        = "copy"
	OpPluck       = "pluck"
	OpConcat      = "concat"
)

// Refresh resolvers.
const (
	ResolverReferencedBy = "referencedBy"
	ResolverContainedIn  = "containedIn"
)

// Concat part kinds.
const (
	PartPath    = "path"
	PartLiteral = "literal"
	PartJoined  = "joined"
)

// ViewSpec is the compiled form of one view declaration.
type ViewSpec struct {
	ID        string        `json:"id"`
	Source    string        `json:"source"`
	Target    string        `json:"target"`
	Sync      []FieldSpec   `json:"sync"`
	PostSync  []FieldSpec   `json:"post_sync,omitempty"`
	RefreshBy []BindingSpec `json:"refresh_by,omitempty"`
}

// FieldSpec is one computed field. Which of the optional members are
// meaningful depends on Op.
type FieldSpec struct {
	Name string `json:"name"`
	Op   string `json:"op"`

	From       string     `json:"from,omitempty"`        // lookup, lookupMany, referencing
	Path       string     `json:"path,omitempty"`        // every op except referencing and concat
	ForeignKey string     `json:"foreign_key,omitempty"` // referencing
	Field      string     `json:"field,omitempty"`       // pluck
	Sep        string     `json:"sep,omitempty"`         // concat
	Parts      []PartSpec `json:"parts,omitempty"`       // concat
}

// PartSpec is one segment of a concat field.
type PartSpec struct {
	Kind    string `json:"kind"`
	Path    string `json:"path,omitempty"`
	Literal string `json:"literal,omitempty"`
	Field   string `json:"field,omitempty"`
	Sep     string `json:"sep,omitempty"`
}

// BindingSpec is one refresh binding: changes to Trigger recompute the
// source documents the resolver finds through Path.
type BindingSpec struct {
	Trigger  string `json:"trigger"`
	Resolver string `json:"resolver"`
	Path     string `json:"path"`
}
