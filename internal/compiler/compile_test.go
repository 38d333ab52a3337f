package compiler

import (
	"errors"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/viewsync/internal/testutil"
)

func TestCompileViewBlog(t *testing.T) {
	specs, err := CompileString(testutil.BlogViews, "blog.cue")
	require.NoError(t, err)
	require.Len(t, specs, 1)

	spec := specs[0]
	assert.Equal(t, testutil.PostsViewID, spec.ID)
	assert.Equal(t, "posts", spec.Source)
	assert.Equal(t, "postsView", spec.Target)

	assert.Equal(t, []FieldSpec{
		{Name: "commentsCache", Op: OpLookupMany, From: "comments", Path: "commentIds"},
		{Name: "authorCache", Op: OpLookup, From: "authors", Path: "authorId"},
	}, spec.Sync)

	assert.Equal(t, []FieldSpec{
		{
			Name: "wholeText",
			Op:   OpConcat,
			Sep:  ", ",
			Parts: []PartSpec{
				{Kind: PartPath, Path: "text"},
				{Kind: PartJoined, Path: "commentsCache", Field: "text", Sep: ", "},
				{Kind: PartPath, Path: "authorCache.name"},
			},
		},
		{Name: "numberOfComments", Op: OpCount, Path: "commentsCache"},
	}, spec.PostSync)

	assert.Equal(t, []BindingSpec{
		{Trigger: "authors", Resolver: ResolverReferencedBy, Path: "authorId"},
	}, spec.RefreshBy)
}

func TestCompileViewOperations(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
		view: "comment-view": {
			source: "comments"
			target: "commentsView"
			sync: {
				post: copy: "postId"
				replies: referencing: {from: "replies", foreignKey: "commentId"}
				tags: pluck: {path: "labels", field: "name"}
				banner: concat: {parts: [{literal: "#"}, {path: "title"}]}
			}
			refreshBy: [{trigger: "posts", containedIn: "postIds"}]
		}
	`)
	require.NoError(t, v.Err())

	spec, err := CompileView(v.LookupPath(cue.ParsePath(`view."comment-view"`)))
	require.NoError(t, err)

	assert.Equal(t, "comment-view", spec.ID)
	assert.Equal(t, []FieldSpec{
		{Name: "post", Op: OpCopy, Path: "postId"},
		{Name: "replies", Op: OpReferencing, From: "replies", ForeignKey: "commentId"},
		{Name: "tags", Op: OpPluck, Path: "labels", Field: "name"},
		{Name: "banner", Op: OpConcat, Parts: []PartSpec{
			{Kind: PartLiteral, Literal: "#"},
			{Kind: PartPath, Path: "title"},
		}},
	}, spec.Sync)
	assert.Empty(t, spec.PostSync)
	assert.Equal(t, []BindingSpec{
		{Trigger: "posts", Resolver: ResolverContainedIn, Path: "postIds"},
	}, spec.RefreshBy)
}

func TestCompileViewsDeclarationOrder(t *testing.T) {
	specs, err := CompileString(`
		view: zeta: {source: "a", target: "z", sync: f: copy: "x"}
		view: alpha: {source: "a", target: "b", sync: f: copy: "x"}
	`, "order.cue")
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "zeta", specs[0].ID)
	assert.Equal(t, "alpha", specs[1].ID)
}

func TestCompileViewsNone(t *testing.T) {
	specs, err := CompileString(`other: 1`, "empty.cue")
	require.NoError(t, err)
	assert.Empty(t, specs)
}

func TestCompileViewErrors(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		wantField string
		wantMsg   string
	}{
		{
			name:      "missing source",
			src:       `view: v: {target: "b", sync: f: copy: "x"}`,
			wantField: "source",
			wantMsg:   "source is required",
		},
		{
			name:      "missing sync",
			src:       `view: v: {source: "a", target: "b"}`,
			wantField: "sync",
			wantMsg:   "sync is required",
		},
		{
			name:      "field is not a struct",
			src:       `view: v: {source: "a", target: "b", sync: f: "x"}`,
			wantField: "sync.f",
			wantMsg:   "expected a struct naming one operation",
		},
		{
			name:      "field names two operations",
			src:       `view: v: {source: "a", target: "b", sync: f: {copy: "x", count: "y"}}`,
			wantField: "sync.f",
			wantMsg:   "expected exactly one operation, found 2",
		},
		{
			name:      "lookup without from",
			src:       `view: v: {source: "a", target: "b", sync: f: lookup: {path: "x"}}`,
			wantField: "from",
			wantMsg:   "from is required",
		},
		{
			name:      "count of non-string",
			src:       `view: v: {source: "a", target: "b", sync: f: count: 3}`,
			wantField: "sync.f.count",
			wantMsg:   "must be a string",
		},
		{
			name:      "concat without parts",
			src:       `view: v: {source: "a", target: "b", sync: f: concat: {sep: ","}}`,
			wantField: "sync.f.concat.parts",
			wantMsg:   "concat requires parts",
		},
		{
			name:      "binding without resolver",
			src:       `view: v: {source: "a", target: "b", sync: f: copy: "x", refreshBy: [{trigger: "c"}]}`,
			wantField: "refreshBy[0]",
			wantMsg:   "binding requires a resolver",
		},
		{
			name:      "binding with two resolvers",
			src:       `view: v: {source: "a", target: "b", sync: f: copy: "x", refreshBy: [{trigger: "c", referencedBy: "p", containedIn: "q"}]}`,
			wantField: "refreshBy[0]",
			wantMsg:   "binding names two resolvers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileString(tt.src, "bad.cue")
			require.Error(t, err)

			var ce *CompileError
			require.True(t, errors.As(err, &ce), "expected CompileError, got %T: %v", err, err)
			assert.Equal(t, tt.wantField, ce.Field)
			assert.Contains(t, ce.Message, tt.wantMsg)
		})
	}
}

func TestCompileCUESyntaxError(t *testing.T) {
	_, err := CompileString("view: v: {source: \n", "broken.cue")
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "cue", ce.Field)
	assert.True(t, ce.Pos.IsValid())
	assert.Contains(t, err.Error(), "broken.cue")
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "sync", Message: "sync is required"}
	assert.Equal(t, "sync: sync is required", err.Error())
}
