// Package testutil provides shared fixtures for engine, harness and CLI tests.
package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/viewsync/internal/collection"
	"github.com/roach88/viewsync/internal/engine"
	"github.com/roach88/viewsync/internal/fields"
	"github.com/roach88/viewsync/internal/ident"
	"github.com/roach88/viewsync/internal/ir"
)

// PostsViewID identifies the blog's denormalized posts view.
const PostsViewID = "DENORMALIZED_POST_COLLECTION"

// Blog is the canonical fixture world: authors, comments and posts, with
// posts denormalized into postsView.
//
// Every postsView document carries
//
//	commentsCache     the comments listed in commentIds, in order
//	authorCache       the author referenced by authorId
//	wholeText         "<text>, <comment texts joined by ', '>, <author name>"
//	numberOfComments  len(commentsCache)
//
// and author changes propagate through an authors refresh binding. Comment
// changes deliberately do not, so manual and bulk refresh have work to do.
type Blog struct {
	Authors   collection.Collection
	Comments  collection.Collection
	Posts     collection.Collection
	PostsView collection.Collection
}

// NewBlog builds the blog over collections created by open.
func NewBlog(open func(name string) collection.Collection) *Blog {
	return &Blog{
		Authors:   open("authors"),
		Comments:  open("comments"),
		Posts:     open("posts"),
		PostsView: open("postsView"),
	}
}

// NewMemoryBlog builds the blog over in-memory collections.
func NewMemoryBlog() *Blog {
	return NewBlog(func(name string) collection.Collection {
		return collection.NewMemory(name, collection.WithIDGenerator(ident.NewSequence(name)))
	})
}

// Definition returns the posts view definition.
func (b *Blog) Definition() engine.Definition {
	return engine.Definition{
		ID:     PostsViewID,
		Source: b.Posts,
		Target: b.PostsView,
		Sync: []engine.Field{
			{Name: "commentsCache", Fn: fields.LookupMany(b.Comments, "commentIds")},
			{Name: "authorCache", Fn: fields.Lookup(b.Authors, "authorId")},
		},
		PostSync: []engine.Field{
			{Name: "wholeText", Fn: fields.Concat(", ",
				fields.Path("text"),
				fields.Joined("commentsCache", "text", ", "),
				fields.Path("authorCache.name"),
			)},
			{Name: "numberOfComments", Fn: fields.Count("commentsCache")},
		},
	}
}

// AuthorsBinding refreshes every post of a changed author.
func (b *Blog) AuthorsBinding() engine.RefreshBinding {
	return engine.RefreshBinding{
		ID:       PostsViewID,
		Trigger:  b.Authors,
		Resolver: fields.ReferencedBy(b.Posts, "authorId"),
	}
}

// Register registers the posts view and its authors binding.
func (b *Blog) Register(t testing.TB, e *engine.Engine) {
	t.Helper()
	require.NoError(t, e.Register(b.Definition()))
	require.NoError(t, e.RegisterRefreshBinding(b.AuthorsBinding()))
}

// Seed inserts the fixture documents:
//
//	author-1..3   "author N"
//	comment-1..4  "comment N"
//	post-1  author-1  [comment-1]
//	post-2  author-1  [comment-2]
//	post-3  author-2  []
//	post-4  author-2  [comment-4]
func (b *Blog) Seed(t testing.TB) {
	t.Helper()
	ctx := context.Background()

	insert := func(c collection.Collection, doc ir.Object) {
		t.Helper()
		_, err := c.Insert(ctx, doc)
		require.NoError(t, err)
	}

	for _, n := range []string{"1", "2", "3"} {
		insert(b.Authors, ir.Object{"_id": ir.String("author-" + n), "name": ir.String("author " + n)})
	}
	for _, n := range []string{"1", "2", "3", "4"} {
		insert(b.Comments, ir.Object{"_id": ir.String("comment-" + n), "text": ir.String("comment " + n)})
	}

	posts := []struct {
		n, author string
		comments  []string
	}{
		{"1", "author-1", []string{"comment-1"}},
		{"2", "author-1", []string{"comment-2"}},
		{"3", "author-2", nil},
		{"4", "author-2", []string{"comment-4"}},
	}
	for _, p := range posts {
		ids := ir.Array{}
		for _, c := range p.comments {
			ids = append(ids, ir.String(c))
		}
		insert(b.Posts, ir.Object{
			"_id":            ir.String("post-" + p.n),
			"text":           ir.String("post " + p.n),
			"additionalText": ir.String("additionalText post " + p.n),
			"authorId":       ir.String(p.author),
			"commentIds":     ids,
		})
	}
}

// View returns the postsView document for id, failing the test when absent.
func (b *Blog) View(t testing.TB, id string) ir.Object {
	t.Helper()
	doc, ok, err := b.PostsView.Find(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok, "postsView %q should exist", id)
	return doc
}

// ViewCount returns the number of postsView documents.
func (b *Blog) ViewCount(t testing.TB) int {
	t.Helper()
	docs, err := b.PostsView.FindMany(context.Background(), nil)
	require.NoError(t, err)
	return len(docs)
}

// BlogViews declares the posts view and its authors binding in CUE. It
// compiles to the same definition as Definition and AuthorsBinding.
const BlogViews = `package blog

view: DENORMALIZED_POST_COLLECTION: {
	source: "posts"
	target: "postsView"
	sync: {
		commentsCache: lookupMany: {from: "comments", path: "commentIds"}
		authorCache: lookup: {from: "authors", path: "authorId"}
	}
	postSync: {
		wholeText: concat: {
			sep: ", "
			parts: [
				{path: "text"},
				{joined: {path: "commentsCache", field: "text", sep: ", "}},
				{path: "authorCache.name"},
			]
		}
		numberOfComments: count: "commentsCache"
	}
	refreshBy: [{trigger: "authors", referencedBy: "authorId"}]
}
`

// Catalog resolves the blog's collection names.
func (b *Blog) Catalog(name string) collection.Collection {
	switch name {
	case "authors":
		return b.Authors
	case "comments":
		return b.Comments
	case "posts":
		return b.Posts
	case "postsView":
		return b.PostsView
	default:
		return nil
	}
}
