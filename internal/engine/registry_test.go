package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/viewsync/internal/collection"
	"github.com/roach88/viewsync/internal/ir"
)

func TestRegister_Validation(t *testing.T) {
	posts := collection.NewMemory("posts")
	view := collection.NewMemory("postsView")
	other := collection.NewMemory("otherView")
	field := []Field{{Name: "f", Fn: constField(ir.Int(1))}}

	existing := Definition{ID: "existing", Source: posts, Target: view, Sync: field}

	tests := []struct {
		name string
		def  Definition
		want error
	}{
		{
			name: "identifier exists wins over every other problem",
			def:  Definition{ID: "existing", Source: posts, Target: posts},
			want: ErrIdentifierExists,
		},
		{
			name: "source equals target",
			def:  Definition{ID: "new", Source: posts, Target: posts, Sync: field},
			want: ErrSourceTargetMustDiffer,
		},
		{
			name: "same collection name counts as same collection",
			def:  Definition{ID: "new", Source: posts, Target: collection.NewMemory("posts"), Sync: field},
			want: ErrSourceTargetMustDiffer,
		},
		{
			name: "source equals target checked before sync content",
			def:  Definition{ID: "new", Source: posts, Target: posts},
			want: ErrSourceTargetMustDiffer,
		},
		{
			name: "no sync fields",
			def:  Definition{ID: "new", Source: posts, Target: other, PostSync: field},
			want: ErrSyncNeedsContent,
		},
		{
			name: "sync content checked before duplicate pair",
			def:  Definition{ID: "new", Source: posts, Target: view},
			want: ErrSyncNeedsContent,
		},
		{
			name: "duplicate pair",
			def:  Definition{ID: "new", Source: posts, Target: view, Sync: field},
			want: ErrDuplicateSyncForPair,
		},
		{
			name: "missing id",
			def:  Definition{Source: posts, Target: other, Sync: field},
			want: ErrInvalidArgument,
		},
		{
			name: "missing target",
			def:  Definition{ID: "new", Source: posts, Sync: field},
			want: ErrInvalidArgument,
		},
		{
			name: "nil field function",
			def:  Definition{ID: "new", Source: posts, Target: other, Sync: []Field{{Name: "f"}}},
			want: ErrInvalidArgument,
		},
		{
			name: "field overwrites id",
			def: Definition{ID: "new", Source: posts, Target: other,
				Sync: []Field{{Name: "_id", Fn: constField(ir.String("x"))}}},
			want: ErrInvalidArgument,
		},
		{
			name: "duplicate field name",
			def: Definition{ID: "new", Source: posts, Target: other,
				Sync: field, PostSync: []Field{field[0], field[0]}},
			want: ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t)
			require.NoError(t, e.Register(existing))

			err := e.Register(tt.def)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			defs := e.Definitions()
			require.Len(t, defs, 1, "failed registration must not change the registry")
			assert.Equal(t, "existing", defs[0].ID)
		})
	}
}

func TestRegister_SameFieldNameAcrossStages(t *testing.T) {
	e := newTestEngine(t)

	err := e.Register(Definition{
		ID:       "v",
		Source:   collection.NewMemory("a"),
		Target:   collection.NewMemory("b"),
		Sync:     []Field{{Name: "f", Fn: constField(ir.Int(1))}},
		PostSync: []Field{{Name: "f", Fn: constField(ir.Int(2))}},
	})
	assert.NoError(t, err)
}

func TestRegister_SubscribesToSource(t *testing.T) {
	e := newTestEngine(t)
	src := collection.NewMemory("src")
	dst := collection.NewMemory("dst")

	require.NoError(t, e.Register(Definition{
		ID: "v", Source: src, Target: dst,
		Sync: []Field{{Name: "f", Fn: constField(ir.Int(1))}},
	}))

	for _, kind := range []collection.EventKind{collection.AfterInsert, collection.AfterUpdate, collection.AfterRemove} {
		assert.Equal(t, 1, src.Subscribers(kind), kind.String())
		assert.Equal(t, 0, dst.Subscribers(kind), kind.String())
	}
}

func TestRegister_CopiesFields(t *testing.T) {
	e := newTestEngine(t)
	def := testDefinition([]Field{{Name: "f", Fn: constField(ir.Int(1))}}, nil)
	require.NoError(t, e.Register(def))

	def.Sync[0] = Field{Name: "g", Fn: constField(ir.Int(2))}

	defs := e.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, "f", defs[0].Sync[0].Name)
}

func TestRegisterRefreshBinding_Validation(t *testing.T) {
	posts := collection.NewMemory("posts")
	authors := collection.NewMemory("authors")
	resolver := func(context.Context, ir.Object, string) ([]string, error) { return nil, nil }

	tests := []struct {
		name    string
		binding RefreshBinding
		want    error
	}{
		{
			name:    "unknown identifier",
			binding: RefreshBinding{ID: "missing", Trigger: authors, Resolver: resolver},
			want:    ErrRefreshNeedsExistingIdentifier,
		},
		{
			name:    "existence checked before trigger",
			binding: RefreshBinding{ID: "missing", Trigger: posts, Resolver: resolver},
			want:    ErrRefreshNeedsExistingIdentifier,
		},
		{
			name:    "trigger is source",
			binding: RefreshBinding{ID: "view", Trigger: posts, Resolver: resolver},
			want:    ErrRefreshCannotTargetSource,
		},
		{
			name:    "nil resolver",
			binding: RefreshBinding{ID: "view", Trigger: authors},
			want:    ErrInvalidArgument,
		},
		{
			name:    "nil trigger",
			binding: RefreshBinding{ID: "view", Resolver: resolver},
			want:    ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t)
			require.NoError(t, e.Register(Definition{
				ID: "view", Source: posts, Target: collection.NewMemory("postsView"),
				Sync: []Field{{Name: "f", Fn: constField(ir.Int(1))}},
			}))

			err := e.RegisterRefreshBinding(tt.binding)
			assert.ErrorIs(t, err, tt.want)

			bindings, err := e.Bindings("view")
			require.NoError(t, err)
			assert.Empty(t, bindings)
		})
	}
}

func TestDeregister(t *testing.T) {
	e := newTestEngine(t)
	src := collection.NewMemory("src")
	trigger := collection.NewMemory("trigger")

	require.NoError(t, e.Register(Definition{
		ID: "v", Source: src, Target: collection.NewMemory("dst"),
		Sync: []Field{{Name: "f", Fn: constField(ir.Int(1))}},
	}))
	require.NoError(t, e.RegisterRefreshBinding(RefreshBinding{
		ID: "v", Trigger: trigger,
		Resolver: func(context.Context, ir.Object, string) ([]string, error) { return nil, nil },
	}))
	assert.Equal(t, 1, trigger.Subscribers(collection.AfterUpdate))

	require.NoError(t, e.Deregister("v"))

	assert.Empty(t, e.Definitions())
	for _, kind := range []collection.EventKind{collection.AfterInsert, collection.AfterUpdate, collection.AfterRemove} {
		assert.Equal(t, 0, src.Subscribers(kind))
		assert.Equal(t, 0, trigger.Subscribers(kind))
	}

	assert.ErrorIs(t, e.Deregister("v"), ErrNotFound)

	_, err := e.Bindings("v")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeregister_IdentifierReusable(t *testing.T) {
	e := newTestEngine(t)
	def := testDefinition([]Field{{Name: "f", Fn: constField(ir.Int(1))}}, nil)

	require.NoError(t, e.Register(def))
	require.NoError(t, e.Deregister(def.ID))
	assert.NoError(t, e.Register(def))
}

func TestDefinitions_RegistrationOrder(t *testing.T) {
	e := newTestEngine(t)
	src := collection.NewMemory("src")
	field := []Field{{Name: "f", Fn: constField(ir.Int(1))}}

	for _, id := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, e.Register(Definition{
			ID: id, Source: src, Target: collection.NewMemory(id + "View"), Sync: field,
		}))
	}

	var ids []string
	for _, d := range e.Definitions() {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, ids)
}

func TestEdgesAndCycleWarnings(t *testing.T) {
	e := newTestEngine(t)
	posts := collection.NewMemory("posts")
	view := collection.NewMemory("postsView")
	resolver := func(context.Context, ir.Object, string) ([]string, error) { return nil, nil }

	require.NoError(t, e.Register(Definition{
		ID: "v", Source: posts, Target: view,
		Sync: []Field{{Name: "f", Fn: constField(ir.Int(1))}},
	}))
	require.NoError(t, e.RegisterRefreshBinding(RefreshBinding{
		ID: "v", Trigger: collection.NewMemory("authors"), Resolver: resolver,
	}))

	assert.Equal(t, []Edge{
		{From: "posts", To: "postsView", DefinitionID: "v", Kind: EdgeSync},
		{From: "authors", To: "postsView", DefinitionID: "v", Kind: EdgeRefresh},
	}, e.Edges())
	assert.Empty(t, e.CycleWarnings())

	require.NoError(t, e.RegisterRefreshBinding(RefreshBinding{ID: "v", Trigger: view, Resolver: resolver}))

	warnings := e.CycleWarnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"postsView", "postsView"}, warnings[0].Path)
}

func TestClose_TearsDownSubscriptions(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	src := collection.NewMemory("src")
	require.NoError(t, e.Register(Definition{
		ID: "v", Source: src, Target: collection.NewMemory("dst"),
		Sync: []Field{{Name: "f", Fn: constField(ir.Int(1))}},
	}))

	require.NoError(t, e.Close())
	assert.Empty(t, e.Definitions())
	assert.Equal(t, 0, src.Subscribers(collection.AfterInsert))
}
