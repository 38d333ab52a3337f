package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/viewsync/internal/collection"
	"github.com/roach88/viewsync/internal/compiler"
	"github.com/roach88/viewsync/internal/engine"
	"github.com/roach88/viewsync/internal/store"
)

// workspace is an open database with every view of a views directory
// installed on it.
type workspace struct {
	store  *store.Store
	engine *engine.Engine
	views  []compiler.ViewSpec
	logger *slog.Logger
}

// openWorkspace loads the views in viewsDir, opens the database and installs
// the views. Callers must Close the workspace.
func openWorkspace(opts *RootOptions, viewsDir string, logw io.Writer) (*workspace, error) {
	logger := opts.Logger(logw)

	loadResult, loadErrs := LoadViews(viewsDir, LoadModeFailFast)
	if len(loadErrs) > 0 {
		code := ErrCodeGeneric
		var loadErr *LoadError
		if errors.As(loadErrs[0], &loadErr) {
			code = loadErr.Code
		}
		return nil, NewCodedError(ExitCommandError, code, "failed to load views", loadErrs[0])
	}
	logger.Debug("views loaded", "dir", viewsDir, "files", loadResult.FileCount, "views", len(loadResult.Views))

	if verrs := compiler.ValidateAll(loadResult.Views); len(verrs) > 0 {
		return nil, NewCodedError(ExitCommandError, verrs[0].Code, "invalid views", verrs[0])
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, NewCodedError(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}

	engOpts := []engine.EngineOption{engine.WithLogger(logger)}
	if opts.MaxSteps > 0 {
		engOpts = append(engOpts, engine.WithMaxSteps(opts.MaxSteps))
	}
	eng, err := engine.New(engOpts...)
	if err != nil {
		st.Close()
		return nil, NewCodedError(ExitCommandError, ErrCodeGeneric, "failed to create engine", err)
	}

	catalog := compiler.Catalog(func(name string) collection.Collection {
		return st.Collection(name)
	})
	if err := compiler.Install(eng, loadResult.Views, catalog); err != nil {
		eng.Close()
		st.Close()
		return nil, NewCodedError(ExitCommandError, ErrCodeGeneric, "failed to install views", err)
	}

	for _, w := range eng.CycleWarnings() {
		logger.Warn("view cycle", "path", w.Path, "message", w.Message)
	}

	return &workspace{
		store:  st,
		engine: eng,
		views:  loadResult.Views,
		logger: logger,
	}, nil
}

// Close deregisters the views and closes the database.
func (w *workspace) Close() error {
	return errors.Join(w.engine.Close(), w.store.Close())
}

// view returns the loaded view with the given id.
func (w *workspace) view(id string) (compiler.ViewSpec, error) {
	for _, v := range w.views {
		if v.ID == id {
			return v, nil
		}
	}
	return compiler.ViewSpec{}, NewCodedError(ExitCommandError, string(engine.CodeNotFound),
		fmt.Sprintf("no view %q in views directory", id), nil)
}
