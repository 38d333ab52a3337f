package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/viewsync/internal/engine"
)

func TestGetText(t *testing.T) {
	opts := seedBlog(t)

	out, err := execute(t, NewGetCommand(opts), "postsView", "post-2")
	require.NoError(t, err)
	assert.Contains(t, out, `"_id":"post-2"`)
	assert.Contains(t, out, `"wholeText":"world, , bob"`)
}

func TestGetJSON(t *testing.T) {
	opts := seedBlog(t)
	opts.Format = "json"

	out, err := execute(t, NewGetCommand(opts), "authors", "author-1")
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"_id": "author-1", "name": "ann"}, resp.Data)
}

func TestGetMissingDocument(t *testing.T) {
	opts := seedBlog(t)

	out, err := execute(t, NewGetCommand(opts), "postsView", "nope")
	require.Error(t, err)
	assert.Equal(t, string(engine.CodeNotFound), ErrorCode(err))
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [NOT_FOUND]")
}

func TestGetMissingDatabase(t *testing.T) {
	opts := &RootOptions{Format: "text", Database: filepath.Join(t.TempDir(), "missing.db")}

	_, err := execute(t, NewGetCommand(opts), "posts", "post-1")
	require.Error(t, err)
	assert.Equal(t, ErrCodeStore, ErrorCode(err))
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.NoFileExists(t, opts.Database)
}
