package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

var (
	blogViewsDir     = filepath.Join("..", "..", "testdata", "views")
	testScenariosDir = filepath.Join("..", "..", "testdata", "scenarios")
)

const postsView = "DENORMALIZED_POST_COLLECTION"

// execute runs cmd with args and returns its stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// writeFile writes content to name inside dir.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// seedBlog imports two authors, one comment and two posts into a fresh
// database and returns the options pointing at it.
func seedBlog(t *testing.T) *RootOptions {
	t.Helper()
	dir := t.TempDir()
	opts := &RootOptions{Format: "text", Database: filepath.Join(dir, "blog.db")}

	inputs := []struct{ collection, body string }{
		{"authors", `[{"_id": "author-1", "name": "ann"}, {"_id": "author-2", "name": "bob"}]`},
		{"comments", `[{"_id": "comment-1", "text": "first"}]`},
		{"posts", `[
			{"_id": "post-1", "text": "hello", "authorId": "author-1", "commentIds": ["comment-1"]},
			{"_id": "post-2", "text": "world", "authorId": "author-2", "commentIds": []}
		]`},
	}
	for _, in := range inputs {
		file := writeFile(t, dir, in.collection+".json", in.body)
		_, err := execute(t, NewImportCommand(opts), blogViewsDir, in.collection, file)
		require.NoError(t, err, "import %s", in.collection)
	}
	return opts
}
