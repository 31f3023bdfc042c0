package mustach

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileResolver_ExistsAndResolve(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "greeting.mustache")
	require.NoError(t, os.WriteFile(path, []byte("Hi {{name}}"), 0o644))

	var r FileResolver
	require.True(t, r.Exists(path))
	require.False(t, r.Exists(filepath.Join(dir, "missing.mustache")))

	got, err := r.Resolve(path)
	require.NoError(t, err)
	require.Equal(t, "Hi {{name}}", string(got))
}

func TestFileResolver_RejectsDirectories(t *testing.T) {
	dir := t.TempDir()

	var r FileResolver
	require.False(t, r.Exists(dir))
}

func TestMapResolver_ExistsAndResolve(t *testing.T) {
	r := MapResolver{"a.mustache": []byte("A")}

	require.True(t, r.Exists("a.mustache"))
	require.False(t, r.Exists("b.mustache"))

	got, err := r.Resolve("a.mustache")
	require.NoError(t, err)
	require.Equal(t, "A", string(got))

	_, err = r.Resolve("b.mustache")
	require.Error(t, err)
}

func TestPathDir(t *testing.T) {
	cases := []struct {
		name string
		want int
	}{
		{"page.mustache", 0},
		{"partials/row.mustache", len("partials/")},
		{"a/b/c.mustache", len("a/b/")},
		{"", 0},
	}

	for _, c := range cases {
		require.Equal(t, c.want, pathDir(c.name), "pathDir(%q)", c.name)
	}
}

func TestFileResolver_PartialResolutionAcrossDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "partials"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page.mustache"),
		[]byte("Hello {{>partials/name.mustache}}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "partials", "name.mustache"),
		[]byte("World"), 0o644))

	p, err := NewLoader(FileResolver{}).CompileFile(filepath.Join(dir, "page.mustache"))
	require.NoError(t, err)

	out, err := Render(p, map[string]any{})
	require.NoError(t, err)
	require.Equal(t, "Hello World", out)
}
