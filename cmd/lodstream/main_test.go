package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lodstream/blobstore"
	"github.com/hupe1980/lodstream/bvh"
	"github.com/hupe1980/lodstream/testutil"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()

	return out.String(), err
}

func dataset(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	testutil.PutDataset(t, blobstore.NewLocalStore(dir), "a.bvh", testutil.NewTree(2, 2, 64, 16), 7)

	return dir
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "lodstream dev")
}

func TestInspect(t *testing.T) {
	dir := dataset(t)

	out, err := run(t, "inspect", filepath.Join(dir, "a.bvh"), "--nodes", "3")
	require.NoError(t, err)

	assert.Contains(t, out, "nodes:            7")
	assert.Contains(t, out, "surfels per node: 64")
	assert.Contains(t, out, "node size:        1.0 KiB")
	assert.Contains(t, out, "parent=-1")
	assert.Equal(t, 3, strings.Count(out, "  node "))

	_, err = run(t, "inspect", filepath.Join(dir, "missing.bvh"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBudget(t *testing.T) {
	out, err := run(t, "budget", "--surfels", "1024", "--surfel-size", "16", "--total", "64MiB", "--ratio", "0.5")
	require.NoError(t, err)

	assert.Contains(t, out, "budget:       32 MiB")
	assert.Contains(t, out, "slots:        2048")

	dir := dataset(t)

	out, err = run(t, "budget", "--tree", filepath.Join(dir, "a.bvh"), "--total", "1MiB", "--ratio", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "slots:        1024")

	_, err = run(t, "budget")
	assert.Error(t, err)
}

func TestPly(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tri.ply")
	require.NoError(t, os.WriteFile(p, []byte(`ply
format ascii 1.0
element vertex 2
property float x
property float y
property float z
end_header
0 0 0
1 2 3
`), 0o644))

	out, err := run(t, "ply", p, "--points")
	require.NoError(t, err)

	assert.Contains(t, out, "format: ascii 1.0")
	assert.Contains(t, out, "element vertex 2")
	assert.Contains(t, out, "  float32 x")
	assert.Contains(t, out, "points: 2")
}

func TestUploadLocal(t *testing.T) {
	src := dataset(t)
	dst := t.TempDir()

	t.Setenv("LODSTREAM_STORE_ROOT", dst)

	out, err := run(t, "upload", "--dir", "scans", filepath.Join(src, "a.bvh"))
	require.NoError(t, err)
	assert.Contains(t, out, "scans/a.bvh")

	tree, err := bvh.ReadFile(filepath.Join(dst, "scans", "a.bvh"))
	require.NoError(t, err)
	assert.Equal(t, uint32(7), tree.NumNodes())

	_, err = os.Stat(filepath.Join(dst, "scans", "a.lod"))
	require.NoError(t, err)

	_, err = run(t, "upload", "--register", filepath.Join(src, "a.bvh"))
	assert.ErrorContains(t, err, "dynamodb")
}

func TestStream(t *testing.T) {
	dir := dataset(t)

	vis := filepath.Join(dir, "scene.vis")
	require.NoError(t, os.WriteFile(vis, []byte("a.bvh\n"), 0o644))

	t.Setenv("LODSTREAM_STREAM_SLOT_COUNT", "4")

	out, err := run(t, "stream", "--vis", vis, "--root", dir, "--frames", "30", "--frame-rate", "200")
	require.NoError(t, err)

	assert.Contains(t, out, "frames:    30")
	assert.Contains(t, out, "models:    1")
	assert.Contains(t, out, "/ 4 (1.0 KiB each)")
}
