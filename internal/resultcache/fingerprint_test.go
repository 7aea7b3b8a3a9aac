package resultcache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectFingerprint_DeterministicForSameTree(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi"), 0o644))

	a := ProjectFingerprint(dir, 50)
	b := ProjectFingerprint(dir, 50)
	assert.Equal(t, a, b)
	assert.NotEqual(t, unknownFingerprint, a)
}

func TestProjectFingerprint_ChangesWhenFileModified(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main"), 0o644))
	before := ProjectFingerprint(dir, 50)

	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc main() {}"), 0o644))
	after := ProjectFingerprint(dir, 50)
	assert.NotEqual(t, before, after)
}

func TestProjectFingerprint_SkipsIgnoredDirectories(t *testing.T) {
	dir := t.TempDir()
	nm := filepath.Join(dir, "node_modules")
	require.NoError(t, os.MkdirAll(nm, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nm, "pkg.js"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0o644))

	withIgnored := ProjectFingerprint(dir, 50)

	require.NoError(t, os.RemoveAll(nm))
	withoutIgnored := ProjectFingerprint(dir, 50)

	assert.Equal(t, withIgnored, withoutIgnored)
}

func TestProjectFingerprint_UnknownSentinelOnScanFailure(t *testing.T) {
	fp := ProjectFingerprint("/path/does/not/exist/at/all", 50)
	assert.Equal(t, unknownFingerprint, fp)
}

func TestProjectFingerprint_RespectsFileCap(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 10; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, string(rune('a'+i))+".go"), []byte("x"), 0o644))
	}
	capped := ProjectFingerprint(dir, 3)
	uncapped := ProjectFingerprint(dir, 50)
	assert.NotEqual(t, capped, uncapped)
}
