package isolation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowsketch/pkg/schema"
)

func assertPathDenied(t *testing.T, err error) {
	t.Helper()
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodePathDenied, fe.Code)
}

func TestConfinement_Unrestricted(t *testing.T) {
	got, err := Confinement{}.Check("/any/path/doc.pdf")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
}

func TestConfinement_AllowRoots(t *testing.T) {
	root := t.TempDir()
	c := Confinement{AllowRoots: []string{root}}

	_, err := c.Check(filepath.Join(root, "in", "doc.pdf"))
	assert.NoError(t, err)

	_, err = c.Check(filepath.Join(root, "..", "elsewhere.pdf"))
	assertPathDenied(t, err)
}

func TestConfinement_DenyWins(t *testing.T) {
	root := t.TempDir()
	c := Confinement{
		AllowRoots: []string{root},
		DenyRoots:  []string{filepath.Join(root, "private")},
	}

	_, err := c.Check(filepath.Join(root, "public", "a.png"))
	assert.NoError(t, err)

	_, err = c.Check(filepath.Join(root, "private", "a.png"))
	assertPathDenied(t, err)
}

func TestConfinement_InvalidPaths(t *testing.T) {
	_, err := Confinement{}.Check("")
	assertPathDenied(t, err)

	_, err = Confinement{}.Check("bad\x00path")
	assertPathDenied(t, err)

	_, err = Confinement{DenyRoots: []string{"bad\x00rule"}}.Check("/tmp/x")
	assertPathDenied(t, err)
}

func TestConfinement_SymlinkEscape(t *testing.T) {
	allowed := t.TempDir()
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("x"), 0o600))

	link := filepath.Join(allowed, "link.txt")
	if err := os.Symlink(secret, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := Confinement{AllowRoots: []string{allowed}}.Check(link)
	assertPathDenied(t, err)
}

func TestIsUnderPath(t *testing.T) {
	assert.True(t, isUnderPath("/tmp", "/tmp"))
	assert.True(t, isUnderPath("/tmp/a/b", "/tmp"))
	assert.False(t, isUnderPath("/var/a", "/tmp"))
	assert.False(t, isUnderPath("/tmpevil/a", "/tmp"))
	assert.True(t, isUnderPath("/tmp/..hidden", "/tmp"))
}
