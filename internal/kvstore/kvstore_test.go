package kvstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	s := NewFileStore(path)

	_, ok, err := s.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("gateway.config", `{"host":"gw"}`))
	require.NoError(t, s.Set("other", "x"))

	val, ok, err := s.Get("gateway.config")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"host":"gw"}`, val)

	// a second instance sees the same data
	val, ok, err = NewFileStore(path).Get("other")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x", val)

	require.NoError(t, s.Delete("other"))
	require.NoError(t, s.Delete("never-set"))
	_, ok, err = s.Get("other")
	require.NoError(t, err)
	assert.False(t, ok)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, _, err := NewFileStore(path).Get("k")
	assert.Error(t, err)
}

func TestSealedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	inner := NewFileStore(filepath.Join(dir, "secure.json"))
	keyPath := filepath.Join(dir, "secure.key")

	s, err := NewSealed(inner, keyPath)
	require.NoError(t, err)
	require.NoError(t, s.Set("gateway.credentials", `{"token":"t","password":"p"}`))

	raw, ok, err := inner.Get("gateway.credentials")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, strings.Contains(raw, `"token"`), "value must be sealed at rest")

	// reopening with the persisted key decrypts
	s2, err := NewSealed(inner, keyPath)
	require.NoError(t, err)
	val, ok, err := s2.Get("gateway.credentials")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"token":"t","password":"p"}`, val)

	require.NoError(t, s2.Delete("gateway.credentials"))
	_, ok, err = s.Get("gateway.credentials")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSealedWrongKey(t *testing.T) {
	inner := NewMemory()
	a, err := NewSealedWithKey(inner, make([]byte, keySize))
	require.NoError(t, err)
	require.NoError(t, a.Set("k", "secret"))

	other := make([]byte, keySize)
	other[0] = 1
	b, err := NewSealedWithKey(inner, other)
	require.NoError(t, err)

	_, ok, err := b.Get("k")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestSealedRejectsShortKey(t *testing.T) {
	_, err := NewSealedWithKey(NewMemory(), []byte("short"))
	assert.Error(t, err)
}
