package secretstore

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GetSetList(t *testing.T) {
	s, err := Open(OpenOptions{InMemory: true})
	require.NoError(t, err)
	defer s.Close()

	_, found, err := s.GetString("wallet/1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetString("wallet/2", "b"))
	require.NoError(t, s.SetString("wallet/1", "a"))
	require.NoError(t, s.SetString("other/1", "x"))
	require.NoError(t, s.SetString("wallet/empty", ""))

	v, found, err := s.GetString("wallet/1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "a", v)

	v, found, err = s.GetString("wallet/empty")
	require.NoError(t, err)
	assert.True(t, found, "empty value is still present")
	assert.Empty(t, v)

	kvs, err := s.ListPrefix("wallet/")
	require.NoError(t, err)
	require.Len(t, kvs, 3)
	assert.Equal(t, "wallet/1", kvs[0].Key)
	assert.Equal(t, "wallet/2", kvs[1].Key)
}

func TestStore_NotOpened(t *testing.T) {
	var s *Store
	_, _, err := s.GetString("k")
	assert.ErrorIs(t, err, ErrNotOpened)
	assert.NoError(t, s.Close())
}

func TestParseKey(t *testing.T) {
	hexKey := strings.Repeat("ab", 32)
	b, err := ParseKey("0x" + hexKey)
	require.NoError(t, err)
	assert.Len(t, b, 32)

	b64 := base64.StdEncoding.EncodeToString(make([]byte, 32))
	b, err = ParseKey(b64)
	require.NoError(t, err)
	assert.Len(t, b, 32)

	b, err = ParseKey("  ")
	require.NoError(t, err)
	assert.Nil(t, b)

	_, err = ParseKey("abcd")
	assert.Error(t, err)
}
