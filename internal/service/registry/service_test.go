package registry

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKey(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		key, err := NewKey()
		require.NoError(t, err)

		assert.Len(t, key, 64)
		_, err = hex.DecodeString(key)
		assert.NoError(t, err)

		assert.False(t, seen[key], "keys must be unique")
		seen[key] = true
	}
}
