package encryption

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewCipher(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return c
}

func TestEncryptDecrypt(t *testing.T) {
	c := testCipher(t)

	for _, plain := range []string{"a", "ya29.token-value", strings.Repeat("x", 16), "pässwörd"} {
		sealed, err := c.Encrypt(plain)
		require.NoError(t, err)
		assert.NotContains(t, sealed, plain)

		ivHex, _, ok := strings.Cut(sealed, ":")
		require.True(t, ok)
		assert.Len(t, ivHex, 32)

		got, err := c.Decrypt(sealed)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
}

func TestEncryptUsesFreshIV(t *testing.T) {
	c := testCipher(t)
	a, err := c.Encrypt("same")
	require.NoError(t, err)
	b, err := c.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEmptyStaysEmpty(t *testing.T) {
	c := testCipher(t)
	sealed, err := c.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, sealed)

	plain, err := c.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, plain)
}

func TestDecryptRejectsBadInput(t *testing.T) {
	c := testCipher(t)
	sealed, err := c.Encrypt("secret")
	require.NoError(t, err)

	other, err := NewCipher(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)

	tests := map[string]string{
		"no separator": "abcdef",
		"bad iv hex":   "zz:00",
		"short iv":     "0011:" + strings.Repeat("00", 16),
		"odd block":    strings.Repeat("00", 16) + ":" + strings.Repeat("00", 5),
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := c.Decrypt(in)
			assert.ErrorIs(t, err, ErrMalformedCipher)
		})
	}

	t.Run("wrong key", func(t *testing.T) {
		got, err := other.Decrypt(sealed)
		if err == nil {
			assert.NotEqual(t, "secret", got)
		}
	})
}

func TestNewCipherKeySize(t *testing.T) {
	_, err := NewCipher([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestUnpad(t *testing.T) {
	_, err := unpad([]byte{1, 2, 3, 0}, 16)
	assert.ErrorIs(t, err, ErrInvalidPadding)
	_, err = unpad([]byte{1, 2, 2, 3}, 16)
	assert.ErrorIs(t, err, ErrInvalidPadding)
	out, err := unpad([]byte{'a', 'b', 2, 2}, 16)
	require.NoError(t, err)
	assert.Equal(t, []byte("ab"), out)
}
