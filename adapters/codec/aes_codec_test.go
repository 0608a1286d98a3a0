package codec

import (
	"encoding/hex"
	"strings"
	"sync"
	"testing"

	"github.com/layer-3/promox/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef-extra-ignored"

func TestAESCodec_RoundTrip(t *testing.T) {
	c := NewAESCodec(testSecret)

	for _, plaintext := range []string{"", "SAVE20", strings.Repeat("kilobyte-", 512)} {
		envelope, err := c.Encrypt(plaintext)
		require.NoError(t, err)
		assert.Len(t, strings.Split(envelope, ":"), 3)

		got, err := c.Decrypt(envelope)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestAESCodec_FreshIV(t *testing.T) {
	c := NewAESCodec(testSecret)

	a, err := c.Encrypt("SAVE20")
	require.NoError(t, err)
	b, err := c.Encrypt("SAVE20")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestAESCodec_Tampered(t *testing.T) {
	c := NewAESCodec(testSecret)

	envelope, err := c.Encrypt("SAVE20-FOR-REAL")
	require.NoError(t, err)
	parts := strings.Split(envelope, ":")

	flip := func(segment string) string {
		raw, err := hex.DecodeString(segment)
		require.NoError(t, err)
		raw[0] ^= 0x01
		return hex.EncodeToString(raw)
	}

	cases := map[string]string{
		"tag":          strings.Join([]string{parts[0], flip(parts[1]), parts[2]}, ":"),
		"ciphertext":   strings.Join([]string{parts[0], parts[1], flip(parts[2])}, ":"),
		"iv":           strings.Join([]string{flip(parts[0]), parts[1], parts[2]}, ":"),
		"two segments": parts[0] + ":" + parts[1],
		"four":         envelope + ":00",
		"not hex":      parts[0] + ":" + parts[1] + ":zz",
		"short iv":     "abcd:" + parts[1] + ":" + parts[2],
	}

	for name, bad := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := c.Decrypt(bad)
			require.ErrorIs(t, err, core.ErrTamperedOrCorrupt)
			assert.Empty(t, got)
		})
	}
}

func TestAESCodec_ShortSecret(t *testing.T) {
	c := NewAESCodec("only-16-chars!!!")

	err := c.Validate()
	require.ErrorIs(t, err, ErrSecretTooShort)
	require.ErrorIs(t, err, core.ErrConfiguration)

	_, err = c.Encrypt("SAVE20")
	require.ErrorIs(t, err, core.ErrConfiguration)

	_, err = c.Decrypt("00:00:00")
	require.ErrorIs(t, err, core.ErrConfiguration)
}

func TestAESCodec_KeyUsesFirst32Bytes(t *testing.T) {
	a := NewAESCodec(testSecret[:32])
	b := NewAESCodec(testSecret)

	envelope, err := a.Encrypt("SAVE20")
	require.NoError(t, err)

	got, err := b.Decrypt(envelope)
	require.NoError(t, err)
	assert.Equal(t, "SAVE20", got)
}

func TestAESCodec_Concurrent(t *testing.T) {
	c := NewAESCodec(testSecret)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			envelope, err := c.Encrypt("code")
			assert.NoError(t, err)
			got, err := c.Decrypt(envelope)
			assert.NoError(t, err)
			assert.Equal(t, "code", got)
		}()
	}
	wg.Wait()
}
