package envelope_test

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/jrsteele09/go-integrations-server/envelope"
	"github.com/stretchr/testify/require"
)

const (
	testSecret  = "0123456789abcdef0123456789abcdef"
	otherSecret = "fedcba9876543210fedcba9876543210"
)

func TestRoundTrip(t *testing.T) {
	for _, plaintext := range []string{"a", "ya29.a0AfH6SMB-token", strings.Repeat("x", 4096), "ünïcødé: with colons"} {
		sealed, err := envelope.Encrypt(plaintext, testSecret)
		require.NoError(t, err)
		require.True(t, envelope.IsEnvelope(sealed))

		ciphertext, err := hex.DecodeString(strings.Split(sealed, ":")[2])
		require.NoError(t, err)
		require.Len(t, ciphertext, len(plaintext))
		// A one-byte plaintext matches its ciphertext one time in 256.
		if len(plaintext) >= 8 {
			require.NotEqual(t, []byte(plaintext), ciphertext)
			require.NotContains(t, sealed, plaintext)
		}

		opened, err := envelope.Decrypt(sealed, testSecret)
		require.NoError(t, err)
		require.Equal(t, plaintext, opened)
	}
}

func TestEncryptUsesFreshIV(t *testing.T) {
	a, err := envelope.Encrypt("same", testSecret)
	require.NoError(t, err)
	b, err := envelope.Encrypt("same", testSecret)
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	parts := strings.Split(a, ":")
	require.Len(t, parts, 3)
	require.Len(t, parts[0], 32)
	require.Len(t, parts[1], 32)
}

func TestEncryptRejectsBadInput(t *testing.T) {
	_, err := envelope.Encrypt("token", "")
	require.ErrorIs(t, err, envelope.ErrKeyMissing)

	_, err = envelope.Encrypt("token", "short-secret")
	require.ErrorIs(t, err, envelope.ErrKeyMissing)

	_, err = envelope.Encrypt("", testSecret)
	require.ErrorIs(t, err, envelope.ErrEmptyPlaintext)
}

func TestDecryptWrongKey(t *testing.T) {
	sealed, err := envelope.Encrypt("refresh-token", testSecret)
	require.NoError(t, err)

	_, err = envelope.Decrypt(sealed, otherSecret)
	require.ErrorIs(t, err, envelope.ErrReconnectRequired)
	require.True(t, envelope.IsReconnectRequired(err))
}

func TestDecryptTampered(t *testing.T) {
	sealed, err := envelope.Encrypt("refresh-token", testSecret)
	require.NoError(t, err)
	parts := strings.Split(sealed, ":")

	t.Run("ciphertext", func(t *testing.T) {
		ct, _ := hex.DecodeString(parts[2])
		ct[0] ^= 0xff
		_, err := envelope.Decrypt(parts[0]+":"+parts[1]+":"+hex.EncodeToString(ct), testSecret)
		require.ErrorIs(t, err, envelope.ErrReconnectRequired)
	})

	t.Run("tag", func(t *testing.T) {
		tag, _ := hex.DecodeString(parts[1])
		tag[3] ^= 0x01
		_, err := envelope.Decrypt(parts[0]+":"+hex.EncodeToString(tag)+":"+parts[2], testSecret)
		require.ErrorIs(t, err, envelope.ErrReconnectRequired)
	})
}

func TestDecryptMalformed(t *testing.T) {
	sealed, err := envelope.Encrypt("v", testSecret)
	require.NoError(t, err)
	parts := strings.Split(sealed, ":")

	cases := map[string]string{
		"two segments":   parts[0] + ":" + parts[1],
		"four segments":  sealed + ":00",
		"empty segment":  parts[0] + "::" + parts[2],
		"short iv":       "abcd:" + parts[1] + ":" + parts[2],
		"short tag":      parts[0] + ":abcd:" + parts[2],
		"non-hex cipher": parts[0] + ":" + parts[1] + ":zz",
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := envelope.Decrypt(value, testSecret)
			require.ErrorIs(t, err, envelope.ErrMalformedEnvelope)
			require.False(t, envelope.IsReconnectRequired(err))
		})
	}
}

func TestOpenLegacyPlaintext(t *testing.T) {
	opened, err := envelope.Open("legacy-plain-token", testSecret)
	require.NoError(t, err)
	require.Equal(t, "legacy-plain-token", opened)

	opened, err = envelope.Open("", testSecret)
	require.NoError(t, err)
	require.Empty(t, opened)

	sealed, err := envelope.Encrypt("modern", testSecret)
	require.NoError(t, err)
	opened, err = envelope.Open(sealed, testSecret)
	require.NoError(t, err)
	require.Equal(t, "modern", opened)
}
