package capsule

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newGroupKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	key := newGroupKey(t)
	payload := []byte("c3a1f0b2d4e5968778695a4b3c2d1e0f10213243")

	capsule, err := Encode("group-7", payload, key)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(capsule, "group-7@"))

	groupId, decoded, err := Decode(capsule)
	require.NoError(t, err)
	require.Equal(t, "group-7", groupId)
	require.Equal(t, payload, decoded)

	require.True(t, Verify(capsule, &key.PublicKey))
}

func TestVerifyRejectsMutations(t *testing.T) {
	key := newGroupKey(t)
	capsule, err := Encode("group-7", []byte("payload-bytes-here"), key)
	require.NoError(t, err)

	// Flip one bit in every position of the encoded part; each mutation must
	// fail verification (checksum or signature).
	idx := strings.LastIndex(capsule, separator)
	for i := idx + 1; i < len(capsule); i++ {
		mutated := []byte(capsule)
		mutated[i] ^= 0x01
		require.False(t, Verify(string(mutated), &key.PublicKey),
			"mutation at index %d slipped through", i)
	}

	// Tampering with the group id invalidates the signature binding.
	require.False(t, Verify("group-8"+capsule[idx:], &key.PublicKey))
}

func TestVerifyRejectsWrongGroupKey(t *testing.T) {
	key := newGroupKey(t)
	other := newGroupKey(t)

	capsule, err := Encode("group-7", []byte("payload-bytes-here"), key)
	require.NoError(t, err)
	require.False(t, Verify(capsule, &other.PublicKey))
}

func TestDecodeMalformed(t *testing.T) {
	for _, capsule := range []string{
		"",
		"no-separator",
		"@cap1qqqq",
		"group@",
		"group@notbech32!!!",
	} {
		_, _, err := Decode(capsule)
		require.Error(t, err, "capsule %q", capsule)
	}
}

func TestEncodeRejectsBadInput(t *testing.T) {
	key := newGroupKey(t)

	_, err := Encode("", []byte("x"), key)
	require.Error(t, err)

	_, err = Encode("has@sep", []byte("x"), key)
	require.Error(t, err)

	_, err = Encode("group", nil, key)
	require.Error(t, err)
}

func TestParsePublicKey(t *testing.T) {
	key := newGroupKey(t)
	compressed := elliptic.MarshalCompressed(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)

	pub, err := ParsePublicKey(compressed)
	require.NoError(t, err)
	require.True(t, pub.Equal(&key.PublicKey))

	_, err = ParsePublicKey([]byte{0x02, 0x01})
	require.Error(t, err)
}
