package keystream

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestKnownAnswer checks the classic RC4 test vector quoted in the design
// notes: key "Key" yields the keystream EB9F7781B734CA72A719, and
// plaintext "Plaintext" -> ciphertext BBF316E8D940AF0AD3.
func TestKnownAnswer(t *testing.T) {
	ks, err := New([]byte("Key"))
	require.NoError(t, err)

	src := []byte("Plaintext")
	dst := make([]byte, len(src))
	ks.XORKeyStream(dst, src)

	want, err := hex.DecodeString("BBF316E8D940AF0AD3")
	require.NoError(t, err)
	require.True(t, bytes.Equal(want, dst))

	// XORing zero bytes through a fresh keystream exposes the raw stream.
	raw, err := New([]byte("Key"))
	require.NoError(t, err)
	stream := make([]byte, 10)
	raw.XORKeyStream(stream, make([]byte, 10))

	wantStream, err := hex.DecodeString("EB9F7781B734CA72A719")
	require.NoError(t, err)
	require.True(t, bytes.Equal(wantStream, stream))
}

// TestSymmetry checks that two freshly seeded keystreams recover the
// original message: decrypt(encrypt(M)) == M.
func TestSymmetry(t *testing.T) {
	key := []byte("a reasonably long obfuscation key, not a secret")

	cases := [][]byte{
		{},
		{0x00},
		bytes.Repeat([]byte{0xAA}, 1),
		bytes.Repeat([]byte{0x01, 0x02, 0x03}, 4096),
	}

	for _, msg := range cases {
		enc, err := New(key)
		require.NoError(t, err)
		dec, err := New(key)
		require.NoError(t, err)

		ciphertext := make([]byte, len(msg))
		enc.XORKeyStream(ciphertext, msg)

		plaintext := make([]byte, len(msg))
		dec.XORKeyStream(plaintext, ciphertext)

		require.True(t, bytes.Equal(msg, plaintext))
	}
}

// TestIndependentAdvancement checks that feeding bytes one at a time
// produces the same stream as one bulk call — the keystream only depends
// on how many bytes have been consumed, not the call shape.
func TestIndependentAdvancement(t *testing.T) {
	key := []byte("Key")
	msg := []byte("PlaintextPlaintext")

	bulk, err := New(key)
	require.NoError(t, err)
	bulkOut := make([]byte, len(msg))
	bulk.XORKeyStream(bulkOut, msg)

	piecewise, err := New(key)
	require.NoError(t, err)
	piecewiseOut := make([]byte, len(msg))
	for i := range msg {
		piecewise.XORKeyStream(piecewiseOut[i:i+1], msg[i:i+1])
	}

	require.True(t, bytes.Equal(bulkOut, piecewiseOut))
}

func TestInvalidKeySize(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	big := make([]byte, 257)
	_, err = New(big)
	require.Error(t, err)
}
