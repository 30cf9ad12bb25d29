// Package csrand provides cryptographically secure random byte generation
// for session keys and frame padding.
//
// duskrelay has no use for obfs4's length-distribution traffic shaping, so
// unlike obfs4's csrand package (which draws single random bytes in a loop
// to drive its length sampler) this one stays a thin wrapper around
// crypto/rand: a single bulk call per use site, since the wire format here
// is fixed-size frames rather than padded bursts.
package csrand

import (
	cryptRand "crypto/rand"
	"io"
)

// Bytes fills buf with cryptographically secure random data in one call.
func Bytes(buf []byte) error {
	_, err := io.ReadFull(cryptRand.Reader, buf)
	return err
}

// Key returns a freshly generated, uniformly random key of length n bytes —
// used to derive each tunneled session's 128-byte key.
func Key(n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := Bytes(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
