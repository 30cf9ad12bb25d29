// Package keystream implements the RC4-derived obfuscation keystream used
// to scramble traffic between a duskrelay client and server.
//
// This is explicitly NOT a cryptographic cipher: RC4's biases are
// well-documented and the keystream here is used only to resist casual
// passive pattern matching, not to provide confidentiality or integrity
// against an active adversary. See framing.SealedConn for an opt-in
// authenticated variant.
package keystream

import "fmt"

// KeySizeError is returned by New when the key is outside the valid
// 1..256 byte range.
type KeySizeError int

func (e KeySizeError) Error() string {
	return fmt.Sprintf("keystream: invalid key size %d", int(e))
}

// Keystream is a stateful byte-oriented obfuscator derived from a key via
// the classic RC4 key-scheduling algorithm. A Keystream is not safe for
// concurrent use, and is exclusive to one direction of one connection.
type Keystream struct {
	s    [256]byte
	i, j byte
}

// New builds a Keystream from key material of length 1..256, running the
// RC4 key-scheduling algorithm (KSA) to derive the initial permutation.
func New(key []byte) (*Keystream, error) {
	k := len(key)
	if k < 1 || k > 256 {
		return nil, KeySizeError(k)
	}

	ks := new(Keystream)
	for i := range ks.s {
		ks.s[i] = byte(i)
	}

	var j byte
	for i := 0; i < 256; i++ {
		j = j + ks.s[i] + key[i%k]
		ks.s[i], ks.s[j] = ks.s[j], ks.s[i]
	}
	return ks, nil
}

// XORKeyStream transforms src through the keystream's pseudo-random
// generation algorithm (PRGA) and writes the result to dst, advancing the
// keystream's internal state by len(src) bytes. dst and src may overlap
// exactly (in-place transform); dst must be at least len(src) long.
func (ks *Keystream) XORKeyStream(dst, src []byte) {
	if len(src) == 0 {
		return
	}
	i, j := ks.i, ks.j
	for k, v := range src {
		i++
		j += ks.s[i]
		ks.s[i], ks.s[j] = ks.s[j], ks.s[i]
		dst[k] = v ^ ks.s[byte(ks.s[i]+ks.s[j])]
	}
	ks.i, ks.j = i, j
}
