package framing

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"net"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/dchest/siphash"
)

// SealedConn is an opt-in authenticated transport: every frame is sealed
// with NaCl secretbox (XSalsa20-Poly1305), and its length on the wire is
// masked with a SipHash-2-4 keystream the way obfs4 masks its frame
// lengths. It trades the default FramedConn's "obfuscation only, no
// integrity" property for tamper detection, at the cost of interop with
// peers that only speak the plain wire format.
//
// A SealedConn is not a drop-in replacement for FramedConn: both ends must
// opt in, since a peer reading sealed frames as plain obfuscated bytes (or
// vice versa) will desync immediately.
type SealedConn struct {
	conn net.Conn

	enc *sealEncoder
	dec *sealDecoder

	rawBuf  bytes.Buffer // undecoded bytes pulled off conn
	pending []byte       // decoded payload not yet handed to a caller
	readTmp [maxSealSegment]byte
}

const (
	sealKeyLength     = 32
	sealNoncePrefix   = 16
	sealNonceCounter  = 8
	sealNonceLength   = sealNoncePrefix + sealNonceCounter
	sealLengthField   = 2
	sealDerivedLength = sealKeyLength + sealNoncePrefix + 16 // secretbox key + nonce prefix + siphash key

	maxSealSegment        = 1500 - 40
	sealFrameOverhead     = sealLengthField + secretbox.Overhead
	maxSealFramePayload   = maxSealSegment - sealFrameOverhead
	maxSealWireFrameBytes = maxSealSegment - sealLengthField
	minSealWireFrameBytes = sealFrameOverhead - sealLengthField
)

// ErrSealedFrameLength is returned when a decoded, deobfuscated frame
// length falls outside the bounds a legitimate peer could have sent.
type ErrSealedFrameLength int

func (e ErrSealedFrameLength) Error() string {
	return fmt.Sprintf("framing: invalid sealed frame length: %d", int(e))
}

// ErrSealedPayloadLength is returned when the frame encoder is asked to
// seal a payload larger than maxSealFramePayload.
type ErrSealedPayloadLength int

func (e ErrSealedPayloadLength) Error() string {
	return fmt.Sprintf("framing: sealed payload too large: %d", int(e))
}

// DeriveSealKeys expands the already-exchanged session key into two
// independent sealDerivedLength keying blocks, one per direction, using
// HKDF-BLAKE2b-256 with info strings that fix which direction each side
// should encode with. Both peers must pass the same sessionKey and agree
// on which of the two return values is their encode key.
func DeriveSealKeys(sessionKey []byte) (clientToServer, serverToClient []byte, err error) {
	c2s := make([]byte, sealDerivedLength)
	s2c := make([]byte, sealDerivedLength)

	r1 := hkdf.New(newBlake2b256, sessionKey, nil, []byte("duskrelay sealed c2s"))
	if _, err := io.ReadFull(r1, c2s); err != nil {
		return nil, nil, fmt.Errorf("framing: derive c2s keys: %w", err)
	}
	r2 := hkdf.New(newBlake2b256, sessionKey, nil, []byte("duskrelay sealed s2c"))
	if _, err := io.ReadFull(r2, s2c); err != nil {
		return nil, nil, fmt.Errorf("framing: derive s2c keys: %w", err)
	}
	return c2s, s2c, nil
}

// newBlake2b256 adapts blake2b.New256 to hkdf.New's func() hash.Hash shape;
// New256 only fails on an oversized key, and a nil key is never oversized.
func newBlake2b256() hash.Hash {
	h, _ := blake2b.New256(nil)
	return h
}

// NewSealedConn wraps conn, sealing outgoing frames with encodeKey and
// authenticating incoming frames with decodeKey. Both must be
// sealDerivedLength bytes, ordinarily produced by DeriveSealKeys.
func NewSealedConn(conn net.Conn, encodeKey, decodeKey []byte) (*SealedConn, error) {
	enc, err := newSealEncoder(encodeKey)
	if err != nil {
		return nil, err
	}
	dec, err := newSealDecoder(decodeKey)
	if err != nil {
		return nil, err
	}
	return &SealedConn{conn: conn, enc: enc, dec: dec}, nil
}

// Write seals b as a single frame (splitting across multiple frames if it
// exceeds maxSealFramePayload) and writes it to the underlying conn.
func (s *SealedConn) Write(b []byte) (int, error) {
	total := 0
	for len(b) > 0 {
		chunk := b
		if len(chunk) > maxSealFramePayload {
			chunk = chunk[:maxSealFramePayload]
		}
		frame, err := s.enc.encode(chunk)
		if err != nil {
			return total, err
		}
		if _, err := s.conn.Write(frame); err != nil {
			return total, err
		}
		total += len(chunk)
		b = b[len(chunk):]
	}
	return total, nil
}

// Read returns decoded payload bytes into b, pulling and unsealing frames
// from the underlying conn as needed.
func (s *SealedConn) Read(b []byte) (int, error) {
	for len(s.pending) == 0 {
		payload, decErr := s.dec.decode(&s.rawBuf)
		if decErr == nil {
			s.pending = payload
			continue
		}
		if decErr != errSealAgain {
			return 0, decErr
		}

		n, err := s.conn.Read(s.readTmp[:])
		if n > 0 {
			s.rawBuf.Write(s.readTmp[:n])
		}
		if err != nil {
			return 0, err
		}
	}

	n := copy(b, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *SealedConn) Close() error                       { return s.conn.Close() }
func (s *SealedConn) LocalAddr() net.Addr                { return s.conn.LocalAddr() }
func (s *SealedConn) RemoteAddr() net.Addr               { return s.conn.RemoteAddr() }
func (s *SealedConn) SetDeadline(t time.Time) error      { return s.conn.SetDeadline(t) }
func (s *SealedConn) SetReadDeadline(t time.Time) error  { return s.conn.SetReadDeadline(t) }
func (s *SealedConn) SetWriteDeadline(t time.Time) error { return s.conn.SetWriteDeadline(t) }

var _ net.Conn = (*SealedConn)(nil)

var errSealAgain = fmt.Errorf("framing: more data needed to decode a sealed frame")

type boxNonce struct {
	prefix  [sealNoncePrefix]byte
	counter uint64
}

func (n *boxNonce) init(prefix []byte) { copy(n.prefix[:], prefix); n.counter = 1 }

func (n *boxNonce) bytes(out *[sealNonceLength]byte) error {
	if n.counter == 0 {
		return fmt.Errorf("framing: sealed nonce counter wrapped")
	}
	copy(out[:], n.prefix[:])
	binary.BigEndian.PutUint64(out[sealNoncePrefix:], n.counter)
	return nil
}

type sealEncoder struct {
	key   [sealKeyLength]byte
	sip   hash.Hash64
	nonce boxNonce
}

func newSealEncoder(key []byte) (*sealEncoder, error) {
	if len(key) != sealDerivedLength {
		return nil, fmt.Errorf("framing: invalid sealed encoder key length: %d", len(key))
	}
	e := &sealEncoder{}
	copy(e.key[:], key[:sealKeyLength])
	e.nonce.init(key[sealKeyLength : sealKeyLength+sealNoncePrefix])
	e.sip = siphash.New(key[sealKeyLength+sealNoncePrefix:])
	return e, nil
}

func (e *sealEncoder) encode(payload []byte) ([]byte, error) {
	if len(payload) > maxSealFramePayload {
		return nil, ErrSealedPayloadLength(len(payload))
	}

	var nonce [sealNonceLength]byte
	if err := e.nonce.bytes(&nonce); err != nil {
		return nil, err
	}
	e.nonce.counter++

	box := secretbox.Seal(nil, payload, &nonce, &e.key)

	length := uint16(len(box))
	e.sip.Write(nonce[:])
	mask := e.sip.Sum(nil)
	e.sip.Reset()
	length ^= binary.BigEndian.Uint16(mask)

	var obfsLen [sealLengthField]byte
	binary.BigEndian.PutUint16(obfsLen[:], length)
	e.sip.Write(box)

	return append(obfsLen[:], box...), nil
}

type sealDecoder struct {
	key   [sealKeyLength]byte
	nonce boxNonce
	sip   hash.Hash64

	nextNonce  [sealNonceLength]byte
	nextLength uint16
}

func newSealDecoder(key []byte) (*sealDecoder, error) {
	if len(key) != sealDerivedLength {
		return nil, fmt.Errorf("framing: invalid sealed decoder key length: %d", len(key))
	}
	d := &sealDecoder{}
	copy(d.key[:], key[:sealKeyLength])
	d.nonce.init(key[sealKeyLength : sealKeyLength+sealNoncePrefix])
	d.sip = siphash.New(key[sealKeyLength+sealNoncePrefix:])
	return d, nil
}

func (d *sealDecoder) decode(data *bytes.Buffer) ([]byte, error) {
	if d.nextLength == 0 {
		if data.Len() < sealLengthField {
			return nil, errSealAgain
		}
		var obfsLen [sealLengthField]byte
		if _, err := io.ReadFull(data, obfsLen[:]); err != nil {
			return nil, err
		}

		if err := d.nonce.bytes(&d.nextNonce); err != nil {
			return nil, err
		}

		length := binary.BigEndian.Uint16(obfsLen[:])
		d.sip.Write(d.nextNonce[:])
		mask := d.sip.Sum(nil)
		d.sip.Reset()
		length ^= binary.BigEndian.Uint16(mask)
		if int(length) > maxSealWireFrameBytes || int(length) < minSealWireFrameBytes {
			return nil, ErrSealedFrameLength(length)
		}
		d.nextLength = length
	}

	if data.Len() < int(d.nextLength) {
		return nil, errSealAgain
	}

	box := make([]byte, d.nextLength)
	if _, err := io.ReadFull(data, box); err != nil {
		return nil, err
	}
	out, ok := secretbox.Open(nil, box, &d.nextNonce, &d.key)
	if !ok {
		return nil, ErrTagMismatch
	}
	d.sip.Write(box)
	d.nextLength = 0
	d.nonce.counter++

	return out, nil
}

// ErrTagMismatch is returned when a sealed frame fails Poly1305
// authentication — the frame was corrupted or forged.
var ErrTagMismatch = fmt.Errorf("framing: poly1305 tag mismatch")
