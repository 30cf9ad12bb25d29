package framing

import "time"

// HandshakePayloadLength is the size of the combined authenticity +
// destination frame the client sends in a single logical write right
// after a FramedConn is established: 128 + 258 bytes.
const HandshakePayloadLength = AuthFrameLength + DestFrameLength

// BuildHandshakePayload returns the 386-byte payload a client sends
// through its FramedConn immediately after the raw key: an authenticity
// frame stamped with now, followed by a destination frame for addr.
func BuildHandshakePayload(addr string, now time.Time) ([]byte, error) {
	auth, err := BuildAuthFrame(now)
	if err != nil {
		return nil, err
	}
	dest, err := BuildDestFrame(addr)
	if err != nil {
		return nil, err
	}
	return append(auth, dest...), nil
}
