package wire

// Frame is one fully-framed BGP message: its type and a slice into the
// caller's buffer holding the payload (everything after the 19-byte
// header). Frames never copies: the Payload of each Frame it returns
// aliases the buffer passed to it.
type Frame struct {
	Type    uint8
	Payload []byte
}

// Frames walks buf and yields one Frame per complete BGP message found at
// the front of the stream, in order. It stops either when fewer than
// HeaderSize bytes remain or when the next declared message length
// exceeds the remaining bytes (an incomplete trailing message); the
// number of bytes left unconsumed at that point is returned as residual.
//
// Frames never mutates or copies buf; callers that need the residual to
// survive past the next read must copy it themselves. (internal/session
// does not use Frames: its reassembler frames with TryFrame over its own
// buffer and copies each payload out.)
func Frames(buf []byte) (frames []Frame, residual int) {
	offset := 0
	for len(buf)-offset >= HeaderSize {
		hdr, err := ParseHeader(buf[offset:])
		if err != nil {
			// A malformed header here is not our call to make: the
			// session layer owns fatal-vs-resync decisions. Treat the
			// remaining bytes as residual so the caller can inspect it
			// and decide (in practice it will look at ParseHeader's
			// error itself via TryFrame for the fatal path).
			break
		}
		if offset+int(hdr.Length) > len(buf) {
			break
		}
		frames = append(frames, Frame{
			Type:    hdr.Type,
			Payload: buf[offset+HeaderSize : offset+int(hdr.Length)],
		})
		offset += int(hdr.Length)
	}
	return frames, len(buf) - offset
}

// TryFrame parses exactly one message at the front of buf, returning the
// header, the message bytes consumed, and an error if the header itself
// is malformed (bad marker, out-of-range length). Used by the session
// loop to distinguish "not enough data yet" (nil header, nil err, want
// more bytes) from "this stream is corrupt" (err != nil, fatal).
func TryFrame(buf []byte) (hdr Header, consumed int, err error) {
	if len(buf) < HeaderSize {
		return Header{}, 0, nil
	}
	hdr, err = ParseHeader(buf)
	if err != nil {
		return Header{}, 0, err
	}
	if int(hdr.Length) > len(buf) {
		return Header{}, 0, nil
	}
	return hdr, int(hdr.Length), nil
}
