package session

import "github.com/route-beacon/bgpd/internal/wire"

// initialBufferSize is the reassembly buffer's starting capacity (spec
// ยง4.5 and ยง5).
const initialBufferSize = 4096

// reassembler accumulates bytes read from the peer connection and frames
// complete BGP messages out of them, per spec ยง4.5: "append to any
// residual prefix from the previous read... frame messages until either
// fewer than 19 bytes remain or the next declared length exceeds
// remaining bytes".
//
// Per Open-Question decision (see DESIGN.md): the buffer grows in place
// to accommodate the largest observed fragment and is never shrunk back
// to initialBufferSize; spec ยง5's "reset to 4096 bytes on any
// cleanly-drained iteration" is read as resetting the *used length*, not
// the underlying capacity, since shrinking a Go slice's backing array on
// every idle read would force a reallocation on the very next large
// message.
type reassembler struct {
	buf []byte // buf[:len(buf)] is the residual plus newly-appended bytes
}

func newReassembler() *reassembler {
	return &reassembler{buf: make([]byte, 0, initialBufferSize)}
}

// feed appends data to the residual and returns every complete message
// framed from the front, leaving the incomplete trailing bytes (if any)
// as the new residual. A non-nil error means the stream is corrupt
// (spec ยง7 Malformed) and the caller must tear the session down.
func (r *reassembler) feed(data []byte) ([]wire.Frame, error) {
	r.buf = append(r.buf, data...)

	var frames []wire.Frame
	offset := 0
	for {
		hdr, consumed, err := wire.TryFrame(r.buf[offset:])
		if err != nil {
			return frames, err
		}
		if consumed == 0 {
			break
		}
		frames = append(frames, wire.Frame{
			Type:    hdr.Type,
			Payload: append([]byte(nil), r.buf[offset+wire.HeaderSize:offset+consumed]...),
		})
		offset += consumed
	}

	residual := len(r.buf) - offset
	if residual == 0 {
		// Cleanly drained: reuse the same backing array, never
		// reallocating down to initialBufferSize.
		r.buf = r.buf[:0]
	} else {
		copy(r.buf, r.buf[offset:])
		r.buf = r.buf[:residual]
	}
	return frames, nil
}
