package wire

// marker is the all-ones 16-byte BGP marker this core always sends (no
// authentication is negotiated).
var marker = func() [MarkerSize]byte {
	var m [MarkerSize]byte
	for i := range m {
		m[i] = 0xFF
	}
	return m
}()

// EncodeMessage wraps body in a BGP header: marker, length, type. Used by
// internal/session to compose the OPEN reply and KEEPALIVE messages this
// core sends (spec ยง6: "the speaker never sends UPDATE or NOTIFICATION").
func EncodeMessage(msgType uint8, body []byte) []byte {
	total := HeaderSize + len(body)
	buf := make([]byte, total)
	copy(buf[0:MarkerSize], marker[:])
	buf[16] = byte(total >> 8)
	buf[17] = byte(total)
	buf[18] = msgType
	copy(buf[HeaderSize:], body)
	return buf
}
