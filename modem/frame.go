/*
NAME
  frame.go

DESCRIPTION
  frame.go builds and parses the modem frame: a 3-byte header (2-byte
  checksum, 1-byte length with the high two bits unused) followed by the
  payload.
*/

package modem

// StartSeq is the literal 11-bit start sequence prepended to every
// channel's transmission before parity insertion.
var StartSeq = []int{0, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0}

// headerLen is the number of header bytes preceding the payload: two
// checksum bytes and one length byte.
const headerLen = 3

// lengthMask extracts the payload length from the header's length byte;
// the top two bits are unused and must be zero.
const lengthMask = 0x3f

// buildFrame assembles the modem frame for payload: a 3-byte header
// (checksum, checksum, length) followed by payload, with the checksum
// computed over the whole header-with-zeroed-checksum-bytes plus payload.
func buildFrame(payload []byte) []byte {
	frame := make([]byte, headerLen+len(payload))
	frame[2] = byte(len(payload))
	copy(frame[headerLen:], payload)

	sum := checksum(frame)
	frame[0] = byte(sum >> 8)
	frame[1] = byte(sum)
	return frame
}

// parseFrame extracts the payload from a candidate frame's bytes: read
// the length field, check there are enough bytes to satisfy it, verify
// the checksum over exactly that many bytes, then slice out the payload.
func parseFrame(data []byte) ([]byte, error) {
	if len(data) < headerLen {
		return nil, ErrTruncatedFrame
	}
	length := int(data[2] & lengthMask)
	if length+headerLen > len(data) {
		return nil, ErrTruncatedFrame
	}
	framed := data[:length+headerLen]
	if !verifyChecksum(framed) {
		return nil, ErrBadChecksum
	}
	return framed[headerLen:], nil
}
