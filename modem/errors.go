/*
NAME
  errors.go

DESCRIPTION
  errors.go declares the modem error taxonomy. None of these are fatal:
  the Decoder treats them as reasons to discard a candidate frame and
  advance its decode cursor, never surfacing them to the application.
*/

package modem

import "github.com/pkg/errors"

var (
	// ErrTruncatedFrame indicates the length field demands more bytes
	// than were actually decoded.
	ErrTruncatedFrame = errors.New("modem: truncated frame")

	// ErrBadChecksum indicates the frame checksum did not verify to zero.
	ErrBadChecksum = errors.New("modem: bad checksum")
)
