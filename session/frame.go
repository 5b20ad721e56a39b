package session

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

func putLength(b []byte, n int) {
	binary.BigEndian.PutUint16(b[:LengthLen], uint16(n))
}

// readFrame reads one length-prefixed frame, reusing the capacity of buf.
func readFrame(r io.Reader, buf []byte) ([]byte, error) {
	var hdr [LengthLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint16(hdr[:]))
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, errors.Wrap(err, "short frame")
	}
	return buf, nil
}

// writeFrame writes b as one length-prefixed frame with a single Write.
func writeFrame(w io.Writer, b []byte) error {
	if len(b) > MaxMessageSize {
		return ErrMessageTooLarge
	}
	out := make([]byte, LengthLen+len(b))
	putLength(out, len(b))
	copy(out[LengthLen:], b)
	_, err := w.Write(out)
	return err
}
