package protocol

import (
	"encoding/binary"
	"io"
)

// Response framing: [Size(4)][CorrelationID(4)][Body...].
const (
	responseHeaderSize = correlationIDSize
	framingSize         = 4
)

// SendResponse writes body straight to w after the size/correlation-ID
// header, avoiding an extra copy of the payload.
func SendResponse(w io.Writer, correlationID int32, body []byte) error {
	payloadSize := responseHeaderSize + len(body)

	var headerBuf [framingSize + responseHeaderSize]byte
	binary.BigEndian.PutUint32(headerBuf[0:framingSize], uint32(payloadSize))
	binary.BigEndian.PutUint32(headerBuf[framingSize:], uint32(correlationID))

	if _, err := w.Write(headerBuf[:]); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return err
		}
	}
	return nil
}
