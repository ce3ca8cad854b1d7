package rpc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// maxFrameSize bounds one frame's payload. Control-plane messages are
// small; anything larger indicates a corrupt or hostile peer.
const maxFrameSize = 1 << 20

// writeFrame sends v as a 4-byte big-endian length prefix followed by
// the JSON payload.
func writeFrame(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("rpc: encoding frame: %w", err)
	}

	if len(payload) > maxFrameSize {
		return fmt.Errorf("rpc: frame payload %d bytes exceeds limit", len(payload))
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("rpc: writing frame header: %w", err)
	}

	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("rpc: writing frame payload: %w", err)
	}

	return nil
}

// readFrame reads one length-prefixed JSON frame into v. A clean EOF
// before the header means the peer closed the connection; it is
// returned as io.EOF unwrapped so callers can end their read loop.
func readFrame(r io.Reader, v any) error {
	var header [4]byte

	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return io.EOF
		}

		return fmt.Errorf("rpc: reading frame header: %w", err)
	}

	size := binary.BigEndian.Uint32(header[:])
	if size == 0 || size > maxFrameSize {
		return fmt.Errorf("rpc: frame size %d out of range", size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("rpc: reading frame payload: %w", err)
	}

	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("rpc: decoding frame: %w", err)
	}

	return nil
}
