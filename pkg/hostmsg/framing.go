// Package hostmsg implements a browser native messaging host: JSON messages
// framed by a 4-byte little-endian length, exchanged over stdin and stdout.
package hostmsg

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxOutgoing is the browser's limit for a single host message.
	MaxOutgoing = 1 << 20
	// MaxIncoming bounds messages read from the browser.
	MaxIncoming = 64 << 20
)

var (
	ErrMessageTooLarge = errors.New("native message too large")
	// ErrInvalidMessage reports a well-framed message whose body is not
	// valid JSON. The stream itself stays usable.
	ErrInvalidMessage = errors.New("invalid message")
)

// ReadMessage reads one framed message into v. It returns io.EOF when the
// stream ends cleanly between messages.
func ReadMessage(r io.Reader, v any) error {
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("truncated message header: %w", err)
		}
		return err
	}
	if size > MaxIncoming {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		// a header without any body is still a broken frame
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("truncated message body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}

// WriteMessage frames v and writes it in a single call.
func WriteMessage(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if len(body) > MaxOutgoing {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(body))
	}

	frame := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)
	_, err = w.Write(frame)
	return err
}
