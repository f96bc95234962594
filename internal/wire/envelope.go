// Package wire defines the JSON envelope exchanged with chat clients and the
// sanitizer applied to user-controlled text before anything is published.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// The closed set of message tags understood by the protocol.
const (
	TypeJoin            = "join"
	TypeLeave           = "leave"
	TypeMessage         = "message"
	TypeHeartbeat       = "heartbeat"
	TypeUserlist        = "userlist"
	TypeInvalidUsername = "invalid_username"
	TypeBadRequest      = "bad_request"
)

// Reserved sender sentinels. SenderHost authors roster updates; SenderServer
// authors private error replies.
const (
	SenderHost   = "[Host]"
	SenderServer = "SERVER"
)

// ErrMalformedFrame indicates a frame that is not a single JSON object with
// exactly the three expected string fields.
var ErrMalformedFrame = errors.New("wire: malformed frame")

// Envelope is the single message shape carried in every WebSocket text frame,
// in both directions.
type Envelope struct {
	Type    string `json:"msg_type"`
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// Decode parses one text frame into an Envelope. A frame with a missing
// field, an extra field, a non-string value, or trailing data is rejected
// with ErrMalformedFrame.
func Decode(frame []byte) (Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(frame))

	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if dec.More() {
		return Envelope{}, fmt.Errorf("%w: trailing data after object", ErrMalformedFrame)
	}
	if len(fields) != 3 {
		return Envelope{}, fmt.Errorf("%w: expected exactly 3 fields, got %d", ErrMalformedFrame, len(fields))
	}

	var env Envelope
	for key, dst := range map[string]*string{
		"msg_type": &env.Type,
		"sender":   &env.Sender,
		"content":  &env.Content,
	} {
		raw, ok := fields[key]
		if !ok {
			return Envelope{}, fmt.Errorf("%w: missing field %q", ErrMalformedFrame, key)
		}
		// Unmarshal through a pointer so JSON null is caught instead of
		// silently leaving the field empty.
		var value *string
		if err := json.Unmarshal(raw, &value); err != nil || value == nil {
			return Envelope{}, fmt.Errorf("%w: field %q is not a string", ErrMalformedFrame, key)
		}
		*dst = *value
	}
	return env, nil
}

// Encode serializes the envelope as a compact JSON object. Encoding a struct
// of three strings cannot fail, so Encode is total.
func (e Envelope) Encode() string {
	b, err := json.Marshal(e)
	if err != nil {
		// Unreachable for plain string fields; kept so a future field
		// change cannot silently drop frames.
		panic(fmt.Sprintf("wire: encode envelope: %v", err))
	}
	return string(b)
}

var sanitizer = strings.NewReplacer(
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#039;",
)

// Sanitized returns a copy of the envelope with the HTML-significant
// characters in Sender and Content replaced by entity references. Ampersands
// are left alone, so re-sanitizing an already sanitized envelope is a no-op.
// Type is never touched.
func (e Envelope) Sanitized() Envelope {
	e.Sender = sanitizer.Replace(e.Sender)
	e.Content = sanitizer.Replace(e.Content)
	return e
}
