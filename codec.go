package guestws

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

type FrameKind int

const (
	FrameNotification FrameKind = iota
	FramePing
	FramePong
)

func (k FrameKind) String() string {
	switch k {
	case FramePing:
		return "ping"
	case FramePong:
		return "pong"
	default:
		return "notification"
	}
}

// Frame is a classified inbound payload. Notification is set for FrameNotification and
// FramePong (as a synthetic pong notification); it is zero for FramePing.
type Frame struct {
	Kind         FrameKind
	Notification Notification
}

// Forwarded reports whether consumers should see this frame.
func (f Frame) Forwarded() bool {
	return f.Kind != FramePing
}

type wireNotification struct {
	Type           string          `json:"type"`
	Data           json.RawMessage `json:"data"`
	Timestamp      json.RawMessage `json:"timestamp"`
	ConversationID int64           `json:"conversationId"`
}

// Codec turns raw text frames into Frames.
type Codec struct {
	PingToken string
	PongToken string
}

func DefaultCodec() Codec {
	return Codec{PingToken: PingToken, PongToken: PongToken}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Decode classifies raw. Liveness tokens must match exactly; anything else has to be a
// JSON notification. A message event whose data is a JSON string is decoded one more
// level so Payload always holds the entity itself.
func (c Codec) Decode(raw []byte, receivedAt time.Time) (Frame, error) {
	switch string(raw) {
	case c.PingToken:
		return Frame{Kind: FramePing}, nil
	case c.PongToken:
		return Frame{
			Kind: FramePong,
			Notification: Notification{
				Kind:         KindPong,
				Timestamp:    receivedAt,
				RawTimestamp: receivedAt.Format(time.RFC3339Nano),
			},
		}, nil
	}

	var w wireNotification
	if err := json.Unmarshal(raw, &w); err != nil {
		return Frame{}, errors.Wrap(ErrDecode, err.Error())
	}

	n := Notification{
		Kind:           ParseKind(w.Type),
		ConversationID: w.ConversationID,
	}
	n.Timestamp, n.RawTimestamp = parseTimestamp(w.Timestamp)

	payload, err := normalizePayload(n.Kind, w.Data)
	if err != nil {
		return Frame{}, err
	}
	n.Payload = payload

	return Frame{Kind: FrameNotification, Notification: n}, nil
}

func normalizePayload(kind Kind, data json.RawMessage) (json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if !kind.IsMessageEvent() || data[0] != '"' {
		return data, nil
	}

	var inner string
	if err := json.Unmarshal(data, &inner); err != nil {
		return nil, errors.Wrapf(ErrDecode, "%s data: %s", kind, err)
	}
	if !json.Valid([]byte(inner)) {
		return nil, errors.Wrapf(ErrDecode, "%s data is a string but not JSON", kind)
	}
	return json.RawMessage(inner), nil
}

// parseTimestamp accepts RFC3339-ish strings and unix seconds or milliseconds. The raw
// text is always returned, the parsed time is zero when nothing matched.
func parseTimestamp(raw json.RawMessage) (time.Time, string) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, ""
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, string(raw)
		}
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, s
			}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return unixTime(n), s
		}
		return time.Time{}, s
	}

	s := string(raw)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return unixTime(n), s
	}
	return time.Time{}, s
}

// unixTime treats values past year 33658 in seconds as milliseconds.
func unixTime(n int64) time.Time {
	if n > 1e12 || n < -1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
