// Package qrpayload encodes and decodes the text carried by event QR codes.
//
// The current wire format is "<eventId>:<sessionToken>". Older codes were
// printed as JSON objects or as a bare event id, so Decode accepts all three.
package qrpayload

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidPayload = errors.New("no event id found in QR payload")
	ErrUnencodable    = errors.New("event id and session token must be non-empty and free of ':'")
)

// Kind records which encoding a payload was decoded from.
type Kind int

const (
	KindObject Kind = iota + 1
	KindColon
	KindBare
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindColon:
		return "colon"
	case KindBare:
		return "bare"
	default:
		return "unknown"
	}
}

type Payload struct {
	EventID      string
	SessionToken string
	Kind         Kind
}

// HasToken reports whether the scanned code carried a session token.
func (p Payload) HasToken() bool { return p.SessionToken != "" }

// parser returns ok=false when the input is not in its encoding, letting the
// next parser try. A parser that claims the input but finds no event id
// returns ok=true with an empty EventID.
type parser func(raw string) (Payload, bool)

var parsers = []parser{parseObject, parseColon, parseBare}

// Decode extracts the event id and optional session token from raw.
func Decode(raw string) (Payload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Payload{}, ErrInvalidPayload
	}

	for _, parse := range parsers {
		p, ok := parse(raw)
		if !ok {
			continue
		}
		if p.EventID == "" {
			return Payload{}, ErrInvalidPayload
		}
		return p, nil
	}
	return Payload{}, ErrInvalidPayload
}

func parseObject(raw string) (Payload, bool) {
	if !strings.HasPrefix(raw, "{") {
		return Payload{}, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Payload{}, false
	}

	return Payload{
		EventID:      firstScalar(fields, "eventId", "id"),
		SessionToken: firstScalar(fields, "sessionToken", "token"),
		Kind:         KindObject,
	}, true
}

// firstScalar returns the first of keys holding a non-empty string or number.
func firstScalar(fields map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		value, ok := fields[key]
		if !ok {
			continue
		}

		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
			continue
		}

		var n json.Number
		if err := json.Unmarshal(value, &n); err == nil && n != "" {
			return n.String()
		}
	}
	return ""
}

func parseColon(raw string) (Payload, bool) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 {
		return Payload{}, false
	}
	return Payload{
		EventID:      strings.TrimSpace(parts[0]),
		SessionToken: strings.TrimSpace(parts[1]),
		Kind:         KindColon,
	}, true
}

func parseBare(raw string) (Payload, bool) {
	return Payload{EventID: raw, Kind: KindBare}, true
}

// Encode renders the payload printed into an event's QR code.
func Encode(eventID, sessionToken string) (string, error) {
	if eventID == "" || sessionToken == "" {
		return "", ErrUnencodable
	}
	if strings.Contains(eventID, ":") || strings.Contains(sessionToken, ":") {
		return "", ErrUnencodable
	}
	return eventID + ":" + sessionToken, nil
}

// NewSessionToken returns a fresh random token for an event (re)creation.
func NewSessionToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
