// Package frame implements the text wire grammar shared by the host and the
// web surface:
//
//	plain-frame    ::= <command> ":" <payload>
//	request-frame  ::= <command> ":request:" <id> ":" <payload>
//	response-frame ::= <command> ":response:" <id> ":" <payload>
//
// Payloads may contain colons; only the header is split.
package frame

import (
	"fmt"
	"strconv"
	"strings"

	"medhelper/internal/domain"
	"medhelper/pkg/result"
)

// Kind identifies the shape of a frame.
type Kind string

const (
	KindPlain    Kind = "plain"
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
)

// Frame is a decoded frame. ID is meaningful only for tagged kinds.
type Frame struct {
	Command string
	Kind    Kind
	ID      uint64
	Payload string
}

// Tagged reports whether f carries a correlation id.
func (f Frame) Tagged() bool { return f.Kind == KindRequest || f.Kind == KindResponse }

func (f Frame) String() string { return Encode(f) }

// Encode renders f in wire form. The id is dropped for plain frames.
func Encode(f Frame) string {
	if !f.Tagged() {
		return f.Command + ":" + f.Payload
	}
	return f.Command + ":" + string(f.Kind) + ":" + strconv.FormatUint(f.ID, 10) + ":" + f.Payload
}

// Plain encodes a plain frame.
func Plain(command, payload string) string {
	return Encode(Frame{Command: command, Kind: KindPlain, Payload: payload})
}

// Request encodes a tagged request frame.
func Request(command string, id uint64, payload string) string {
	return Encode(Frame{Command: command, Kind: KindRequest, ID: id, Payload: payload})
}

// Response encodes a tagged response frame.
func Response(command string, id uint64, payload string) string {
	return Encode(Frame{Command: command, Kind: KindResponse, ID: id, Payload: payload})
}

// Decode parses one raw frame. A frame whose second segment is a tag
// marker must be fully tagged; anything else after the first colon is a
// plain payload.
func Decode(raw string) result.Result[Frame, *domain.DomainError] {
	if strings.TrimSpace(raw) == "" {
		return result.Fail[Frame](domain.FramingError("empty frame"))
	}
	command, rest, found := strings.Cut(raw, ":")
	if !found {
		return result.Fail[Frame](domain.FramingError("expected 'command:payload'"))
	}
	if command == "" {
		return result.Fail[Frame](domain.FramingError("missing command"))
	}

	for _, kind := range []Kind{KindRequest, KindResponse} {
		tagged, ok := strings.CutPrefix(rest, string(kind)+":")
		if !ok {
			continue
		}
		idText, payload, found := strings.Cut(tagged, ":")
		if !found {
			return result.Fail[Frame](domain.FramingError("missing payload after " + string(kind) + " id"))
		}
		id, err := parseID(idText)
		if err != nil {
			return result.Fail[Frame](domain.FramingError(err.Error()))
		}
		return result.Ok[Frame, *domain.DomainError](Frame{Command: command, Kind: kind, ID: id, Payload: payload})
	}

	return result.Ok[Frame, *domain.DomainError](Frame{Command: command, Kind: KindPlain, Payload: rest})
}

func parseID(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("missing correlation id")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("non-numeric correlation id %q", s)
		}
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("correlation id %q out of range", s)
	}
	return id, nil
}

// CommandOf returns the command segment of raw, or "" if there is none.
// It is used to label diagnostics for frames that failed to decode.
func CommandOf(raw string) string {
	command, _, found := strings.Cut(raw, ":")
	if !found {
		return ""
	}
	return command
}
