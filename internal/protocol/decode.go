package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"pkt.systems/penroseide/schema"
)

// Incoming envelope tags.
const (
	ResponseError  = "error"
	ResponseShapes = "shapes"
)

// Kind classifies a decoded response.
type Kind int

const (
	// KindUnknown is any tag the client does not understand, or a malformed frame.
	KindUnknown Kind = iota
	// KindError carries a server-side compile or runtime error.
	KindError
	// KindShapes carries a rendered frame.
	KindShapes
)

func (k Kind) String() string {
	switch k {
	case KindError:
		return "error"
	case KindShapes:
		return "shapes"
	default:
		return "unknown"
	}
}

// Response is a decoded server envelope.
type Response struct {
	Kind Kind
	// Tag is the raw wire tag, kept for diagnostics.
	Tag     string
	Message string
	Flag    schema.Flag
	// Payload is the complete raw frame for shapes responses.
	Payload []byte
	Seq     uint64
	HasSeq  bool
	// Err records why a frame was classified as unknown, if it was malformed.
	Err error
}

type envelope struct {
	Type     string          `json:"type"`
	Contents json.RawMessage `json:"contents"`
	Seq      *uint64         `json:"seq"`
}

// Decode classifies a raw frame. It never fails: malformed input yields a
// KindUnknown response with Err set.
func Decode(raw []byte) Response {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Response{Kind: KindUnknown, Err: fmt.Errorf("decode envelope: %w", err)}
	}
	resp := Response{Tag: env.Type}
	if env.Seq != nil {
		resp.Seq = *env.Seq
		resp.HasSeq = true
	}
	switch env.Type {
	case ResponseError:
		message, err := decodeErrorMessage(env.Contents)
		if err != nil {
			resp.Err = err
			return resp
		}
		resp.Kind = KindError
		resp.Message = message
	case ResponseShapes:
		flag, err := decodeFlag(env.Contents)
		if err != nil {
			resp.Err = err
			return resp
		}
		resp.Kind = KindShapes
		resp.Flag = flag
		resp.Payload = append([]byte(nil), raw...)
	}
	return resp
}

func decodeErrorMessage(contents json.RawMessage) (string, error) {
	if !isObject(contents) {
		return "", errors.New("error contents must be an object")
	}
	var body struct {
		Contents json.RawMessage `json:"contents"`
	}
	if err := json.Unmarshal(contents, &body); err != nil {
		return "", fmt.Errorf("decode error contents: %w", err)
	}
	if len(body.Contents) == 0 {
		return "", nil
	}
	var message string
	if err := json.Unmarshal(body.Contents, &message); err == nil {
		return message, nil
	}
	// Structured error payloads are shown verbatim.
	return string(bytes.TrimSpace(body.Contents)), nil
}

func decodeFlag(contents json.RawMessage) (schema.Flag, error) {
	if !isObject(contents) {
		return "", errors.New("shapes contents must be an object")
	}
	var body struct {
		Flag json.RawMessage `json:"flag"`
	}
	if err := json.Unmarshal(contents, &body); err != nil {
		return "", fmt.Errorf("decode shapes contents: %w", err)
	}
	var flag string
	if err := json.Unmarshal(body.Flag, &flag); err != nil {
		return schema.FlagIntermediate, nil
	}
	return schema.ParseFlag(flag), nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
