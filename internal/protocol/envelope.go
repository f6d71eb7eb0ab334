package protocol

import (
	"encoding/json"
)

// Tag identifies an outgoing request kind.
type Tag string

const (
	// TagEdit submits a program for compilation.
	TagEdit Tag = "Edit"
	// TagStep requests a single optimization step.
	TagStep Tag = "Step"
	// TagResample requests a fresh random sample of the current diagram.
	TagResample Tag = "Resample"
	// TagAutostep toggles continuous optimization on the server.
	TagAutostep Tag = "Autostep"
)

// Request is the wire envelope of every client request.
type Request struct {
	Tag      Tag    `json:"tag"`
	Contents any    `json:"contents"`
	Seq      uint64 `json:"seq,omitempty"`
}

// EditContents is the payload of an Edit request.
type EditContents struct {
	Program string `json:"program"`
	// Autostep asks the server to start continuous optimization right after compiling.
	Autostep bool `json:"autostep,omitempty"`
}

// EncodeEdit builds an Edit envelope.
func EncodeEdit(seq uint64, program string, autostep bool) []byte {
	return encode(Request{
		Tag:      TagEdit,
		Contents: EditContents{Program: program, Autostep: autostep},
		Seq:      seq,
	})
}

// EncodeStep builds a Step envelope.
func EncodeStep(seq uint64) []byte {
	return encodeAction(TagStep, seq)
}

// EncodeResample builds a Resample envelope.
func EncodeResample(seq uint64) []byte {
	return encodeAction(TagResample, seq)
}

// EncodeAutostepToggle builds an Autostep envelope.
func EncodeAutostepToggle(seq uint64) []byte {
	return encodeAction(TagAutostep, seq)
}

func encodeAction(tag Tag, seq uint64) []byte {
	return encode(Request{Tag: tag, Contents: []struct{}{}, Seq: seq})
}

func encode(req Request) []byte {
	// Request only holds strings, bools and integers; Marshal cannot fail.
	data, _ := json.Marshal(req)
	return data
}
