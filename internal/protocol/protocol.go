// Package protocol defines the request/response stream spoken between
// kvs-client and kvs-server.
//
// Messages are JSON objects written back to back on the connection. Each
// response echoes the op of its request and carries either a value or an
// error message with a machine-readable code.
package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Op names a request variant.
type Op string

const (
	OpSet    Op = "set"
	OpGet    Op = "get"
	OpRemove Op = "rm"
)

// Valid reports whether op is one of the three request variants.
func (op Op) Valid() bool {
	switch op {
	case OpSet, OpGet, OpRemove:
		return true
	}
	return false
}

// ErrInvalidRequest is returned when a decoded request has an unknown op or
// a non-set request carries a value. Empty keys are valid.
var ErrInvalidRequest = errors.New("invalid request")

type Request struct {
	Op    Op     `json:"op"`
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

func SetRequest(key, value string) Request { return Request{Op: OpSet, Key: key, Value: value} }
func GetRequest(key string) Request        { return Request{Op: OpGet, Key: key} }
func RemoveRequest(key string) Request     { return Request{Op: OpRemove, Key: key} }

func (r Request) Validate() error {
	if !r.Op.Valid() {
		return fmt.Errorf("%w: unknown op %q", ErrInvalidRequest, r.Op)
	}
	if r.Op != OpSet && r.Value != "" {
		return fmt.Errorf("%w: %s request carries a value", ErrInvalidRequest, r.Op)
	}
	return nil
}

// Response is Ok(Value) when Error is empty and Err(Error) otherwise. Value
// is only meaningful for get.
type Response struct {
	Op    Op     `json:"op"`
	Value string `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

func OK(op Op, value string) Response {
	return Response{Op: op, Value: value}
}

func Err(op Op, code, message string) Response {
	return Response{Op: op, Error: message, Code: code}
}

func (r Response) IsError() bool {
	return r.Error != "" || r.Code != ""
}

// Encoder writes messages to a stream, flushing after each one.
type Encoder struct {
	w   *bufio.Writer
	enc *json.Encoder
}

func NewEncoder(w io.Writer) *Encoder {
	bw := bufio.NewWriter(w)
	return &Encoder{w: bw, enc: json.NewEncoder(bw)}
}

func (e *Encoder) encode(v interface{}) error {
	if err := e.enc.Encode(v); err != nil {
		return err
	}
	return e.w.Flush()
}

func (e *Encoder) WriteRequest(req Request) error {
	return e.encode(req)
}

func (e *Encoder) WriteResponse(resp Response) error {
	return e.encode(resp)
}

// Decoder reads messages from a stream.
type Decoder struct {
	dec *json.Decoder
}

func NewDecoder(r io.Reader) *Decoder {
	dec := json.NewDecoder(bufio.NewReader(r))
	dec.DisallowUnknownFields()
	return &Decoder{dec: dec}
}

// ReadRequest returns io.EOF when the peer closed the stream cleanly between
// requests.
func (d *Decoder) ReadRequest() (Request, error) {
	var req Request
	if err := d.dec.Decode(&req); err != nil {
		return Request{}, err
	}
	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

func (d *Decoder) ReadResponse() (Response, error) {
	var resp Response
	if err := d.dec.Decode(&resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}
