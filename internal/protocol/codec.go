package protocol

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// gRPC service and method names. Messages are Request and Response encoded
// by JSONCodec, so no generated stubs are needed.
const (
	GRPCServiceName = "kvs.Kvs"

	GRPCMethodSet    = "Set"
	GRPCMethodGet    = "Get"
	GRPCMethodRemove = "Remove"
)

// GRPCFullMethod returns the path of method, e.g. "/kvs.Kvs/Get".
func GRPCFullMethod(method string) string {
	return "/" + GRPCServiceName + "/" + method
}

// JSONCodecName is the content-subtype clients select with
// grpc.CallContentSubtype.
const JSONCodecName = "json"

// JSONCodec marshals gRPC messages as JSON.
type JSONCodec struct{}

func (JSONCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (JSONCodec) Name() string {
	return JSONCodecName
}

func init() {
	encoding.RegisterCodec(JSONCodec{})
}
