package server

import (
	"kvs/internal/protocol"
	"kvs/internal/storage"
)

// Execute runs req against engine and converts the outcome to a response.
// Engine failures become Err responses carrying the storage error kind.
func Execute(engine storage.StorageEngine, req protocol.Request) protocol.Response {
	var (
		value string
		err   error
	)

	switch req.Op {
	case protocol.OpSet:
		err = engine.Set(req.Key, req.Value)
	case protocol.OpGet:
		value, err = engine.Get(req.Key)
	case protocol.OpRemove:
		err = engine.Remove(req.Key)
	default:
		return protocol.Err(req.Op, "invalid_request", "unknown op "+string(req.Op))
	}

	if err != nil {
		return protocol.Err(req.Op, storage.KindOf(err).String(), err.Error())
	}
	return protocol.OK(req.Op, value)
}
