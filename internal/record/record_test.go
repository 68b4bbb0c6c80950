package record

import (
	"bytes"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		name   string
		record Record
	}{
		{"set", Set("key1", "value1")},
		{"set empty value", Set("key2", "")},
		{"remove", Remove("key3")},
		{"get", Get("key4")},
		{"newline in value", Set("multi", "line one\nline two")},
		{"unicode", Set("키", "값")},
		{"quotes and braces", Set(`{"op":"rm"}`, `"}\n{`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.record)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			if data[len(data)-1] != Delimiter {
				t.Errorf("Encode() does not end with delimiter")
			}
			if bytes.Count(data, []byte{Delimiter}) != 1 {
				t.Errorf("Encode() embeds an unescaped delimiter: %q", data)
			}

			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != tt.record {
				t.Errorf("Decode() = %+v, want %+v", got, tt.record)
			}
		})
	}
}

func TestEncodeRejectsInvalidInput(t *testing.T) {
	if _, err := Encode(Record{Op: "put", Key: "k"}); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Encode() unknown op error = %v, want %v", err, ErrInvalidRecord)
	}
	if _, err := Encode(Set("k", "\xff\xfe")); !errors.Is(err, ErrInvalidUTF8) {
		t.Errorf("Encode() invalid utf8 error = %v, want %v", err, ErrInvalidUTF8)
	}
	if _, err := Encode(Record{Op: OpRemove, Key: "k", Value: "v"}); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Encode() remove with value error = %v, want %v", err, ErrInvalidRecord)
	}
}

func TestDecodeCorruption(t *testing.T) {
	valid, err := Encode(Set("key", "payload"))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"empty", []byte("\n"), ErrInvalidRecord},
		{"truncated", valid[:len(valid)/2], ErrInvalidRecord},
		{"not json", []byte("set key value\n"), ErrInvalidRecord},
		{"unknown field", []byte(`{"op":"set","key":"k","extra":1,"sum":0}`), ErrInvalidRecord},
		{"unknown op", []byte(`{"op":"put","key":"k","sum":0}`), ErrInvalidRecord},
		{"tampered value", bytes.Replace(valid, []byte("payload"), []byte("PAYLOAD"), 1), ErrChecksum},
		{"two records", append(append([]byte{}, valid[:len(valid)-1]...), valid...), ErrInvalidRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.data); !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecordProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("set records round trip", prop.ForAll(
		func(key, value string) bool {
			data, err := Encode(Set(key, value))
			if err != nil {
				return false
			}
			got, err := Decode(data)
			return err == nil && got == Set(key, value)
		},
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.Property("remove records round trip", prop.ForAll(
		func(key string) bool {
			data, err := Encode(Remove(key))
			if err != nil {
				return false
			}
			got, err := Decode(data)
			return err == nil && got == Remove(key)
		},
		gen.AnyString(),
	))

	properties.Property("encoding holds exactly one delimiter", prop.ForAll(
		func(key, value string) bool {
			data, err := Encode(Set(key, value))
			return err == nil && bytes.IndexByte(data, Delimiter) == len(data)-1
		},
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
