package serialization

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrDuplicateValueType is returned when a value type name is registered twice.
var ErrDuplicateValueType = errors.New("value type already registered")

// envelope carries the registered type name next to the msgpack payload so
// that decoding can rebuild the concrete Go type.
type envelope struct {
	Type string             `msgpack:"t,omitempty"`
	Data msgpack.RawMessage `msgpack:"d"`
}

// ValueCodec encodes port values as base64(msgpack(envelope)). Concrete
// types are resolved through an explicit table of registered names; values
// of unregistered types still round-trip as their generic msgpack shape,
// with integers as int and floats as float64.
type ValueCodec struct {
	byName map[string]reflect.Type
	byType map[reflect.Type]string
}

// NewValueCodec returns a codec with the scalar and container types
// every port kind needs already registered.
func NewValueCodec() *ValueCodec {
	c := &ValueCodec{
		byName: make(map[string]reflect.Type),
		byType: make(map[reflect.Type]string),
	}
	builtins := []struct {
		name  string
		proto any
	}{
		{"bool", false},
		{"int", int(0)},
		{"int8", int8(0)},
		{"int16", int16(0)},
		{"int32", int32(0)},
		{"int64", int64(0)},
		{"uint", uint(0)},
		{"uint8", uint8(0)},
		{"uint16", uint16(0)},
		{"uint32", uint32(0)},
		{"uint64", uint64(0)},
		{"float32", float32(0)},
		{"float64", float64(0)},
		{"string", ""},
		{"bytes", []byte(nil)},
		{"[]int", []int(nil)},
		{"[]float64", []float64(nil)},
		{"[]string", []string(nil)},
		{"[]any", []any(nil)},
		{"map[string]any", map[string]any(nil)},
	}
	for _, b := range builtins {
		_ = c.Register(b.name, b.proto)
	}
	return c
}

// Register binds name to the dynamic type of prototype.
func (c *ValueCodec) Register(name string, prototype any) error {
	t := reflect.TypeOf(prototype)
	if t == nil {
		return fmt.Errorf("register %q: nil prototype", name)
	}
	if _, exists := c.byName[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateValueType, name)
	}
	c.byName[name] = t
	c.byType[t] = name
	return nil
}

// TypeName reports the registered name of v's type.
func (c *ValueCodec) TypeName(v any) (string, bool) {
	name, ok := c.byType[reflect.TypeOf(v)]
	return name, ok
}

// Encode returns the text-safe encoding of v. A nil value encodes to "".
func (c *ValueCodec) Encode(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	env, err := c.pack(v)
	if err != nil {
		return "", err
	}
	raw, err := marshal(&env)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// pack wraps v in an envelope. Elements of []any and map[string]any get
// envelopes of their own so each keeps its concrete type.
func (c *ValueCodec) pack(v any) (envelope, error) {
	var (
		data any = v
		name     = c.byType[reflect.TypeOf(v)]
	)
	switch t := v.(type) {
	case []any:
		items := make([]envelope, len(t))
		for i, x := range t {
			env, err := c.pack(x)
			if err != nil {
				return envelope{}, err
			}
			items[i] = env
		}
		data = items
	case map[string]any:
		items := make(map[string]envelope, len(t))
		for k, x := range t {
			env, err := c.pack(x)
			if err != nil {
				return envelope{}, err
			}
			items[k] = env
		}
		data = items
	}
	raw, err := marshal(data)
	if err != nil {
		return envelope{}, fmt.Errorf("encode %T: %w", v, err)
	}
	return envelope{Type: name, Data: raw}, nil
}

// marshal encodes with sorted map keys so equal values encode equally.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode. "" decodes to nil.
func (c *ValueCodec) Decode(s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	var env envelope
	if err := msgpack.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return c.unpack(env)
}

func (c *ValueCodec) unpack(env envelope) (any, error) {
	switch env.Type {
	case "[]any":
		var items []envelope
		if err := msgpack.Unmarshal(env.Data, &items); err != nil {
			return nil, fmt.Errorf("decode []any: %w", err)
		}
		out := make([]any, len(items))
		for i, item := range items {
			v, err := c.unpack(item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	case "map[string]any":
		var items map[string]envelope
		if err := msgpack.Unmarshal(env.Data, &items); err != nil {
			return nil, fmt.Errorf("decode map[string]any: %w", err)
		}
		out := make(map[string]any, len(items))
		for k, item := range items {
			v, err := c.unpack(item)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = v
		}
		return out, nil
	}
	if t, ok := c.byName[env.Type]; ok {
		ptr := reflect.New(t)
		if err := msgpack.Unmarshal(env.Data, ptr.Interface()); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return ptr.Elem().Interface(), nil
	}
	var v any
	if err := msgpack.Unmarshal(env.Data, &v); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return normalize(v), nil
}

// normalize maps the narrow numeric types msgpack picks for untyped
// data back to int and float64.
func normalize(v any) any {
	switch t := v.(type) {
	case int8:
		return int(t)
	case int16:
		return int(t)
	case int32:
		return int(t)
	case int64:
		if t >= math.MinInt && t <= math.MaxInt {
			return int(t)
		}
	case uint8:
		return int(t)
	case uint16:
		return int(t)
	case uint32:
		if uint64(t) <= math.MaxInt {
			return int(t)
		}
	case uint64:
		if t <= math.MaxInt {
			return int(t)
		}
	case float32:
		return float64(t)
	case []any:
		for i := range t {
			t[i] = normalize(t[i])
		}
	case map[string]any:
		for k := range t {
			t[k] = normalize(t[k])
		}
	}
	return v
}
