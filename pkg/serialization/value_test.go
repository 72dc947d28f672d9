package serialization

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	X, Y float64
}

func TestValueCodec_RoundTrip(t *testing.T) {
	c := NewValueCodec()
	require.NoError(t, c.Register("test.point", point{}))

	tests := []struct {
		name  string
		value any
	}{
		{"int", 42},
		{"negative int64", int64(-7)},
		{"float", 3.25},
		{"string", "hello"},
		{"bool", true},
		{"float slice", []float64{1, 2.5, 3}},
		{"registered struct", point{X: 1, Y: -2}},
		{"mixed slice", []any{1, 2.5, "x", true, int64(9), nil}},
		{"nested slice", []any{[]any{1, 2}, []string{"a"}}},
		{"map", map[string]any{"n": 4, "f": 0.5, "list": []any{3, "s"}}},
		{"empty slice", []any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := c.Encode(tt.value)
			require.NoError(t, err)

			_, err = base64.StdEncoding.DecodeString(encoded)
			require.NoError(t, err, "encoding must be text safe")

			decoded, err := c.Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, tt.value, decoded)
		})
	}
}

func TestValueCodec_Nil(t *testing.T) {
	c := NewValueCodec()
	encoded, err := c.Encode(nil)
	require.NoError(t, err)
	assert.Empty(t, encoded)

	decoded, err := c.Decode("")
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestValueCodec_UnregisteredTypeDecodesGenerically(t *testing.T) {
	c := NewValueCodec()
	encoded, err := c.Encode(point{X: 1, Y: 2})
	require.NoError(t, err)

	decoded, err := c.Decode(encoded)
	require.NoError(t, err)
	m, ok := decoded.(map[string]any)
	require.True(t, ok, "got %T", decoded)
	assert.Len(t, m, 2)
}

func TestValueCodec_Register(t *testing.T) {
	c := NewValueCodec()
	assert.ErrorIs(t, c.Register("int", 0), ErrDuplicateValueType)
	assert.Error(t, c.Register("nil", nil))

	name, ok := c.TypeName(1.5)
	assert.True(t, ok)
	assert.Equal(t, "float64", name)
}

func TestValueCodec_CorruptInput(t *testing.T) {
	c := NewValueCodec()
	_, err := c.Decode("not base64!!")
	assert.Error(t, err)
}

func TestValueCodec_ComboOptionsKeepIntTypes(t *testing.T) {
	c := NewValueCodec()
	encoded, err := c.Encode([]any{1, 2, 3})
	require.NoError(t, err)

	decoded, err := c.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2, 3}, decoded)
	for _, v := range decoded.([]any) {
		assert.IsType(t, int(0), v)
	}
}

func TestValueCodec_EqualMapsEncodeEqually(t *testing.T) {
	c := NewValueCodec()
	m := map[string]any{"a": 1, "b": 2, "c": 3, "d": 4, "e": 5}
	first, err := c.Encode(m)
	require.NoError(t, err)
	for range 10 {
		again, err := c.Encode(m)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"int8", int8(-3), -3},
		{"uint8", uint8(200), 200},
		{"int32", int32(70000), 70000},
		{"uint64", uint64(5), 5},
		{"float32", float32(0.5), 0.5},
		{"string", "s", "s"},
		{"nested", []any{int8(1), map[string]any{"k": uint16(2)}}, []any{1, map[string]any{"k": 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalize(tt.in))
		})
	}
}
