package graph

import (
	"fmt"
	"math"
	"reflect"
)

// Table is the tabular payload carried by plot ports: one shared index and a
// named column of values per series.
type Table struct {
	Index   []float64   `msgpack:"index" json:"index"`
	Columns []string    `msgpack:"columns" json:"columns"`
	Data    [][]float64 `msgpack:"data" json:"data"`
}

// NewTable builds a table over index with the given column series.
func NewTable(index []float64, columns []string, data ...[]float64) (Table, error) {
	if len(columns) != len(data) {
		return Table{}, fmt.Errorf("%w: %d columns for %d series", ErrStructural, len(columns), len(data))
	}
	for i, series := range data {
		if len(series) != len(index) {
			return Table{}, fmt.Errorf("%w: column %q has %d rows, index has %d",
				ErrStructural, columns[i], len(series), len(index))
		}
	}
	return Table{Index: index, Columns: columns, Data: data}, nil
}

// Column returns the series named name.
func (t Table) Column(name string) ([]float64, bool) {
	for i, c := range t.Columns {
		if c == name {
			return t.Data[i], true
		}
	}
	return nil, false
}

// Len is the number of rows.
func (t Table) Len() int { return len(t.Index) }

var (
	tableType    = reflect.TypeOf(Table{})
	tablePtrType = reflect.TypeOf(&Table{})
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
)

func isIntKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isFloatKind(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

// toFloat widens any Go number to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// convertArg adapts a port value to a parameter type.
func convertArg(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	switch {
	case t == tableType && rv.Type() == tablePtrType:
		if rv.IsNil() {
			return reflect.Zero(t), nil
		}
		return rv.Elem(), nil
	case t == tablePtrType && rv.Type() == tableType:
		ptr := reflect.New(tableType)
		ptr.Elem().Set(rv)
		return ptr, nil
	case isIntKind(t.Kind()):
		if f, ok := toFloat(v); ok {
			return reflect.ValueOf(math.Round(f)).Convert(t), nil
		}
	case isFloatKind(t.Kind()):
		if f, ok := toFloat(v); ok {
			return reflect.ValueOf(f).Convert(t), nil
		}
	}
	if rv.Kind() == t.Kind() && rv.Type().ConvertibleTo(t) {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("%w: cannot use %T as %s", ErrTypeMismatch, v, t)
}
