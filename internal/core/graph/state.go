package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Missing selects what SetState does with keys the receiver does not know.
type Missing string

const (
	// MissingAdd keeps unknown keys on the entity and writes them back out
	MissingAdd Missing = "add"
	// MissingSkip drops unknown keys
	MissingSkip Missing = "skip"
	// MissingReturn hands unknown keys back to the caller
	MissingReturn Missing = "return"
	// MissingError rejects the state
	MissingError Missing = "error"
)

// ParseMissing validates a policy name.
func ParseMissing(s string) (Missing, error) {
	switch m := Missing(s); m {
	case MissingAdd, MissingSkip, MissingReturn, MissingError:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMissing, s)
}

// Unconsumed maps the path of each key returned under MissingReturn to its
// raw value.
type Unconsumed map[string]json.RawMessage

// SocketState is the persisted form of an input or output socket.
type SocketState struct {
	Enabled bool `json:"enabled"`

	Extra map[string]json.RawMessage `json:"-"`
}

// CallbackState is a persisted callback: its tag and, for bound callbacks,
// the tag of the receiver.
type CallbackState struct {
	TypeTag
	Self *TypeTag `json:"__self__,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// PortState is the persisted form of a Port.
type PortState struct {
	TypeTag
	Name      string          `json:"name,omitempty"`
	Input     SocketState     `json:"input"`
	Output    SocketState     `json:"output"`
	Value     string          `json:"value,omitempty"`
	Callbacks []CallbackState `json:"callbacks"`
	Start     *float64        `json:"start,omitempty"`
	Stop      *float64        `json:"stop,omitempty"`
	Step      *float64        `json:"step,omitempty" validate:"omitempty,gt=0"`
	Decimals  *int            `json:"decimals,omitempty" validate:"omitempty,gte=-1"`
	Options   string          `json:"options,omitempty"`
	Lines     *int            `json:"lines,omitempty" validate:"omitempty,gte=0"`

	Extra map[string]json.RawMessage `json:"-"`
}

// NodeState is the persisted form of a Node. Function nodes also carry the
// function tag and the size of each port section.
type NodeState struct {
	TypeTag
	Name     string      `json:"name"`
	Entries  []PortState `json:"entries" validate:"dive"`
	Function *TypeTag    `json:"function,omitempty"`
	NArgs    *int        `json:"n_args,omitempty" validate:"omitempty,gte=0"`
	NReturns *int        `json:"n_returns,omitempty" validate:"omitempty,gte=0"`
	NActions *int        `json:"n_actions,omitempty" validate:"omitempty,gte=0"`

	Extra map[string]json.RawMessage `json:"-"`
}

// SceneState holds the nodes and edges of a graph or a clipboard payload.
type SceneState struct {
	Nodes []NodeState `json:"nodes" validate:"dive"`
	Edges []Edge      `json:"edges" validate:"dive"`

	Extra map[string]json.RawMessage `json:"-"`
}

// EditorState wraps the scene with its view transform.
type EditorState struct {
	Transform [9]float64 `json:"transform"`
	Scene     SceneState `json:"scene"`

	Extra map[string]json.RawMessage `json:"-"`
}

// GraphState is the top-level persisted document.
type GraphState struct {
	TypeTag
	Title  string      `json:"title"`
	Editor EditorState `json:"editor"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (s *SocketState) UnmarshalJSON(data []byte) error {
	type plain SocketState
	return decodeState(data, (*plain)(s), &s.Extra)
}

func (s SocketState) MarshalJSON() ([]byte, error) {
	type plain SocketState
	return encodeState(plain(s), s.Extra)
}

func (s *CallbackState) UnmarshalJSON(data []byte) error {
	type plain CallbackState
	return decodeState(data, (*plain)(s), &s.Extra)
}

func (s CallbackState) MarshalJSON() ([]byte, error) {
	type plain CallbackState
	return encodeState(plain(s), s.Extra)
}

func (s *PortState) UnmarshalJSON(data []byte) error {
	type plain PortState
	return decodeState(data, (*plain)(s), &s.Extra)
}

func (s PortState) MarshalJSON() ([]byte, error) {
	type plain PortState
	return encodeState(plain(s), s.Extra)
}

func (s *NodeState) UnmarshalJSON(data []byte) error {
	type plain NodeState
	return decodeState(data, (*plain)(s), &s.Extra)
}

func (s NodeState) MarshalJSON() ([]byte, error) {
	type plain NodeState
	return encodeState(plain(s), s.Extra)
}

func (s *SceneState) UnmarshalJSON(data []byte) error {
	type plain SceneState
	return decodeState(data, (*plain)(s), &s.Extra)
}

func (s SceneState) MarshalJSON() ([]byte, error) {
	type plain SceneState
	return encodeState(plain(s), s.Extra)
}

func (s *EditorState) UnmarshalJSON(data []byte) error {
	type plain EditorState
	return decodeState(data, (*plain)(s), &s.Extra)
}

func (s EditorState) MarshalJSON() ([]byte, error) {
	type plain EditorState
	return encodeState(plain(s), s.Extra)
}

func (s *GraphState) UnmarshalJSON(data []byte) error {
	type plain GraphState
	return decodeState(data, (*plain)(s), &s.Extra)
}

func (s GraphState) MarshalJSON() ([]byte, error) {
	type plain GraphState
	return encodeState(plain(s), s.Extra)
}

var knownKeyCache sync.Map // reflect.Type -> map[string]bool

// knownKeys lists the JSON keys a struct type decodes, including the keys
// of embedded structs.
func knownKeys(t reflect.Type) map[string]bool {
	if cached, ok := knownKeyCache.Load(t); ok {
		return cached.(map[string]bool)
	}
	keys := map[string]bool{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name := strings.SplitN(tag, ",", 2)[0]
		if f.Anonymous && name == "" && f.Type.Kind() == reflect.Struct {
			for k := range knownKeys(f.Type) {
				keys[k] = true
			}
			continue
		}
		if name == "" {
			name = f.Name
		}
		keys[name] = true
	}
	knownKeyCache.Store(t, keys)
	return keys
}

// decodeState decodes data into v and collects the keys v does not declare.
func decodeState(data []byte, v any, extra *map[string]json.RawMessage) error {
	if err := json.Unmarshal(data, v); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	known := knownKeys(reflect.TypeOf(v).Elem())
	*extra = nil
	for k, val := range raw {
		if known[k] {
			continue
		}
		if *extra == nil {
			*extra = make(map[string]json.RawMessage)
		}
		(*extra)[k] = val
	}
	return nil
}

// encodeState encodes v and appends extra keys in sorted order.
func encodeState(v any, extra map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}
	var buf bytes.Buffer
	buf.Write(data[:len(data)-1])
	for _, k := range sortedKeys(extra) {
		if len(data) > 2 || buf.Len() > 1 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(k)
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// loader applies one missing-key policy across a whole state tree.
type loader struct {
	reg     *Registry
	missing Missing
	out     Unconsumed
	obs     Observer
	log     hclog.Logger
}

// extras applies the policy to the unknown keys found at path. Under
// MissingAdd the keys are returned so the entity can keep them. Keys
// starting with "__" are always ignored.
func (l *loader) extras(path string, extra map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	var kept map[string]json.RawMessage
	for _, k := range sortedKeys(extra) {
		if strings.HasPrefix(k, "__") {
			continue
		}
		switch l.missing {
		case MissingAdd:
			if kept == nil {
				kept = make(map[string]json.RawMessage)
			}
			kept[k] = extra[k]
		case MissingReturn:
			l.out[joinPath(path, k)] = extra[k]
		case MissingError:
			return nil, &KeyError{Path: path, Key: k}
		}
	}
	return kept, nil
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
