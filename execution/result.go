package execution

import (
	"bytes"
	"encoding/json"
)

// KeyedValue is the result of executing selections against one focus: a
// field-name to value mapping that preserves the requested field order. The
// field order is part of the wire contract, which is why this is not a plain
// map.
type KeyedValue struct {
	keys   []string
	values map[string]interface{}
}

func NewKeyedValue() *KeyedValue {
	return &KeyedValue{values: make(map[string]interface{})}
}

// Set stores a value under key. An existing key keeps its original position.
func (kv *KeyedValue) Set(key string, value interface{}) {
	if _, ok := kv.values[key]; !ok {
		kv.keys = append(kv.keys, key)
	}
	kv.values[key] = value
}

func (kv *KeyedValue) Get(key string) (interface{}, bool) {
	v, ok := kv.values[key]
	return v, ok
}

func (kv *KeyedValue) Len() int { return len(kv.keys) }

func (kv *KeyedValue) Keys() []string {
	keys := make([]string, len(kv.keys))
	copy(keys, kv.keys)
	return keys
}

func (kv *KeyedValue) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range kv.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		value, err := json.Marshal(kv.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

var _ json.Marshaler = (*KeyedValue)(nil)
