package serial

import (
	"encoding/json"
	"reflect"
)

var mapStringAny = reflect.TypeOf(map[string]any(nil))

// JSON serializes with encoding/json. Stateless; pooling it is free.
type JSON struct{}

var _ Serializer = JSON{}

func (JSON) Format() Format                       { return FormatJSON }
func (JSON) Marshal(v any) ([]byte, error)        { return json.Marshal(v) }
func (JSON) Unmarshal(data []byte, dst any) error { return json.Unmarshal(data, dst) }
