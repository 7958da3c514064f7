package serial

import (
	"fmt"
	"reflect"

	"google.golang.org/protobuf/proto"
)

var protoMessageType = reflect.TypeOf((*proto.Message)(nil)).Elem()

// Protobuf serializes proto.Message values. Unmarshal accepts either a message
// (*pb.User) or a pointer to a message pointer (**pb.User), the latter being
// what the cache core passes for a Cache[*pb.User].
type Protobuf struct{}

var _ Serializer = Protobuf{}

func (Protobuf) Format() Format { return FormatProtobuf }

func (Protobuf) Marshal(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("protobuf: %T is not a proto.Message", v)
	}
	return proto.Marshal(m)
}

func (Protobuf) Unmarshal(data []byte, dst any) error {
	if m, ok := dst.(proto.Message); ok {
		return proto.Unmarshal(data, m)
	}
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("protobuf: destination %T is not a pointer", dst)
	}
	elem := rv.Elem()
	if elem.Kind() != reflect.Pointer || !elem.Type().Implements(protoMessageType) {
		return fmt.Errorf("protobuf: destination %T does not hold a proto.Message", dst)
	}
	if elem.IsNil() {
		elem.Set(reflect.New(elem.Type().Elem()))
	}
	return proto.Unmarshal(data, elem.Interface().(proto.Message))
}
