// Package serializer 为分布式缓存提供值的序列化能力。
package serializer

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrUnsupportedSerializer 不支持的序列化器类型
var ErrUnsupportedSerializer = fmt.Errorf("unsupported serializer type")

// Serializer 定义序列化接口
type Serializer interface {
	Marshal(value any) ([]byte, error)
	Unmarshal(data []byte, dest any) error
}

// JSONSerializer JSON 序列化器，兼容性最好
type JSONSerializer struct{}

func (j *JSONSerializer) Marshal(value any) ([]byte, error) {
	return json.Marshal(value)
}

func (j *JSONSerializer) Unmarshal(data []byte, dest any) error {
	return json.Unmarshal(data, dest)
}

// MessagePackSerializer MessagePack 二进制序列化器
// 比 JSON 序列化速度快 2-3 倍，数据体积小 20-30%
type MessagePackSerializer struct{}

func (m *MessagePackSerializer) Marshal(value any) ([]byte, error) {
	return msgpack.Marshal(value)
}

func (m *MessagePackSerializer) Unmarshal(data []byte, dest any) error {
	return msgpack.Unmarshal(data, dest)
}

// New 创建序列化器
//
// 支持的类型:
//   - "msgpack"（默认）: MessagePack 二进制序列化
//   - "json": 标准库 JSON 序列化
func New(serializerType string) (Serializer, error) {
	switch serializerType {
	case "msgpack", "":
		return &MessagePackSerializer{}, nil
	case "json":
		return &JSONSerializer{}, nil
	default:
		return nil, ErrUnsupportedSerializer
	}
}
