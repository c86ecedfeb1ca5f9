package session

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// StatusViolation 触发 violation 通知的 status 取值。
const StatusViolation = "violation"

// Event 客户端上报的事件。Value 为解析后的任意 JSON 值，通常是对象，
// 也可能是数字、字符串、数组、布尔或 null。
type Event struct {
	Value interface{}
}

// DecodeEvent 解析一帧消息，只有不是合法 JSON 时才返回 ErrMalformedEvent。
func DecodeEvent(raw []byte) (Event, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return Event{}, errors.Mark(errors.Wrap(err, "decode event"), ErrMalformedEvent)
	}
	return Event{Value: v}, nil
}

// Fields 返回对象形式的事件字段，非对象时第二个返回值为 false。
func (e Event) Fields() (map[string]interface{}, bool) {
	m, ok := e.Value.(map[string]interface{})
	return m, ok
}

// Get 返回对象字段，非对象或字段缺失时返回 nil。
func (e Event) Get(key string) interface{} {
	m, ok := e.Fields()
	if !ok {
		return nil
	}
	return m[key]
}

// Status 返回 status 字段，非对象、缺失或不是字符串时返回空串。
func (e Event) Status() string {
	s, _ := e.Get("status").(string)
	return s
}

// IsViolation 判断是否为违规事件。
func (e Event) IsViolation() bool {
	return e.Status() == StatusViolation
}

// MarshalJSON 按原始 JSON 值编码。
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Value)
}

// UnmarshalJSON 接受任意 JSON 值。
func (e *Event) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &e.Value)
}

// String 返回事件的 JSON 表示。
func (e Event) String() string {
	data, err := json.Marshal(e.Value)
	if err != nil {
		return ""
	}
	return string(data)
}
