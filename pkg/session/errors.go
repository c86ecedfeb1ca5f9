package session

import "github.com/cockroachdb/errors"

var (
	// ErrMalformedEvent 消息不是 JSON 对象。
	ErrMalformedEvent = errors.New("session: malformed event payload")
)
