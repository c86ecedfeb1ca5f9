package web

import "github.com/cockroachdb/errors"

var (
	// ErrServerAlreadyStarted Server 已启动
	ErrServerAlreadyStarted = errors.New("web: server already started")
)

// 业务错误码
const (
	CodeOK            = 0
	CodeInvalidParams = 40001
	CodeNotFound      = 40004
	CodeRateLimited   = 40029
	CodeInternalError = 50000
)
