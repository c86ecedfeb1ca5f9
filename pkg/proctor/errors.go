package proctor

import "github.com/cockroachdb/errors"

var (
	// ErrConfiguration 配置无效，构造阶段返回。
	ErrConfiguration = errors.New("proctor: invalid configuration")
)

// configError 返回带原始信息且能匹配 ErrConfiguration 的错误。
func configError(msg string) error {
	return errors.Mark(errors.New(msg), ErrConfiguration)
}
