// Package failure 信息流引擎各层共用的失败原因。
//
// 下层返回能确定的最具体原因；上层要么原样透传（调用方能据此处理），要么用 Narrow 收敛为 ErrUnknown。
package failure

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedParameters 参数（游标、limit、id）被协作方拒绝
	ErrMalformedParameters = errors.New("malformed parameters")
	// ErrNotFound 严格查找时实体不存在
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists 重复创建关系边
	ErrAlreadyExists = errors.New("already exists")
	// ErrViewerDoesNotExist 开启 viewer 校验且 viewer 不存在
	ErrViewerDoesNotExist = errors.New("viewer does not exist")
	// ErrUnknown 兜底：协作方故障、序列化故障或意外的空值
	ErrUnknown = errors.New("unknown")
)

var reasons = []error{
	ErrMalformedParameters,
	ErrNotFound,
	ErrAlreadyExists,
	ErrViewerDoesNotExist,
	ErrUnknown,
}

// Narrow err 命中 keep 之一时原样返回，否则收敛为 ErrUnknown。
// 收敛后保留原始文本供日志使用，但不保留错误链：之后 errors.Is 只能匹配 ErrUnknown。
func Narrow(err error, keep ...error) error {
	if err == nil {
		return nil
	}
	for _, k := range keep {
		if errors.Is(err, k) {
			return err
		}
	}
	if errors.Is(err, ErrUnknown) {
		return err
	}
	return fmt.Errorf("%w: %s", ErrUnknown, err.Error())
}

// Reason 返回 err 携带的失败原因，没有时为 ErrUnknown
func Reason(err error) error {
	if err == nil {
		return nil
	}
	for _, r := range reasons {
		if errors.Is(err, r) {
			return r
		}
	}
	return ErrUnknown
}
