// Package errorx 带业务错误码的错误类型
// 引擎返回的错误都可以用 GetCode 取码，Handler 层据此组装响应
package errorx

import (
	"errors"
	"fmt"
)

// 业务状态码
const (
	CodeSuccess         = 1000 // 成功
	CodeInvalidParam    = 1001 // 请求参数错误
	CodeUserNotExist    = 1003 // 用户不存在
	CodeServerBusy      = 1005 // 服务繁忙
	CodeNotFound        = 1008 // 资源不存在
	CodeStoreError      = 1010 // 存储层错误
	CodeInvalidState    = 1020 // 状态已失效（如申请已被撤回）
	CodePartialMutation = 1021 // 双端写入只成功了一侧
	CodeCollision       = 1022 // 随机 ID 冲突，仅内部重试使用
)

// 预定义错误，可直接返回，也可用于 errors.Is
var (
	ErrInvalidParam = New(CodeInvalidParam, "请求参数错误")
	ErrServerBusy   = New(CodeServerBusy, "服务繁忙")
	ErrNotFound     = New(CodeNotFound, "记录不存在")
	ErrInvalidState = New(CodeInvalidState, "状态已失效")
)

// CodeError 业务错误，可包装底层错误
type CodeError struct {
	Code  int
	Msg   string
	cause error
}

func (e *CodeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.cause)
	}
	return e.Msg
}

func (e *CodeError) Unwrap() error {
	return e.cause
}

// Is 只和不带 cause 的同码错误相等，即预定义错误
func (e *CodeError) Is(target error) bool {
	var t *CodeError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.cause == nil
}

func New(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func Newf(code int, format string, args ...any) *CodeError {
	return &CodeError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap 用法: errorx.Wrap(err, CodeStoreError, "写入文档失败")
func Wrap(err error, code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg, cause: err}
}

// Wrapf 用法: errorx.Wrapf(err, CodeUserNotExist, "用户 %s 不存在", id)
func Wrapf(err error, code int, format string, args ...any) *CodeError {
	return &CodeError{Code: code, Msg: fmt.Sprintf(format, args...), cause: err}
}

// GetCode 取最外层 CodeError 的码，非 CodeError 视为服务繁忙
func GetCode(err error) int {
	var codeErr *CodeError
	if errors.As(err, &codeErr) {
		return codeErr.Code
	}
	return CodeServerBusy
}

// HasCode err 链上最外层 CodeError 的码是否为 code 之一
func HasCode(err error, codes ...int) bool {
	var codeErr *CodeError
	if !errors.As(err, &codeErr) {
		return false
	}
	for _, c := range codes {
		if codeErr.Code == c {
			return true
		}
	}
	return false
}

// IsNotFound 文档或用户不存在
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound, CodeUserNotExist)
}

// IsInvalidState 操作对象已失效
func IsInvalidState(err error) bool {
	return HasCode(err, CodeInvalidState)
}

// IsPartialMutation 双端写入部分失败
func IsPartialMutation(err error) bool {
	return HasCode(err, CodePartialMutation)
}
