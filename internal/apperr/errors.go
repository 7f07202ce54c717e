// Package apperr 定义了请求处理链路上的错误分类，以及分类到 HTTP 状态码的映射。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// 错误分类。使用 errors.Is(err, apperr.ErrXxx) 判断。
var (
	ErrConfigurationMissing = errors.New("configuration missing")
	ErrUnsupportedFormat    = errors.New("unsupported format")
	ErrDocumentParse        = errors.New("document parse error")
	ErrExtractionFailed     = errors.New("extraction failed")
	ErrRecordFetch          = errors.New("record fetch error")
	ErrChatBackend          = errors.New("chat backend error")
	ErrInvalidInput         = errors.New("invalid input")
)

// Error 携带错误分类、发生位置以及底层错误。
type Error struct {
	Kind error
	Op   string
	Err  error
}

// New 创建一个带分类的错误。
func New(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf 使用格式化消息创建一个带分类的错误。
func Newf(kind error, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap 同时暴露分类与底层错误，使 errors.Is 对两者都生效。
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// HTTPStatus 将错误分类映射为 HTTP 状态码：400 客户端输入，415 不支持的媒体类型，其余为 500。
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

// Message 返回面向客户端的错误描述，不包含内部调用位置。
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Err != nil {
		return e.Err.Error()
	}
	return err.Error()
}
