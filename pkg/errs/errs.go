// Package errs 定义了摄入与检索流程共用的错误分类。
package errs

import (
	"errors"
	"fmt"
)

// Kind 标识错误所属的类别。
type Kind string

const (
	KindUnsupportedFormat   Kind = "unsupported_format"
	KindExtraction          Kind = "extraction_error"
	KindChunking            Kind = "chunking_error"
	KindEmbedding           Kind = "embedding_service_error"
	KindSummarization       Kind = "summarization_error"
	KindClassification      Kind = "classification_error"
	KindConcurrencyConflict Kind = "concurrency_conflict"
	KindIndexCorruption     Kind = "index_corruption"
	KindGeneration          Kind = "generation_error"
	KindPrecondition        Kind = "precondition_failed"
	KindNotFound            Kind = "not_found"
	KindInvalidInput        Kind = "invalid_input"
	KindForbidden           Kind = "forbidden"
)

// 与 errors.Is 配合使用的哨兵值，只比较 Kind。
var (
	ErrUnsupportedFormat   = &Error{Kind: KindUnsupportedFormat}
	ErrExtraction          = &Error{Kind: KindExtraction}
	ErrChunking            = &Error{Kind: KindChunking}
	ErrEmbedding           = &Error{Kind: KindEmbedding}
	ErrSummarization       = &Error{Kind: KindSummarization}
	ErrClassification      = &Error{Kind: KindClassification}
	ErrConcurrencyConflict = &Error{Kind: KindConcurrencyConflict}
	ErrIndexCorruption     = &Error{Kind: KindIndexCorruption}
	ErrGeneration          = &Error{Kind: KindGeneration}
	ErrPrecondition        = &Error{Kind: KindPrecondition}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrInvalidInput        = &Error{Kind: KindInvalidInput}
	ErrForbidden           = &Error{Kind: KindForbidden}
)

// Error 是带分类信息的错误。
// Op 记录出错的操作名，Transient 表示调用方可以重试。
type Error struct {
	Kind      Kind
	Op        string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Transient {
		msg += " (transient)"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, errs.ErrXxx) 按类别匹配。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Err != nil || t.Op != "" {
		return false
	}
	return t.Kind == e.Kind
}

// New 创建一个永久性错误。
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf 使用格式化消息创建一个永久性错误。
func Newf(kind Kind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Transient 创建一个可重试的错误。
func Transient(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Transient: true, Err: err}
}

// KindOf 返回错误链中第一个 *Error 的类别，没有则返回空字符串。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsTransient 判断错误链中是否存在被标记为可重试的 *Error。
func IsTransient(err error) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Transient {
			return true
		}
		err = e.Err
	}
	return false
}

// Message 返回适合写入 last_error 或返回给客户端的可读描述。
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Err != nil {
		if e.Op != "" {
			return e.Op + ": " + e.Err.Error()
		}
		return e.Err.Error()
	}
	return err.Error()
}
