package model

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidState API误用，例如在Finalize之后继续Ingest
	ErrInvalidState = errors.New("invalid state")
	// ErrRunDeadline 任务在整体截止时间到达时仍未完成
	ErrRunDeadline = errors.New("运行截止时间已到")
	// ErrRateLimited 摘要服务返回限流
	ErrRateLimited = errors.New("摘要服务限流")
	// ErrAllDeliveriesFailed 所有交付目标都失败
	ErrAllDeliveriesFailed = errors.New("所有交付目标均失败")
)

// TransientError 可重试的错误（网络超时、限流等）
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("临时错误: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError 不可重试的错误（目标格式错误、认证失败等）
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("永久错误: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Transient 将错误包装为临时错误
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Permanent 将错误包装为永久错误
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsTransient 判断错误是否可重试。
// 未分类的错误按永久错误处理，超时和取消按临时错误处理。
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return false
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var svc *ServiceError
	if errors.As(err, &svc) {
		return svc.Retryable()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// ServiceError 摘要服务返回的错误
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("摘要服务错误(状态码:%d): %s", e.StatusCode, e.Message)
}

// Retryable 5xx视为可重试
func (e *ServiceError) Retryable() bool {
	return e.StatusCode >= 500
}

// DeliveryError 单个交付目标的错误
type DeliveryError struct {
	Destination string
	Err         error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("交付到%s失败: %v", e.Destination, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
