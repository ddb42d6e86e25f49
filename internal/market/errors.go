package market

import (
	"context"
	"errors"
	"fmt"
	"net"

	"tradelab/internal/pkg/retry"
)

// Kind 是数据源错误的分类，决定是否重试以及如何影响熔断器。
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindRateLimit
	KindAuth
	KindInvalidSymbol
	KindEmptyData
	KindValidation
	KindCircuitOpen
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindRateLimit:
		return "rate_limit"
	case KindAuth:
		return "authentication"
	case KindInvalidSymbol:
		return "invalid_symbol"
	case KindEmptyData:
		return "empty_data"
	case KindValidation:
		return "validation"
	case KindCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Retryable 仅网络与限流错误值得重试。
func (k Kind) Retryable() bool {
	return k == KindNetwork || k == KindRateLimit
}

// ErrNoData 表示所有数据源都已尝试且没有可用结果。
var ErrNoData = errors.New("no data available from any provider")

// ProviderError 携带出错数据源的名字与分类。
type ProviderError struct {
	Provider string
	Kind     Kind
	Message  string
	Err      error
}

func NewError(provider string, kind Kind, format string, args ...any) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError 包装底层错误，保留 errors.Is/As 链。
func WrapError(provider string, kind Kind, err error, format string, args ...any) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Provider, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Retryable() bool { return e.Kind.Retryable() }

// KindOf 返回错误链中第一个 ProviderError 的分类。
func KindOf(err error) Kind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// IsRetryable 作为 retry.Classifier 使用。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if retry.IsTimeout(err) {
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// categorize 把任意错误归一为带数据源名字的 ProviderError。
func categorize(provider string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.Provider == "" {
			cp := *pe
			cp.Provider = provider
			return &cp
		}
		return pe
	}
	if retry.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return WrapError(provider, KindNetwork, err, "request timed out")
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return WrapError(provider, KindNetwork, err, "network failure")
	}
	return WrapError(provider, KindUnknown, err, "unclassified failure")
}
