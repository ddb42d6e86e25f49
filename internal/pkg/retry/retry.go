// Package retry 提供带指数退避与单次超时的通用重试执行器，与具体数据源解耦。
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Classifier 判断一个错误是否值得重试。
type Classifier func(error) bool

// Policy 描述一次调用的重试预算。
type Policy struct {
	MaxRetries     int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration

	// OnAttempt 在每次尝试结束后回调（n 从 1 开始），可为空。
	OnAttempt func(n int, err error)
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     2,
		InitialDelay:   time.Second,
		MaxDelay:       10 * time.Second,
		AttemptTimeout: 30 * time.Second,
	}
}

// Scaled 返回单次超时放大 factor 倍的副本，用于历史数据等批量请求。
func (p Policy) Scaled(factor float64) Policy {
	if factor > 0 {
		p.AttemptTimeout = time.Duration(float64(p.AttemptTimeout) * factor)
	}
	return p
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = def.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = def.AttemptTimeout
	}
	return p
}

// TimeoutError 表示单次尝试超过了 AttemptTimeout，总是可重试。
type TimeoutError struct {
	After time.Duration
	Err   error
}

func (e *TimeoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("attempt timed out after %s: %v", e.After, e.Err)
	}
	return fmt.Sprintf("attempt timed out after %s", e.After)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Do 执行 op，可重试错误按指数退避重试，不可重试错误立即返回。
// 父 context 被取消时直接返回 ctx.Err()，不会把它伪装成数据源错误。
func Do[T any](ctx context.Context, policy Policy, retryable Classifier, op func(context.Context) (T, error)) (T, error) {
	var zero T
	p := policy.normalized()
	delay := p.InitialDelay
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		val, err := runAttempt(ctx, p.AttemptTimeout, op)
		if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
			return zero, ctxErr
		}
		if p.OnAttempt != nil {
			p.OnAttempt(attempt+1, err)
		}
		if err == nil {
			return val, nil
		}
		if !IsTimeout(err) && (retryable == nil || !retryable(err)) {
			return zero, err
		}
		lastErr = err
		if attempt == p.MaxRetries {
			break
		}
		if err := sleepWithContext(ctx, delay); err != nil {
			return zero, err
		}
		delay = min(delay*2, p.MaxDelay)
	}
	return zero, lastErr
}

type attemptResult[T any] struct {
	val T
	err error
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	var zero T
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// 缓冲为 1：超时放弃后 op 迟到的结果不会阻塞 goroutine。
	done := make(chan attemptResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptResult[T]{err: fmt.Errorf("panic in attempt: %v", r)}
			}
		}()
		v, err := op(attemptCtx)
		done <- attemptResult[T]{val: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return zero, &TimeoutError{After: timeout, Err: res.err}
		}
		return res.val, res.err
	case <-attemptCtx.Done():
		// 结果与取消同时就绪时以已完成的结果为准
		select {
		case res := <-done:
			if res.err == nil {
				return res.val, nil
			}
		default:
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, &TimeoutError{After: timeout}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
