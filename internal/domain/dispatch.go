package domain

import (
	"context"
	"errors"
	"fmt"

	"k8s.io/klog/v2"
)

// WithRetry 为单次调用加上重试预算。预算是递减计数，只对普通错误生效；
// 通道中断、契约错误和 ctx 取消直接返回。零长度响应按通道中断处理。
func WithRetry(dispatch DispatchFunc, retries int) DispatchFunc {
	return func(ctx context.Context, env *Envelope) (string, error) {
		budget := retries
		for {
			resp, err := dispatch(ctx, env)
			if err == nil {
				if resp == "" {
					return "", &ChannelInterruption{}
				}
				return resp, nil
			}
			if ctx.Err() != nil || !retryable(err) {
				return "", err
			}
			if budget <= 0 {
				return "", fmt.Errorf("%w: %w", ErrDispatchExhausted, err)
			}
			budget--
			klog.Warningf("[dispatch] 调用失败，剩余重试 %d 次: goal=%s, err=%v", budget, env.Goal, err)
		}
	}
}

func retryable(err error) bool {
	return !errors.Is(err, ErrChannelInterrupted) &&
		!errors.Is(err, ErrSequencing) &&
		!errors.Is(err, ErrUnsupportedGoal) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
