package commands

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "botmon/pkg/logx"

	"botmon/internal/transport"
)

type HandlerFunc func(ctx context.Context, cmd *transport.Command) error

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, cmd *transport.Command) error {
			if d <= 0 {
				return next(ctx, cmd)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, cmd)
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, cmd *transport.Command) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, cmd)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, cmd *transport.Command) error {
			start := time.Now()
			err := next(ctx, cmd)
			d := time.Since(start)

			fields := []logx.Field{
				logx.String("cmd", cmd.Name),
				logx.String("invoker", cmd.Invoker.ID),
				logx.Duration("dur", d),
			}
			if err != nil {
				log.Warn("command failed", append(fields, logx.Err(err))...)
			} else if d >= 750*time.Millisecond {
				log.Info("command ok", fields...)
			} else {
				log.Debug("command ok", fields...)
			}
			return err
		}
	}
}
