package kafka

import (
	"context"
	"errors"

	"github.com/segmentio/kafka-go"
)

// ErrNonRetryable marks a handler error that retrying cannot fix, such as a
// malformed payload. Wrap it to send the message straight to the DLQ.
var ErrNonRetryable = errors.New("non-retryable")

// ConsumerHook defines lifecycle hooks around message handling.
// Returning an error from BeforeHandle skips the handler and sends the
// message through error processing.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, topic string, km kafka.Message) (context.Context, []byte, error)
	AfterHandle(ctx context.Context, topic string, km kafka.Message, err error)
	OnError(ctx context.Context, topic string, km kafka.Message, err error)
}

// NoopHook passes the message value through unchanged.
type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, _ string, km kafka.Message) (context.Context, []byte, error) {
	return ctx, km.Value, nil
}

func (NoopHook) AfterHandle(context.Context, string, kafka.Message, error) {}

func (NoopHook) OnError(context.Context, string, kafka.Message, error) {}

// HookFuncs adapts plain functions to ConsumerHook. Nil functions are no-ops.
type HookFuncs struct {
	Before func(context.Context, string, kafka.Message) (context.Context, []byte, error)
	After  func(context.Context, string, kafka.Message, error)
	Err    func(context.Context, string, kafka.Message, error)
}

func (h HookFuncs) BeforeHandle(ctx context.Context, topic string, km kafka.Message) (context.Context, []byte, error) {
	if h.Before == nil {
		return ctx, km.Value, nil
	}
	return h.Before(ctx, topic, km)
}

func (h HookFuncs) AfterHandle(ctx context.Context, topic string, km kafka.Message, err error) {
	if h.After != nil {
		h.After(ctx, topic, km, err)
	}
}

func (h HookFuncs) OnError(ctx context.Context, topic string, km kafka.Message, err error) {
	if h.Err != nil {
		h.Err(ctx, topic, km, err)
	}
}

type ctxKey string

const ctxKeyMessageKey ctxKey = "kafka_message_key"

// WithMessageKey stores the Kafka message key in ctx.
func WithMessageKey(ctx context.Context, key []byte) context.Context {
	if len(key) == 0 {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyMessageKey, string(key))
}

// MessageKey returns the key stored by WithMessageKey.
func MessageKey(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyMessageKey).(string)
	return v, ok
}

// KeyHook puts each message key into the handler context.
func KeyHook() ConsumerHook {
	return HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message) (context.Context, []byte, error) {
			return WithMessageKey(ctx, km.Key), km.Value, nil
		},
	}
}
