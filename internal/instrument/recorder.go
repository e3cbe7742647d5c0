// Package instrument counts invocations of named operations and keeps an
// ordered history of their inputs and outputs in a cache.KeyStore.
//
// For an operation named op the store holds:
//
//	op          call counter (calls entered)
//	op:inputs   list of argument representations
//	op:outputs  list of result representations
package instrument

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/leonardcser/webcache-mcp/internal/cache"
	"github.com/leonardcser/webcache-mcp/internal/logger"
	"github.com/leonardcser/webcache-mcp/internal/metrics"
)

func CounterKey(op string) string { return op }
func InputsKey(op string) string  { return op + ":inputs" }
func OutputsKey(op string) string { return op + ":outputs" }

// Recorder attaches counting and history to operations. It holds no state of
// its own beyond the store, so one Recorder can serve any number of
// operations and goroutines.
type Recorder struct {
	store   cache.KeyStore
	maxLen  int
	metrics *metrics.Metrics
}

type Option func(*Recorder)

// WithMaxRecordLen bounds stored representations to n bytes, including the
// "..." marking a truncated one. n <= 0 keeps them whole.
func WithMaxRecordLen(n int) Option {
	return func(r *Recorder) { r.maxLen = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

func NewRecorder(store cache.KeyStore, opts ...Option) *Recorder {
	r := &Recorder{store: store}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Recorder) Store() cache.KeyStore { return r.store }

const ellipsis = "..."

// errPanicked is logged as the output of a call whose body panicked.
var errPanicked = errors.New("panic")

// Call runs fn as one invocation of op. The counter is incremented and the
// inputs are logged before fn runs; the output (or error) is logged after.
// If the store fails before fn runs, fn is not invoked. If it fails after,
// fn's result is returned together with the store error.
//
// Once the inputs are logged an output is always logged too, even when ctx
// is cancelled during fn or fn panics, so the two logs stay index-aligned.
func (r *Recorder) Call(ctx context.Context, op string, args []any, fn func(context.Context) (any, error)) (any, error) {
	if _, err := r.store.Incr(ctx, CounterKey(op)); err != nil {
		return nil, fmt.Errorf("instrument %s: count: %w", op, err)
	}
	if err := r.store.Append(ctx, InputsKey(op), r.clip(FormatArgs(args...))); err != nil {
		return nil, fmt.Errorf("instrument %s: log inputs: %w", op, err)
	}

	logCtx := context.WithoutCancel(ctx)
	returned := false
	defer func() {
		if returned {
			return
		}
		r.metrics.Call(op, errPanicked)
		if err := r.store.Append(logCtx, OutputsKey(op), r.clip(FormatError(errPanicked))); err != nil {
			logger.Warnf("instrument %s: log output after panic: %v", op, err)
		}
	}()

	out, callErr := fn(ctx)
	returned = true
	r.metrics.Call(op, callErr)

	rec := FormatOutput(out)
	if callErr != nil {
		rec = FormatError(callErr)
	}
	if err := r.store.Append(logCtx, OutputsKey(op), r.clip(rec)); err != nil {
		return out, errors.Join(callErr, fmt.Errorf("instrument %s: log output: %w", op, err))
	}
	return out, callErr
}

// Count returns the number of calls entered for op.
func (r *Recorder) Count(ctx context.Context, op string) (int64, error) {
	n, err := cache.GetInt(ctx, r.store, CounterKey(op))
	if errors.Is(err, cache.ErrNotFound) {
		return 0, nil
	}
	return n, err
}

// Reset clears op's counter and both logs.
func (r *Recorder) Reset(ctx context.Context, op string) error {
	for _, k := range []string{CounterKey(op), InputsKey(op), OutputsKey(op)} {
		if err := r.store.Delete(ctx, k); err != nil {
			return fmt.Errorf("instrument %s: reset: %w", op, err)
		}
	}
	return nil
}

// clip bounds a representation and keeps it valid UTF-8 so Replay can decode it.
func (r *Recorder) clip(s string) []byte {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if r.maxLen > 0 && len(s) > r.maxLen {
		n := max(r.maxLen-len(ellipsis), 0)
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		s = s[:n] + ellipsis
	}
	return []byte(s)
}

// Wrap returns fn instrumented as op. The returned function has fn's
// signature.
func Wrap[A, R any](r *Recorder, op string, fn func(context.Context, A) (R, error)) func(context.Context, A) (R, error) {
	return func(ctx context.Context, a A) (R, error) {
		out, err := r.Call(ctx, op, []any{a}, func(ctx context.Context) (any, error) {
			return fn(ctx, a)
		})
		v, _ := out.(R)
		return v, err
	}
}

// Wrap2 is Wrap for two-argument operations.
func Wrap2[A, B, R any](r *Recorder, op string, fn func(context.Context, A, B) (R, error)) func(context.Context, A, B) (R, error) {
	return func(ctx context.Context, a A, b B) (R, error) {
		out, err := r.Call(ctx, op, []any{a, b}, func(ctx context.Context) (any, error) {
			return fn(ctx, a, b)
		})
		v, _ := out.(R)
		return v, err
	}
}
