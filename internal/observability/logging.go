// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"
	"time"
)

// AsyncOperation logs the lifecycle of work that outlives the request that started it,
// such as best-effort media deletion.
type AsyncOperation struct {
	name    string
	started time.Time
	attrs   []any
}

// StartAsyncOperation logs the start of a background operation.
func StartAsyncOperation(ctx context.Context, name string, attrs ...any) *AsyncOperation {
	op := &AsyncOperation{name: name, started: time.Now(), attrs: attrs}
	slog.Default().DebugContext(ctx, "async operation started", op.fields()...)
	return op
}

func (op *AsyncOperation) fields(extra ...any) []any {
	out := make([]any, 0, len(op.attrs)+len(extra)+2)
	out = append(out, slog.String("operation", op.name))
	out = append(out, op.attrs...)
	return append(out, extra...)
}

// Done logs successful completion.
func (op *AsyncOperation) Done(ctx context.Context) {
	slog.Default().InfoContext(ctx, "async operation completed",
		op.fields(slog.Duration("elapsed", time.Since(op.started)))...)
	AsyncOperations.WithLabelValues(op.name, "ok").Inc()
}

// Fail logs a failure. Background failures never reach a client, so they are warnings.
func (op *AsyncOperation) Fail(ctx context.Context, err error) {
	slog.Default().WarnContext(ctx, "async operation failed",
		op.fields(slog.Duration("elapsed", time.Since(op.started)), slog.String("error", err.Error()))...)
	AsyncOperations.WithLabelValues(op.name, "error").Inc()
}

// Detach returns a context that keeps ctx's values (request ID, user ID, span)
// but is not cancelled with it, bounded by timeout.
func Detach(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}
