// common/ctxkeys/keys.go
package ctxkeys

type contextKey string

const (
	TraceIDKey   contextKey = "trace_id"
	RequestIDKey contextKey = "request_id"

	// ClientIDKey — идентификатор потребителя (SSE-клиента или watcher'а).
	ClientIDKey contextKey = "client_id"
)
