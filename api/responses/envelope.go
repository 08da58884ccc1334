package responses

import "context"

// Envelope wraps every successful payload as {"data": ...}.
type Envelope struct {
	Data any `json:"data"`
}

// ErrorBody is the public shape of a failure.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

type requestIDKey struct{}

// WithRequestID stores the request id echoed in error bodies.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
