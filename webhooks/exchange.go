package webhooks

import (
	"context"
	"net/http"

	"github.com/goliatone/go-smshook/core"
	"github.com/goliatone/go-smshook/reassembly"
)

const (
	BodyMethodNotAllowed       = "Method not allowed."
	BodyUnsupportedContentType = "Unsupported request content-type."
	BodyInvalidJSON            = "Invalid JSON payload provided."
	BodyTooLarge               = "Request body too large."
	BodyInvalidSignature       = "Invalid signature."
	BodyPartAlreadyStored      = "Partial message already stored."
	BodyPartReceived           = "Partial message received."
	BodyAlreadyDelivered       = "Message already delivered."
	BodyMessageReceived        = "Message received."
	BodyInternalError          = "Internal server error."
)

// Exchange is the state carried between stages for one request. Each stage
// fills in the fields the next one reads.
type Exchange struct {
	Request *http.Request
	Body    []byte
	Payload core.Payload
	Message core.InboundMessage
	Result  reassembly.Result
}

// Response is a terminal answer produced by a stage.
type Response struct {
	Status  int
	Body    string
	Headers map[string]string
	// Outcome labels the response in logs and metrics.
	Outcome string
}

func (r *Response) Write(w http.ResponseWriter) {
	if r == nil {
		return
	}
	for key, value := range r.Headers {
		w.Header().Set(key, value)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(r.Body))
}

func textResponse(status int, body string, outcome string) *Response {
	return &Response{Status: status, Body: body, Outcome: outcome}
}

type messageContextKey struct{}

func WithMessage(ctx context.Context, msg core.InboundMessage) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, messageContextKey{}, msg)
}

// MessageFromContext returns the complete message attached by Middleware.
func MessageFromContext(ctx context.Context) (core.InboundMessage, bool) {
	if ctx == nil {
		return core.InboundMessage{}, false
	}
	msg, ok := ctx.Value(messageContextKey{}).(core.InboundMessage)
	return msg, ok
}
