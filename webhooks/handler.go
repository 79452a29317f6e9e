package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-smshook/core"
	"github.com/goliatone/go-smshook/reassembly"
)

type Config struct {
	Parser   *core.Parser
	Engine   *reassembly.Engine
	Verifier Verifier
	// SkipSignature drops the VerifySignature stage. A nil Verifier is only
	// accepted when this is set.
	SkipSignature bool
	MaxBodyBytes  int64
	Observer      core.Observer
	ErrorMapper   core.ErrorMapper
}

type Handler struct {
	stages      []Stage
	observer    core.Observer
	errorMapper core.ErrorMapper
}

// New assembles the default pipeline.
func New(cfg Config) (*Handler, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("webhooks: reassembly engine is required")
	}
	if cfg.Verifier == nil && !cfg.SkipSignature {
		return nil, fmt.Errorf("webhooks: signature verifier is required unless verification is disabled")
	}
	stages := []Stage{
		RequirePOST(),
		RequireJSON(),
		DecodeJSON(cfg.MaxBodyBytes),
	}
	if !cfg.SkipSignature {
		stages = append(stages, VerifySignature(cfg.Verifier))
	}
	stages = append(stages,
		ParseMessage(cfg.Parser),
		Reassemble(cfg.Engine),
	)
	return NewHandler(stages, cfg.Observer, cfg.ErrorMapper), nil
}

// NewHandler builds a handler from an explicit stage list.
func NewHandler(stages []Stage, observer core.Observer, mapper core.ErrorMapper) *Handler {
	if mapper == nil {
		mapper = core.MapError
	}
	return &Handler{
		stages:      append([]Stage(nil), stages...),
		observer:    observer,
		errorMapper: mapper,
	}
}

func (h *Handler) Stages() []string {
	if h == nil {
		return nil
	}
	names := make([]string, 0, len(h.stages))
	for _, stage := range h.stages {
		names = append(names, stage.Name())
	}
	return names
}

// Run executes the stages for r. A nil Response means the exchange holds a
// complete message for the application.
func (h *Handler) Run(ctx context.Context, r *http.Request) (ex *Exchange, res *Response) {
	startedAt := time.Now()
	ex = &Exchange{Request: r}
	var failure error
	failedStage := ""
	defer func() {
		if h == nil {
			return
		}
		outcome := "delivered"
		if res != nil {
			outcome = res.Outcome
		}
		fields := map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
		}
		if res != nil {
			fields["status"] = res.Status
		}
		if failedStage != "" {
			fields["stage"] = failedStage
		}
		if ex.Message.MessageID != "" {
			fields["message_id"] = ex.Message.MessageID
		}
		h.observer.Observe(ctx, startedAt, "webhook.request", outcome, failure, fields)
	}()

	if h == nil {
		return ex, textResponse(http.StatusInternalServerError, BodyInternalError, "failed")
	}
	for _, stage := range h.stages {
		stageRes, err := stage.Apply(ctx, ex)
		if err != nil {
			failure = err
			failedStage = stage.Name()
			return ex, h.errorResponse(err)
		}
		if stageRes != nil {
			return ex, stageRes
		}
	}
	if !ex.Result.Deliverable() {
		failure = fmt.Errorf("webhooks: pipeline finished without a complete message")
		return ex, textResponse(http.StatusInternalServerError, BodyInternalError, "failed")
	}
	return ex, nil
}

// Middleware runs the pipeline and calls next only for complete messages,
// with the message attached to the request context.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ex, res := h.Run(r.Context(), r)
		if res != nil {
			res.Write(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithMessage(r.Context(), ex.Result.Message)))
	})
}

// Handle wires a message handler behind the pipeline.
func (h *Handler) Handle(handler core.MessageHandler) http.Handler {
	return h.Middleware(Deliver(handler, h.errorMapper))
}

// Deliver adapts a message handler to the request produced by Middleware.
func Deliver(handler core.MessageHandler, mapper core.ErrorMapper) http.Handler {
	if mapper == nil {
		mapper = core.MapError
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		msg, ok := MessageFromContext(r.Context())
		if !ok || handler == nil {
			textResponse(http.StatusInternalServerError, BodyInternalError, "failed").Write(w)
			return
		}
		if err := handler.HandleMessage(r.Context(), msg); err != nil {
			respondError(mapper, applicationError(err)).Write(w)
			return
		}
		textResponse(http.StatusOK, BodyMessageReceived, "delivered").Write(w)
	})
}

// applicationError treats a handler error without a go-errors envelope as an
// internal failure, so its text never picks the status or reaches the body.
func applicationError(err error) error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return err
	}
	return core.WrapError(err, goerrors.CategoryInternal, "message handler failed", http.StatusInternalServerError, core.SMSErrorInternal, nil)
}

func (h *Handler) errorResponse(err error) *Response {
	return respondError(h.errorMapper, err)
}

func respondError(mapper core.ErrorMapper, err error) *Response {
	mapped := mapper(err)
	if mapped == nil {
		mapped = core.MapError(err)
	}
	status := mapped.Code
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	return textResponse(status, publicMessage(mapped, status), "rejected")
}

// publicMessage never exposes internal error detail on 5xx responses.
func publicMessage(err *goerrors.Error, status int) string {
	if status >= http.StatusInternalServerError {
		return BodyInternalError
	}
	if err.Category == goerrors.CategoryValidation {
		fields := []string{}
		for _, fieldErr := range err.AllValidationErrors() {
			fields = append(fields, fieldErr.Field)
		}
		if len(fields) > 0 {
			return "Invalid message payload: " + strings.Join(fields, ", ") + "."
		}
		return "Invalid message payload."
	}
	message := strings.TrimSpace(err.Message)
	if message == "" {
		return http.StatusText(status)
	}
	return message
}
