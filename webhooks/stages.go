package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-smshook/core"
	"github.com/goliatone/go-smshook/reassembly"
)

// Stage is one step of the request pipeline. Returning a non-nil Response
// or error stops the pipeline.
type Stage interface {
	Name() string
	Apply(ctx context.Context, ex *Exchange) (*Response, error)
}

type Verifier interface {
	Verify(ctx context.Context, payload core.Payload) error
}

type VerifierFunc func(ctx context.Context, payload core.Payload) error

func (f VerifierFunc) Verify(ctx context.Context, payload core.Payload) error {
	return f(ctx, payload)
}

type stageFunc struct {
	name string
	fn   func(ctx context.Context, ex *Exchange) (*Response, error)
}

func NewStage(name string, fn func(ctx context.Context, ex *Exchange) (*Response, error)) Stage {
	return stageFunc{name: strings.TrimSpace(name), fn: fn}
}

func (s stageFunc) Name() string { return s.name }

func (s stageFunc) Apply(ctx context.Context, ex *Exchange) (*Response, error) {
	if s.fn == nil {
		return nil, nil
	}
	return s.fn(ctx, ex)
}

func RequirePOST() Stage {
	return NewStage("require_post", func(_ context.Context, ex *Exchange) (*Response, error) {
		if ex.Request.Method == http.MethodPost {
			return nil, nil
		}
		res := textResponse(http.StatusMethodNotAllowed, BodyMethodNotAllowed, "rejected")
		res.Headers = map[string]string{"Allow": http.MethodPost}
		return res, nil
	})
}

func RequireJSON() Stage {
	return NewStage("require_json", func(_ context.Context, ex *Exchange) (*Response, error) {
		mediaType, _, err := mime.ParseMediaType(ex.Request.Header.Get("Content-Type"))
		if err != nil || mediaType != "application/json" {
			return nil, core.BadInputError(BodyUnsupportedContentType, http.StatusUnsupportedMediaType, map[string]any{
				"content_type": ex.Request.Header.Get("Content-Type"),
			})
		}
		return nil, nil
	})
}

// DecodeJSON reads at most maxBytes of body and decodes a single JSON
// object. Numbers are kept as json.Number.
func DecodeJSON(maxBytes int64) Stage {
	return NewStage("decode_json", func(_ context.Context, ex *Exchange) (*Response, error) {
		reader := io.Reader(ex.Request.Body)
		if ex.Request.Body == nil {
			reader = bytes.NewReader(nil)
		}
		if maxBytes > 0 {
			reader = io.LimitReader(reader, maxBytes+1)
		}
		body, err := io.ReadAll(reader)
		if err != nil {
			return nil, core.BadInputError(BodyInvalidJSON, http.StatusBadRequest, map[string]any{"error": err.Error()})
		}
		if maxBytes > 0 && int64(len(body)) > maxBytes {
			return nil, core.BadInputError(BodyTooLarge, http.StatusRequestEntityTooLarge, map[string]any{"limit_bytes": maxBytes})
		}
		ex.Body = body

		decoder := json.NewDecoder(bytes.NewReader(body))
		decoder.UseNumber()
		payload := core.Payload{}
		if err := decoder.Decode(&payload); err != nil {
			return nil, core.BadInputError(BodyInvalidJSON, http.StatusBadRequest, map[string]any{"error": err.Error()})
		}
		if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
			return nil, core.BadInputError(BodyInvalidJSON, http.StatusBadRequest, map[string]any{"error": "trailing data after payload"})
		}
		if payload == nil {
			return nil, core.BadInputError(BodyInvalidJSON, http.StatusBadRequest, map[string]any{"error": "payload must be an object"})
		}
		ex.Payload = payload
		return nil, nil
	})
}

// VerifySignature rejects the request with 403 before anything is parsed or
// stored when the verifier fails.
func VerifySignature(verifier Verifier) Stage {
	return NewStage("verify_signature", func(ctx context.Context, ex *Exchange) (*Response, error) {
		if verifier == nil {
			return nil, core.NewError(
				"webhooks: signature verifier is not configured",
				goerrors.CategoryInternal,
				http.StatusInternalServerError,
				core.SMSErrorInternal,
				nil,
			)
		}
		if err := verifier.Verify(ctx, ex.Payload); err != nil {
			return nil, core.InvalidSignatureError(err)
		}
		return nil, nil
	})
}

func ParseMessage(parser *core.Parser) Stage {
	if parser == nil {
		parser = &core.Parser{}
	}
	return NewStage("parse_message", func(_ context.Context, ex *Exchange) (*Response, error) {
		msg, err := parser.Parse(ex.Payload)
		if err != nil {
			return nil, err
		}
		ex.Message = msg
		return nil, nil
	})
}

// Reassemble answers every outcome except OutcomeComplete, which it leaves
// on the exchange for the application handler.
func Reassemble(engine *reassembly.Engine) Stage {
	return NewStage("reassemble", func(ctx context.Context, ex *Exchange) (*Response, error) {
		result, err := engine.Process(ctx, ex.Message)
		if err != nil {
			return nil, err
		}
		ex.Result = result
		switch result.Outcome {
		case reassembly.OutcomeComplete:
			return nil, nil
		case reassembly.OutcomePartial:
			return textResponse(http.StatusOK, BodyPartReceived, string(result.Outcome)), nil
		case reassembly.OutcomeDuplicate:
			return textResponse(http.StatusOK, BodyPartAlreadyStored, string(result.Outcome)), nil
		case reassembly.OutcomeAlreadyDelivered:
			return textResponse(http.StatusOK, BodyAlreadyDelivered, string(result.Outcome)), nil
		default:
			return nil, fmt.Errorf("webhooks: unknown reassembly outcome %q", result.Outcome)
		}
	})
}
