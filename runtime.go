package smshook

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	smscommand "github.com/goliatone/go-smshook/command"
	"github.com/goliatone/go-smshook/core"
	"github.com/goliatone/go-smshook/provider/nexmo"
	smsquery "github.com/goliatone/go-smshook/query"
	"github.com/goliatone/go-smshook/reassembly"
	"github.com/goliatone/go-smshook/webhooks"
)

type Commands struct {
	Purge *smscommand.PurgeCommand
}

type Queries struct {
	PendingGroups *smsquery.PendingGroupsQuery
}

// Runtime wires the resolved service into the webhook pipeline, the
// reassembly engine and its maintenance commands.
type Runtime struct {
	service  *core.Service
	engine   *reassembly.Engine
	janitor  *reassembly.Janitor
	webhook  *webhooks.Handler
	client   *nexmo.Client
	commands Commands
	queries  Queries
}

type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	verifier   webhooks.Verifier
	httpClient *http.Client
}

// WithVerifier replaces the provider signature check.
func WithVerifier(verifier webhooks.Verifier) RuntimeOption {
	return func(o *runtimeOptions) {
		o.verifier = verifier
	}
}

// WithHTTPClient sets the client used for provider API calls.
func WithHTTPClient(client *http.Client) RuntimeOption {
	return func(o *runtimeOptions) {
		o.httpClient = client
	}
}

func NewRuntime(service *core.Service, opts ...RuntimeOption) (*Runtime, error) {
	if service == nil {
		return nil, fmt.Errorf("smshook: service is required")
	}
	options := runtimeOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	cfg := service.Config()

	engine := reassembly.NewEngine(service.PartStore(), service.DeliveryLedger(), service.Observer("reassembly"))
	engine.DeliveredTTL = cfg.Reassembly.DeliveredTTLDuration()

	var maintainer core.PartMaintainer
	if typed, ok := service.PartStore().(core.PartMaintainer); ok {
		maintainer = typed
	}
	janitor := reassembly.NewJanitor(maintainer, service.DeliveryLedger(), cfg.Reassembly.StaleAfterDuration(), service.Observer("janitor"))

	verifier := options.verifier
	if verifier == nil && cfg.Signature.Enabled() {
		nexmoVerifier, err := nexmo.NewSignatureVerifier(cfg.Signature.Secret, cfg.Signature.Method)
		if err != nil {
			return nil, service.MapError(err)
		}
		verifier = nexmoVerifier
	}

	handler, err := webhooks.New(webhooks.Config{
		Parser:        service.Parser(),
		Engine:        engine,
		Verifier:      verifier,
		SkipSignature: !cfg.Signature.Enabled(),
		MaxBodyBytes:  cfg.HTTP.MaxBodyBytes,
		Observer:      service.Observer("webhooks"),
		ErrorMapper:   service.MapError,
	})
	if err != nil {
		return nil, err
	}

	runtime := &Runtime{
		service:  service,
		engine:   engine,
		janitor:  janitor,
		webhook:  handler,
		commands: Commands{Purge: smscommand.NewPurgeCommand(janitor)},
		queries:  Queries{PendingGroups: smsquery.NewPendingGroupsQuery(janitor)},
	}
	if strings.TrimSpace(cfg.Provider.APIKey) != "" {
		httpClient := options.httpClient
		if httpClient == nil {
			httpClient = http.DefaultClient
		}
		runtime.client = nexmo.NewClient(cfg.Provider, httpClient, service.Observer("nexmo"))
	}
	return runtime, nil
}

// Setup resolves the service and the runtime in one call.
func Setup(cfg Config, opts ...Option) (*Runtime, error) {
	service, err := core.NewService(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return NewRuntime(service)
}

func (r *Runtime) Service() *core.Service { return r.service }

func (r *Runtime) Engine() *reassembly.Engine { return r.engine }

func (r *Runtime) Janitor() *reassembly.Janitor { return r.janitor }

func (r *Runtime) Webhook() *webhooks.Handler { return r.webhook }

func (r *Runtime) Commands() Commands { return r.commands }

func (r *Runtime) Queries() Queries { return r.queries }

// HTTPHandler serves the inbound webhook and hands each logical message to
// handler exactly once.
func (r *Runtime) HTTPHandler(handler core.MessageHandler) http.Handler {
	return r.webhook.Handle(handler)
}

// Reply sends text back to the sender of msg. It needs provider credentials.
func (r *Runtime) Reply(ctx context.Context, msg core.InboundMessage, text string) (nexmo.SendResult, error) {
	if r == nil || r.client == nil {
		return nexmo.SendResult{}, core.NewError(
			"smshook: provider credentials are not configured",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			core.SMSErrorProviderFailure,
			nil,
		)
	}
	return r.client.Reply(ctx, msg, text)
}
