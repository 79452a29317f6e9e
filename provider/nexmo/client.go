package nexmo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-smshook/core"
	"github.com/goliatone/go-smshook/transport"
)

const (
	DefaultBaseURL = "https://rest.nexmo.com"
	sendPath       = "/sms/json"
	statusOK       = "0"
)

type OutboundMessage struct {
	To   string
	From string
	Text string
	// Type is text or unicode. Empty means text.
	Type string
}

type SentMessage struct {
	To               string `json:"to"`
	MessageID        string `json:"message-id"`
	Status           string `json:"status"`
	ErrorText        string `json:"error-text"`
	RemainingBalance string `json:"remaining-balance"`
	MessagePrice     string `json:"message-price"`
	Network          string `json:"network"`
}

type SendResult struct {
	MessageCount string        `json:"message-count"`
	Messages     []SentMessage `json:"messages"`
}

type sendRequest struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	From      string `json:"from"`
	To        string `json:"to"`
	Text      string `json:"text"`
	Type      string `json:"type,omitempty"`
}

type Client struct {
	APIKey    string
	APISecret string
	BaseURL   string
	Timeout   time.Duration
	Transport *transport.RESTAdapter
	Observer  core.Observer
}

func NewClient(cfg core.ProviderConfig, doer transport.HTTPDoer, observer core.Observer) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		APIKey:    strings.TrimSpace(cfg.APIKey),
		APISecret: strings.TrimSpace(cfg.APISecret),
		BaseURL:   baseURL,
		Timeout:   10 * time.Second,
		Transport: transport.NewJSONAdapter(doer),
		Observer:  observer,
	}
}

// SendMessage posts one SMS. Any per-message status other than "0" is
// reported as a provider failure.
func (c *Client) SendMessage(ctx context.Context, msg OutboundMessage) (result SendResult, err error) {
	startedAt := time.Now()
	defer func() {
		if c != nil {
			c.Observer.Observe(ctx, startedAt, "nexmo.send_message", "", err, map[string]any{"to": msg.To})
		}
	}()
	if c == nil || c.Transport == nil {
		return SendResult{}, providerError("nexmo: client is not configured", goerrors.CategoryInternal, http.StatusInternalServerError, nil)
	}
	if c.APIKey == "" || c.APISecret == "" {
		return SendResult{}, providerError("nexmo: api key and secret are required", goerrors.CategoryInternal, http.StatusInternalServerError, nil)
	}
	msg.To = strings.TrimSpace(msg.To)
	msg.From = strings.TrimSpace(msg.From)
	if msg.To == "" || msg.From == "" {
		return SendResult{}, providerError("nexmo: to and from are required", goerrors.CategoryBadInput, http.StatusBadRequest, nil)
	}
	msgType := strings.TrimSpace(strings.ToLower(msg.Type))
	switch msgType {
	case "":
		msgType = string(core.KindText)
	case string(core.KindText), string(core.KindUnicode):
	default:
		return SendResult{}, providerError(
			fmt.Sprintf("nexmo: unsupported outbound type %q", msg.Type),
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			nil,
		)
	}

	body, err := json.Marshal(sendRequest{
		APIKey:    c.APIKey,
		APISecret: c.APISecret,
		From:      msg.From,
		To:        msg.To,
		Text:      msg.Text,
		Type:      msgType,
	})
	if err != nil {
		return SendResult{}, core.WrapError(err, goerrors.CategoryInternal, "nexmo: encode send request", http.StatusInternalServerError, core.SMSErrorInternal, nil)
	}

	res, err := c.Transport.Do(ctx, transport.Request{
		Method:  http.MethodPost,
		URL:     c.BaseURL + sendPath,
		Body:    body,
		Timeout: c.Timeout,
	})
	if err != nil {
		return SendResult{}, err
	}
	if !res.OK() {
		return SendResult{}, providerError(
			fmt.Sprintf("nexmo: send message returned status %d", res.StatusCode),
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			map[string]any{"status_code": res.StatusCode},
		)
	}
	if err := res.DecodeJSON(&result); err != nil {
		return SendResult{}, err
	}
	for _, sent := range result.Messages {
		if sent.Status != statusOK {
			return result, providerError(
				fmt.Sprintf("nexmo: message rejected: %s", strings.TrimSpace(sent.ErrorText)),
				goerrors.CategoryExternal,
				http.StatusBadGateway,
				map[string]any{"provider_status": sent.Status, "to": sent.To},
			)
		}
	}
	return result, nil
}

// Reply answers the sender of msg: the reply goes to the message sender and
// comes from the number it was sent to.
func (c *Client) Reply(ctx context.Context, msg core.InboundMessage, text string) (SendResult, error) {
	replyType := string(core.KindText)
	if msg.Kind == core.KindUnicode {
		replyType = string(core.KindUnicode)
	}
	return c.SendMessage(ctx, OutboundMessage{
		To:   msg.Sender,
		From: msg.Recipient,
		Text: text,
		Type: replyType,
	})
}

func providerError(message string, category goerrors.Category, code int, metadata map[string]any) error {
	textCode := core.SMSErrorProviderFailure
	switch category {
	case goerrors.CategoryBadInput:
		textCode = core.SMSErrorBadInput
	case goerrors.CategoryInternal:
		textCode = core.SMSErrorInternal
	}
	return core.NewError(message, category, code, textCode, metadata)
}
