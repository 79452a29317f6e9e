package core

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// MessageTimestampLayout is the provider format for message-timestamp.
const MessageTimestampLayout = "2006-01-02 15:04:05"

// Payload is a decoded webhook body: wire keys mapped to JSON primitives.
type Payload map[string]any

type messageDraft struct {
	msg     InboundMessage
	text    string
	data    []byte
	udh     []byte
	concat  bool
	ref     string
	index   int
	total   int
	present map[string]bool
	// rejected holds keys that were sent but failed to parse.
	rejected map[string]bool
}

type fieldSpec struct {
	key      string
	required bool
	apply    func(p *Parser, d *messageDraft, value any) error
}

// inboundFields is the complete wire schema. Keys not listed here are ignored.
var inboundFields = []fieldSpec{
	{key: "messageId", required: true, apply: func(_ *Parser, d *messageDraft, value any) error {
		return assignString(value, &d.msg.MessageID)
	}},
	{key: "msisdn", required: true, apply: func(_ *Parser, d *messageDraft, value any) error {
		return assignString(value, &d.msg.Sender)
	}},
	{key: "to", required: true, apply: func(_ *Parser, d *messageDraft, value any) error {
		return assignString(value, &d.msg.Recipient)
	}},
	{key: "type", required: true, apply: func(_ *Parser, d *messageDraft, value any) error {
		raw, err := stringValue(value)
		if err != nil {
			return err
		}
		kind, err := ParseContentKind(raw)
		if err != nil {
			return fmt.Errorf("must be one of text, unicode or binary")
		}
		d.msg.Kind = kind
		return nil
	}},
	{key: "message-timestamp", required: true, apply: func(p *Parser, d *messageDraft, value any) error {
		raw, err := stringValue(value)
		if err != nil {
			return err
		}
		parsed, err := time.ParseInLocation(MessageTimestampLayout, strings.TrimSpace(raw), p.location())
		if err != nil {
			return fmt.Errorf("must match %q", "YYYY-MM-DD HH:MM:SS")
		}
		d.msg.ProviderTimestamp = parsed.UTC()
		return nil
	}},
	{key: "timestamp", required: true, apply: func(_ *Parser, d *messageDraft, value any) error {
		seconds, err := int64Value(value)
		if err != nil {
			return fmt.Errorf("must be unix epoch seconds")
		}
		d.msg.ReceivedTimestamp = time.Unix(seconds, 0).UTC()
		return nil
	}},
	{key: "keyword", apply: func(_ *Parser, d *messageDraft, value any) error {
		return assignString(value, &d.msg.Keyword)
	}},
	{key: "text", apply: func(_ *Parser, d *messageDraft, value any) error {
		return assignString(value, &d.text)
	}},
	{key: "data", apply: func(_ *Parser, d *messageDraft, value any) error {
		return assignHex(value, &d.data)
	}},
	{key: "udh", apply: func(_ *Parser, d *messageDraft, value any) error {
		return assignHex(value, &d.udh)
	}},
	{key: "concat", apply: func(_ *Parser, d *messageDraft, value any) error {
		raw, ok := value.(string)
		d.concat = ok && raw == "true"
		return nil
	}},
	{key: "concat-ref", apply: func(_ *Parser, d *messageDraft, value any) error {
		return assignString(value, &d.ref)
	}},
	{key: "concat-part", apply: func(_ *Parser, d *messageDraft, value any) error {
		return assignInt(value, &d.index)
	}},
	{key: "concat-total", apply: func(_ *Parser, d *messageDraft, value any) error {
		return assignInt(value, &d.total)
	}},
}

type Parser struct {
	// Location is the reference zone of message-timestamp values.
	Location *time.Location
}

func NewParser(cfg ParserConfig) (*Parser, error) {
	zone := strings.TrimSpace(cfg.MessageTimestampZone)
	if zone == "" {
		zone = "UTC"
	}
	location, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("core: invalid parser.message_timestamp_zone %q: %w", zone, err)
	}
	return &Parser{Location: location}, nil
}

// Parse maps a decoded payload to an InboundMessage. All offending fields
// are reported together in a single validation error.
func (p *Parser) Parse(payload Payload) (InboundMessage, error) {
	draft := &messageDraft{present: map[string]bool{}, rejected: map[string]bool{}}
	var fieldErrors []goerrors.FieldError

	for _, spec := range inboundFields {
		value, ok := payload[spec.key]
		if !ok || value == nil || (spec.required && isBlank(value)) {
			if spec.required {
				fieldErrors = append(fieldErrors, goerrors.FieldError{Field: spec.key, Message: "is required"})
			}
			continue
		}
		if err := spec.apply(p, draft, value); err != nil {
			fieldErrors = append(fieldErrors, goerrors.FieldError{Field: spec.key, Message: err.Error()})
			draft.rejected[spec.key] = true
			continue
		}
		draft.present[spec.key] = true
	}

	if draft.concat {
		fieldErrors = append(fieldErrors, draft.fragmentErrors()...)
	}
	if len(fieldErrors) > 0 {
		return InboundMessage{}, validationError(fieldErrors)
	}

	msg := draft.msg
	if msg.Kind == KindBinary {
		msg.Content = NewBinaryContent(draft.data, draft.udh)
	} else {
		msg.Content = TextContent{Text: draft.text}
	}
	if draft.concat {
		msg.Fragment = &Fragment{Ref: draft.ref, Index: draft.index, Total: draft.total}
	}
	return msg, nil
}

func (d *messageDraft) fragmentErrors() []goerrors.FieldError {
	var out []goerrors.FieldError
	incomplete := false
	for _, key := range []string{"concat-ref", "concat-part", "concat-total"} {
		if d.present[key] {
			continue
		}
		incomplete = true
		if !d.rejected[key] {
			out = append(out, goerrors.FieldError{Field: key, Message: "is required when concat is true"})
		}
	}
	if incomplete {
		return out
	}
	if strings.TrimSpace(d.ref) == "" {
		out = append(out, goerrors.FieldError{Field: "concat-ref", Message: "must not be empty"})
	}
	if d.total < 1 {
		out = append(out, goerrors.FieldError{Field: "concat-total", Message: "must be >= 1"})
	}
	if d.index < 1 || (d.total >= 1 && d.index > d.total) {
		out = append(out, goerrors.FieldError{
			Field:   "concat-part",
			Message: fmt.Sprintf("must be between 1 and concat-total (%d)", d.total),
		})
	}
	return out
}

func (p *Parser) location() *time.Location {
	if p == nil || p.Location == nil {
		return time.UTC
	}
	return p.Location
}

func validationError(fields []goerrors.FieldError) error {
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
	return goerrors.NewValidation("core: invalid inbound message payload", fields...).
		WithCode(http.StatusBadRequest).
		WithTextCode(SMSErrorValidationFailed).
		WithSeverity(goerrors.SeverityError)
}

func assignString(value any, target *string) error {
	raw, err := stringValue(value)
	if err != nil {
		return err
	}
	*target = raw
	return nil
}

func assignInt(value any, target *int) error {
	parsed, err := int64Value(value)
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	*target = int(parsed)
	return nil
}

func assignHex(value any, target *[]byte) error {
	raw, err := stringValue(value)
	if err != nil {
		return err
	}
	decoded, err := hex.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("must be hex encoded")
	}
	*target = decoded
	return nil
}

func stringValue(value any) (string, error) {
	switch typed := value.(type) {
	case string:
		return typed, nil
	case json.Number:
		return typed.String(), nil
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(typed), nil
	case int64:
		return strconv.FormatInt(typed, 10), nil
	case bool:
		return strconv.FormatBool(typed), nil
	default:
		return "", fmt.Errorf("must be a string")
	}
}

func int64Value(value any) (int64, error) {
	raw, err := stringValue(value)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
}

func isBlank(value any) bool {
	raw, ok := value.(string)
	return ok && strings.TrimSpace(raw) == ""
}
