package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	SMSErrorBadInput           = "SMS_BAD_INPUT"
	SMSErrorValidationFailed   = "SMS_VALIDATION_FAILED"
	SMSErrorInvalidSignature   = "SMS_INVALID_SIGNATURE"
	SMSErrorDuplicatePart      = "SMS_DUPLICATE_PART"
	SMSErrorStorageUnavailable = "SMS_STORAGE_UNAVAILABLE"
	SMSErrorProviderFailure    = "SMS_PROVIDER_FAILURE"
	SMSErrorInternal           = "SMS_INTERNAL_ERROR"
)

// ErrDuplicatePart is returned by a PartStore when a part with the same
// (ref, index) or the same message id is already stored.
var ErrDuplicatePart = errors.New("core: message part already stored")

func NewError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func WrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	if source == nil {
		return NewError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func BadInputError(message string, code int, metadata map[string]any) *goerrors.Error {
	if code == 0 {
		code = http.StatusBadRequest
	}
	return NewError(message, goerrors.CategoryBadInput, code, SMSErrorBadInput, metadata)
}

func StorageError(source error, message string, metadata map[string]any) *goerrors.Error {
	return WrapError(
		source,
		goerrors.CategoryInternal,
		message,
		http.StatusInternalServerError,
		SMSErrorStorageUnavailable,
		metadata,
	)
}

func InvalidSignatureError(source error) *goerrors.Error {
	return WrapError(
		source,
		goerrors.CategoryAuthz,
		"Invalid signature.",
		http.StatusForbidden,
		SMSErrorInvalidSignature,
		nil,
	)
}

// MapError normalizes any error into the go-errors envelope with a stable
// text code and HTTP status.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}
	if errors.Is(err, ErrDuplicatePart) {
		return newMappedError(err.Error(), goerrors.CategoryConflict, SMSErrorDuplicatePart)
	}

	if mapped := mapModuleError(err); mapped != nil {
		return mapped
	}
	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

var modulePrefixes = []string{
	"core: ", "nexmo: ", "reassembly: ", "sqlstore: ", "webhooks: ", "gojob: ", "gocommand: ", "smshook: ",
}

var signatureFailures = []string{
	"nexmo: signature verification failed",
	"nexmo: signature parameter is required",
}

var fragmentFailures = []string{
	"core: fragment ",
	"core: message id is required",
	"sqlstore: fragment ref is required",
	"sqlstore: message id is required",
}

// mapModuleError classifies the plain errors this module raises itself.
// Errors from anywhere else are left to the go-errors mappers.
func mapModuleError(err error) *goerrors.Error {
	msg := strings.TrimSpace(err.Error())
	if !hasAnyPrefix(msg, modulePrefixes) {
		return nil
	}
	switch {
	case strings.HasSuffix(msg, " is not configured"):
		return newMappedError(msg, goerrors.CategoryInternal, SMSErrorInternal)
	case hasAnyPrefix(msg, signatureFailures):
		return newMappedError(msg, goerrors.CategoryAuthz, SMSErrorInvalidSignature)
	case hasAnyPrefix(msg, fragmentFailures):
		return newMappedError(msg, goerrors.CategoryBadInput, SMSErrorBadInput)
	}
	return nil
}

func hasAnyPrefix(msg string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}

func newMappedError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(goerrors.New(message, category).WithTextCode(textCode))
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatusFor(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return SMSErrorBadInput
	case goerrors.CategoryValidation:
		return SMSErrorValidationFailed
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return SMSErrorInvalidSignature
	case goerrors.CategoryConflict:
		return SMSErrorDuplicatePart
	case goerrors.CategoryExternal:
		return SMSErrorProviderFailure
	default:
		return SMSErrorInternal
	}
}

func httpStatusFor(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
