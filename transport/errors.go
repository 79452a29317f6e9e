package transport

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-smshook/core"
)

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	return core.NewError(message, category, code, transportTextCode(category), metadata)
}

func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	return core.WrapError(source, category, message, code, transportTextCode(category), metadata)
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.SMSErrorBadInput
	case goerrors.CategoryExternal:
		return core.SMSErrorProviderFailure
	default:
		return core.SMSErrorInternal
	}
}
