package reassembly

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-smshook/core"
)

func reassemblyWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	return core.WrapError(source, category, message, code, textCode, metadata)
}

func reassemblyBadInput(source error, message string, metadata map[string]any) error {
	return reassemblyWrapError(
		source,
		goerrors.CategoryBadInput,
		message,
		http.StatusBadRequest,
		core.SMSErrorBadInput,
		metadata,
	)
}

func reassemblyInternal(message string, metadata map[string]any) error {
	return core.NewError(
		message,
		goerrors.CategoryInternal,
		http.StatusInternalServerError,
		core.SMSErrorInternal,
		metadata,
	)
}

func reassemblyStorage(source error, message string, metadata map[string]any) error {
	return core.StorageError(source, message, metadata)
}
