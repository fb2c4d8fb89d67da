package fault

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes used for failures that did not originate as *Error.
const (
	TextCodeInternal = "INTERNAL"
	TextCodeBadInput = "BAD_INPUT"
)

// ToServiceError maps err to the transport error envelope. Already rich errors
// pass through unchanged.
func ToServiceError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich
	}

	var fe *Error
	if !errors.As(err, &fe) {
		return goerrors.New(err.Error(), goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError).
			WithTextCode(TextCodeInternal)
	}

	category, status := classify(fe)
	return goerrors.New(fe.Reason, category).
		WithCode(status).
		WithTextCode(fe.Code).
		WithMetadata(map[string]any{"kind": fe.Kind.String()})
}

// BadInput builds the envelope for malformed requests.
func BadInput(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(TextCodeBadInput)
}

func classify(fe *Error) (goerrors.Category, int) {
	switch fe.Kind {
	case KindAuthorization:
		return goerrors.CategoryAuthz, http.StatusForbidden
	case KindState:
		return goerrors.CategoryConflict, http.StatusConflict
	case KindCrypto:
		return goerrors.CategoryValidation, http.StatusUnprocessableEntity
	case KindData:
		switch {
		case strings.HasSuffix(fe.Code, "NOT_FOUND"):
			return goerrors.CategoryNotFound, http.StatusNotFound
		case strings.Contains(fe.Code, "DUPLICATE"), strings.Contains(fe.Code, "IMMUTABLE"):
			return goerrors.CategoryConflict, http.StatusConflict
		default:
			return goerrors.CategoryBadInput, http.StatusBadRequest
		}
	default:
		return goerrors.CategoryInternal, http.StatusInternalServerError
	}
}
