package vectorstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier of an adapter error.
type Code string

const (
	CodeSchemaUnavailable Code = "vectorstore.schema.unavailable"
	CodeConfigInvalid     Code = "vectorstore.config.invalid"
	CodeInputInvalid      Code = "vectorstore.input.invalid"

	CodeInsertBackendFailure    Code = "vectorstore.insert.backend_failure"
	CodeSearchBackendFailure    Code = "vectorstore.search.backend_failure"
	CodeGetBackendFailure       Code = "vectorstore.get.backend_failure"
	CodeUpdateBackendFailure    Code = "vectorstore.update.backend_failure"
	CodeDeleteBackendFailure    Code = "vectorstore.delete.backend_failure"
	CodeDeleteColBackendFailure Code = "vectorstore.delete_col.backend_failure"
	CodeListBackendFailure      Code = "vectorstore.list.backend_failure"
	CodeColInfoBackendFailure   Code = "vectorstore.col_info.backend_failure"
	CodeListColsBackendFailure  Code = "vectorstore.list_cols.backend_failure"
)

// ErrInvalidInput is wrapped by errors raised for caller contract violations.
var ErrInvalidInput = errors.New("invalid input")

func backendFailure(op string) Code {
	return Code(fmt.Sprintf("vectorstore.%s.backend_failure", op))
}

func invalidInput(format string, args ...any) error {
	return oops.Code(CodeInputInvalid).Wrapf(ErrInvalidInput, format, args...)
}

// CodeOf returns the code attached to err, or "" for foreign errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

// IsSchemaError reports whether err is the initialization failure raised when
// the collection cannot accept the bootstrap probe.
func IsSchemaError(err error) bool {
	return CodeOf(err) == CodeSchemaUnavailable
}

// IsBackendError reports whether err came from a failed backend call.
func IsBackendError(err error) bool {
	return strings.HasSuffix(string(CodeOf(err)), ".backend_failure")
}

// IsInvalidInput reports whether err is a caller contract violation.
func IsInvalidInput(err error) bool {
	code := CodeOf(err)
	return code == CodeInputInvalid || code == CodeConfigInvalid
}
